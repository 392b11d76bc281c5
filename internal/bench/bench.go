package bench

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/samcharles93/quantchat/internal/model"
	"github.com/samcharles93/quantchat/internal/tokenizer"
)

var (
	ErrIterations = errors.New("bench: iterations must be at least 1")
	ErrWarmup     = errors.New("bench: warmup must not be negative")
)

// Result summarises the timed Score calls of one measurement.
type Result struct {
	Label      string        `json:"label,omitempty"`
	Mean       time.Duration `json:"mean"`
	Min        time.Duration `json:"min"`
	Max        time.Duration `json:"max"`
	Iterations int           `json:"iterations"`
}

// Harness times Score calls. Now defaults to time.Now and can be replaced
// with a fake clock.
type Harness struct {
	Now func() time.Time
}

// Measure runs Score with the default clock.
func Measure(ctx context.Context, s model.Scorer, input []int, warmup, iters int) (Result, error) {
	return Harness{}.Measure(ctx, s, input, warmup, iters)
}

// Measure runs warmup untimed calls then iters timed calls of s.Score on
// input. It only observes; the scorer's output is discarded.
func (h Harness) Measure(ctx context.Context, s model.Scorer, input []int, warmup, iters int) (Result, error) {
	if iters < 1 {
		return Result{}, fmt.Errorf("%w: got %d", ErrIterations, iters)
	}
	if warmup < 0 {
		return Result{}, fmt.Errorf("%w: got %d", ErrWarmup, warmup)
	}
	now := h.Now
	if now == nil {
		now = time.Now
	}

	for i := range warmup {
		if _, err := s.Score(ctx, input); err != nil {
			return Result{}, fmt.Errorf("warmup call %d: %w", i+1, err)
		}
	}

	var total time.Duration
	res := Result{Iterations: iters}
	for i := range iters {
		start := now()
		if _, err := s.Score(ctx, input); err != nil {
			return Result{}, fmt.Errorf("timed call %d: %w", i+1, err)
		}
		d := now().Sub(start)
		total += d
		if i == 0 || d < res.Min {
			res.Min = d
		}
		if d > res.Max {
			res.Max = d
		}
	}
	res.Mean = total / time.Duration(iters)
	return res, nil
}

// Compare returns how many times faster candidate is than baseline.
func Compare(baseline, candidate Result) float64 {
	if candidate.Mean <= 0 {
		return 0
	}
	return float64(baseline.Mean) / float64(candidate.Mean)
}

// SyntheticInput returns length token ids drawn from the tokenizer's byte
// range with a fixed seed, padded on the tokenizer's padding side. The first
// quarter of the sequence is padding so every run sees the same shape.
func SyntheticInput(tok tokenizer.Tokenizer, length int, seed int64) ([]int, error) {
	if length < 1 {
		return nil, fmt.Errorf("bench: input length must be at least 1, got %d", length)
	}
	rng := rand.New(rand.NewSource(seed))
	body := make([]int, length-length/4)
	for i := range body {
		body[i] = 0x20 + rng.Intn(0x7f-0x20)
	}
	return tok.Config().PadTo(body, length), nil
}
