package logits

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
)

var (
	ErrEmptyLogits   = errors.New("logits: empty logits vector")
	ErrInvalidLogits = errors.New("logits: logits contain NaN or infinity")
	ErrInvalidTopK   = errors.New("logits: top-k must be at least 1")
	ErrInvalidTopP   = errors.New("logits: top-p must be in (0, 1]")
	ErrDegenerate    = errors.New("logits: truncated distribution has no usable mass")
)

// Config configures a Sampler.
type Config struct {
	TopK int
	TopP float64
	Seed int64
}

// DefaultConfig keeps the 50 most likely tokens and the smallest prefix of
// them holding 95% of the mass.
func DefaultConfig() Config {
	return Config{TopK: 50, TopP: 0.95, Seed: 42}
}

func (c Config) Validate() error {
	if c.TopK < 1 {
		return fmt.Errorf("%w: got %d", ErrInvalidTopK, c.TopK)
	}
	if !(c.TopP > 0 && c.TopP <= 1) {
		return fmt.Errorf("%w: got %g", ErrInvalidTopP, c.TopP)
	}
	return nil
}

// Candidate is a token that survived truncation with its renormalised
// probability.
type Candidate struct {
	ID   int
	Prob float64
}

// Sampler draws tokens with top-k then top-p truncation from a seeded
// generator it owns. It is not safe for concurrent use.
type Sampler struct {
	cfg Config
	rng *rand.Rand
}

// NewSampler validates cfg and seeds the sampler's generator.
func NewSampler(cfg Config) (*Sampler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Sampler{cfg: cfg, rng: rand.New(rand.NewSource(cfg.Seed))}, nil
}

func (s *Sampler) Config() Config { return s.cfg }

// Sample draws one token id from logits.
func (s *Sampler) Sample(logits []float32) (int, error) {
	return Sample(logits, s.cfg.TopK, s.cfg.TopP, s.rng)
}

// Sample draws one index in [0, len(logits)):
//
//  1. softmax over all logits (max-subtracted, float64);
//  2. keep the k most probable entries, ties going to the lower index;
//  3. keep the shortest descending prefix whose mass reaches p;
//  4. renormalise and draw by inverse CDF with one rng.Float64().
//
// k larger than the vocabulary is clamped. Nothing falls back silently to a
// uniform or greedy choice; invalid input is an error.
func Sample(logits []float32, k int, p float64, rng *rand.Rand) (int, error) {
	probs, err := Softmax(logits)
	if err != nil {
		return 0, err
	}
	cands, err := Truncate(probs, k, p)
	if err != nil {
		return 0, err
	}
	r := rng.Float64()
	var c float64
	for _, cand := range cands {
		c += cand.Prob
		if r < c {
			return cand.ID, nil
		}
	}
	// r landed in the rounding slack above the final cumulative sum.
	return cands[len(cands)-1].ID, nil
}

// Softmax converts logits to probabilities in float64.
func Softmax(logits []float32) ([]float64, error) {
	if len(logits) == 0 {
		return nil, ErrEmptyLogits
	}
	maxv := math.Inf(-1)
	for i, v := range logits {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, fmt.Errorf("%w: index %d", ErrInvalidLogits, i)
		}
		maxv = max(maxv, f)
	}
	probs := make([]float64, len(logits))
	var sum float64
	for i, v := range logits {
		e := math.Exp(float64(v) - maxv)
		probs[i] = e
		sum += e
	}
	inv := 1 / sum
	for i := range probs {
		probs[i] *= inv
	}
	return probs, nil
}

// Truncate applies top-k then top-p to probs and returns the survivors in
// descending probability order, renormalised to sum to 1. The result is
// never empty.
func Truncate(probs []float64, k int, p float64) ([]Candidate, error) {
	if len(probs) == 0 {
		return nil, ErrEmptyLogits
	}
	if k < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidTopK, k)
	}
	if !(p > 0 && p <= 1) {
		return nil, fmt.Errorf("%w: got %g", ErrInvalidTopP, p)
	}
	k = min(k, len(probs))

	top := topK(probs, k)

	cut := len(top)
	var c float64
	for i, cand := range top {
		c += cand.Prob
		if c >= p {
			cut = i + 1
			break
		}
	}
	top = top[:cut]

	var mass float64
	for _, cand := range top {
		mass += cand.Prob
	}
	if !(mass > 0) || math.IsInf(mass, 0) {
		return nil, ErrDegenerate
	}
	inv := 1 / mass
	for i := range top {
		top[i].Prob *= inv
	}
	return top, nil
}

// topK returns the k largest entries of probs ordered from largest to
// smallest. Equal values keep ascending index order. This is O(V*K), fine
// for the small k used in chat sampling.
func topK(probs []float64, k int) []Candidate {
	top := make([]Candidate, 0, k+1)
	for i, v := range probs {
		pos := len(top)
		for pos > 0 && top[pos-1].Prob < v {
			pos--
		}
		if pos >= k {
			continue
		}
		top = append(top, Candidate{})
		copy(top[pos+1:], top[pos:])
		top[pos] = Candidate{ID: i, Prob: v}
		if len(top) > k {
			top = top[:k]
		}
	}
	return top
}
