package inference

import (
	"context"
	"fmt"
	"time"

	"github.com/samcharles93/quantchat/internal/metrics"
	"github.com/samcharles93/quantchat/internal/model"
)

// TokenSampler picks the next token from a logits vector.
type TokenSampler interface {
	Sample(logits []float32) (int, error)
}

type Stats struct {
	TokensGenerated int           `json:"tokens_generated"`
	Duration        time.Duration `json:"duration"`
	ScoreTime       time.Duration `json:"score_time"`
	TPS             float64       `json:"tps"`
}

// GenerateResult is the outcome of one decode loop.
type GenerateResult struct {
	Tokens []int
	Finish FinishReason
	Stats  Stats
}

// Generator runs the score, sample, append loop over a History.
type Generator struct {
	Scorer     model.Scorer
	Sampler    TokenSampler
	EOSTokenID int
	// Label tags the score latency metric.
	Label string
}

// Run generates tokens into h until the end-of-sequence token is sampled
// (it is appended too), h is full, or limit tokens were produced. A limit of
// zero or less means no per-call limit. On error h keeps the tokens appended
// so far; callers restore their own snapshot.
func (g *Generator) Run(ctx context.Context, h *History, limit int) (GenerateResult, error) {
	var res GenerateResult
	start := time.Now()
	vocab := g.Scorer.VocabSize()

	for limit <= 0 || len(res.Tokens) < limit {
		if h.Remaining() == 0 {
			break
		}
		if err := ctx.Err(); err != nil {
			return res, err
		}

		scoreStart := time.Now()
		logitsVec, err := safeScore(ctx, g.Scorer, h.Tokens())
		elapsed := time.Since(scoreStart)
		res.Stats.ScoreTime += elapsed
		metrics.RecordScore(g.Label, elapsed)
		if err != nil {
			return res, fmt.Errorf("%w: step %d: %w", ErrScorer, len(res.Tokens), err)
		}
		if len(logitsVec) != vocab {
			return res, fmt.Errorf("%w: step %d: got %d logits, want %d", ErrScorer, len(res.Tokens), len(logitsVec), vocab)
		}

		next, err := safeSample(g.Sampler, logitsVec)
		if err != nil {
			return res, fmt.Errorf("sample step %d: %w", len(res.Tokens), err)
		}
		if err := h.Append(next); err != nil {
			return res, err
		}
		res.Tokens = append(res.Tokens, next)
		metrics.RecordToken()

		if next == g.EOSTokenID {
			res.Finish = FinishEOS
			break
		}
	}
	if res.Finish == 0 {
		res.Finish = FinishLength
	}

	res.Stats.TokensGenerated = len(res.Tokens)
	res.Stats.Duration = time.Since(start)
	if res.Stats.Duration.Seconds() > 0 {
		res.Stats.TPS = float64(res.Stats.TokensGenerated) / res.Stats.Duration.Seconds()
	}
	return res, nil
}

func safeScore(ctx context.Context, s model.Scorer, tokens []int) (out []float32, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic in Score: %v", rec)
		}
	}()
	return s.Score(ctx, tokens)
}

func safeSample(s TokenSampler, logitsVec []float32) (id int, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic in Sample: %v", rec)
		}
	}()
	id, err = s.Sample(logitsVec)
	if err == nil && (id < 0 || id >= len(logitsVec)) {
		err = fmt.Errorf("sampler returned id %d outside [0, %d)", id, len(logitsVec))
	}
	return id, err
}
