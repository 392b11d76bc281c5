package inference

import (
	"context"
	"errors"
	"testing"

	"github.com/samcharles93/quantchat/internal/logits"
	"github.com/samcharles93/quantchat/internal/tokenizer"
)

// scriptScorer emits logits that make a greedy sampler pick script[i] on
// the i-th call, cycling through the script.
type scriptScorer struct {
	vocab  int
	script []int
	calls  int
	failAt int
	seen   []int
}

func (s *scriptScorer) VocabSize() int { return s.vocab }

func (s *scriptScorer) Score(_ context.Context, tokens []int) ([]float32, error) {
	s.calls++
	s.seen = append(s.seen, len(tokens))
	if s.failAt > 0 && s.calls == s.failAt {
		return nil, errors.New("forced score failure")
	}
	out := make([]float32, s.vocab)
	out[s.script[(s.calls-1)%len(s.script)]] = 10
	return out, nil
}

type panicScorer struct{}

func (panicScorer) VocabSize() int { return tokenizer.ByteVocabSize }

func (panicScorer) Score(context.Context, []int) ([]float32, error) {
	panic("boom")
}

func greedySampler(t *testing.T) *logits.Sampler {
	t.Helper()
	s, err := logits.NewSampler(logits.Config{TopK: 1, TopP: 1, Seed: 1})
	if err != nil {
		t.Fatalf("NewSampler: %v", err)
	}
	return s
}
