package inference

import (
	"context"
	"errors"
	"slices"
	"strings"
	"testing"

	"github.com/samcharles93/quantchat/internal/logits"
	"github.com/samcharles93/quantchat/internal/tokenizer"
)

func newGenerator(t *testing.T, sc *scriptScorer) *Generator {
	return &Generator{Scorer: sc, Sampler: greedySampler(t), EOSTokenID: tokenizer.ByteEOS, Label: "test"}
}

func TestGeneratorStopsOnEOS(t *testing.T) {
	t.Parallel()
	sc := &scriptScorer{vocab: tokenizer.ByteVocabSize, script: []int{'h', 'i', tokenizer.ByteEOS}}
	h := NewHistory(32)
	_ = h.Append(1, 2)
	res, err := newGenerator(t, sc).Run(context.Background(), h, 0)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Finish != FinishEOS {
		t.Fatalf("finish: got %s, want eos", res.Finish)
	}
	if want := []int{'h', 'i', tokenizer.ByteEOS}; !slices.Equal(res.Tokens, want) {
		t.Fatalf("tokens: got %v, want %v", res.Tokens, want)
	}
	if h.Len() != 5 {
		t.Fatalf("history length %d, want 5 (EOS is kept)", h.Len())
	}
	// Every step scores the full, growing history.
	if want := []int{2, 3, 4}; !slices.Equal(sc.seen, want) {
		t.Fatalf("scored lengths %v, want %v", sc.seen, want)
	}
}

func TestGeneratorStopsWhenHistoryFull(t *testing.T) {
	t.Parallel()
	sc := &scriptScorer{vocab: tokenizer.ByteVocabSize, script: []int{'a'}}
	h := NewHistory(6)
	_ = h.Append(1, 2)
	res, err := newGenerator(t, sc).Run(context.Background(), h, 0)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Finish != FinishLength || len(res.Tokens) != 4 || h.Len() != 6 {
		t.Fatalf("finish=%s tokens=%d len=%d", res.Finish, len(res.Tokens), h.Len())
	}
}

func TestGeneratorRespectsLimit(t *testing.T) {
	t.Parallel()
	sc := &scriptScorer{vocab: tokenizer.ByteVocabSize, script: []int{'a'}}
	h := NewHistory(100)
	_ = h.Append(1)
	res, err := newGenerator(t, sc).Run(context.Background(), h, 3)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Finish != FinishLength || len(res.Tokens) != 3 {
		t.Fatalf("finish=%s tokens=%d", res.Finish, len(res.Tokens))
	}
	if res.Stats.TokensGenerated != 3 {
		t.Fatalf("stats tokens %d, want 3", res.Stats.TokensGenerated)
	}
}

func TestGeneratorFullHistoryGeneratesNothing(t *testing.T) {
	t.Parallel()
	sc := &scriptScorer{vocab: tokenizer.ByteVocabSize, script: []int{'a'}}
	h := NewHistory(2)
	_ = h.Append(1, 2)
	res, err := newGenerator(t, sc).Run(context.Background(), h, 0)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Finish != FinishLength || len(res.Tokens) != 0 || sc.calls != 0 {
		t.Fatalf("finish=%s tokens=%d calls=%d", res.Finish, len(res.Tokens), sc.calls)
	}
}

func TestGeneratorConvertsScorePanicToError(t *testing.T) {
	t.Parallel()
	g := &Generator{Scorer: panicScorer{}, Sampler: greedySampler(t), EOSTokenID: tokenizer.ByteEOS}
	h := NewHistory(8)
	_ = h.Append(1)
	_, err := g.Run(context.Background(), h, 0)
	if !errors.Is(err, ErrScorer) {
		t.Fatalf("got %v, want ErrScorer", err)
	}
	if !strings.Contains(err.Error(), "panic in Score") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestGeneratorRejectsWrongLogitWidth(t *testing.T) {
	t.Parallel()
	sc := &scriptScorer{vocab: 4, script: []int{1}}
	g := &Generator{Scorer: wrongWidth{sc}, Sampler: greedySampler(t), EOSTokenID: 3}
	h := NewHistory(8)
	_ = h.Append(1)
	if _, err := g.Run(context.Background(), h, 0); !errors.Is(err, ErrScorer) {
		t.Fatalf("got %v, want ErrScorer", err)
	}
}

type wrongWidth struct{ *scriptScorer }

func (w wrongWidth) VocabSize() int { return w.scriptScorer.vocab + 1 }

type errSampler struct{}

func (errSampler) Sample([]float32) (int, error) { return 0, logits.ErrDegenerate }

func TestGeneratorPropagatesSamplerError(t *testing.T) {
	t.Parallel()
	sc := &scriptScorer{vocab: tokenizer.ByteVocabSize, script: []int{'a'}}
	g := &Generator{Scorer: sc, Sampler: errSampler{}, EOSTokenID: tokenizer.ByteEOS}
	h := NewHistory(8)
	_ = h.Append(1)
	if _, err := g.Run(context.Background(), h, 0); !errors.Is(err, logits.ErrDegenerate) {
		t.Fatalf("got %v, want ErrDegenerate", err)
	}
}

func TestGeneratorCancelled(t *testing.T) {
	t.Parallel()
	sc := &scriptScorer{vocab: tokenizer.ByteVocabSize, script: []int{'a'}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	h := NewHistory(8)
	_ = h.Append(1)
	if _, err := newGenerator(t, sc).Run(ctx, h, 0); !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v, want context.Canceled", err)
	}
}
