package api

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/samcharles93/quantchat/internal/model"
)

func writeCard(t *testing.T, dir, name, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
		t.Fatalf("write card: %v", err)
	}
}

func TestProviderListsCards(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeCard(t, dir, "tiny.yaml", "base: quantchat-mini\nname: tiny\nhidden_size: 64\n")
	writeCard(t, dir, "notes.txt", "ignored")

	p := NewCachedModelProvider(ModelProviderConfig{ModelsPath: dir})
	models, err := p.Models()
	if err != nil {
		t.Fatalf("Models: %v", err)
	}
	if len(models) != len(model.Presets())+1 {
		t.Fatalf("models: got %d, want %d", len(models), len(model.Presets())+1)
	}
	last := models[len(models)-1]
	if last.ID != "tiny" || last.Source != "card" || last.Hidden != 64 {
		t.Fatalf("card: got %+v", last)
	}

	s, err := p.Scorer(context.Background(), "tiny", false)
	if err != nil {
		t.Fatalf("Scorer: %v", err)
	}
	logits, err := s.Score(context.Background(), []int{'h', 'i'})
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if len(logits) != s.VocabSize() {
		t.Fatalf("logits: got %d, want %d", len(logits), s.VocabSize())
	}
}

func TestProviderCachesConversion(t *testing.T) {
	t.Parallel()

	p := NewCachedModelProvider(ModelProviderConfig{})
	ctx := context.Background()
	a, err := p.Scorer(ctx, "quantchat-mini", true)
	if err != nil {
		t.Fatalf("Scorer: %v", err)
	}
	b, err := p.Scorer(ctx, "quantchat-mini", true)
	if err != nil {
		t.Fatalf("Scorer: %v", err)
	}
	full, err := p.Scorer(ctx, "quantchat-mini", false)
	if err != nil {
		t.Fatalf("Scorer: %v", err)
	}
	la, lb, lf := a.(*lockedScorer), b.(*lockedScorer), full.(*lockedScorer)
	if la.m != lb.m {
		t.Fatalf("quantized model converted twice")
	}
	if la.m == lf.m {
		t.Fatalf("quantized and full precision scorers share a model")
	}
	if la.mu != lf.mu {
		t.Fatalf("scorers for one model must share a lock")
	}
}

func TestProviderUnknownModel(t *testing.T) {
	t.Parallel()

	p := NewCachedModelProvider(ModelProviderConfig{ModelsPath: t.TempDir()})
	_, err := p.Scorer(context.Background(), "missing", false)
	if !errors.Is(err, model.ErrUnknownModel) {
		t.Fatalf("got %v, want ErrUnknownModel", err)
	}
}
