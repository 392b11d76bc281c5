package model

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
)

func testModel(t *testing.T) *Model {
	t.Helper()
	cfg, err := PresetConfig("quantchat-mini")
	if err != nil {
		t.Fatalf("PresetConfig: %v", err)
	}
	cfg.MaxSeqLen = 16
	m, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return m
}

func TestScoreShapeAndDeterminism(t *testing.T) {
	t.Parallel()
	m := testModel(t)
	ctx := context.Background()
	a, err := m.Score(ctx, []int{72, 105})
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if len(a) != m.VocabSize() {
		t.Fatalf("logits length: got %d, want %d", len(a), m.VocabSize())
	}
	b, err := m.Score(ctx, []int{72, 105})
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("logit %d differs between calls: %f vs %f", i, a[i], b[i])
		}
		if math.IsNaN(float64(a[i])) || math.IsInf(float64(a[i]), 0) {
			t.Fatalf("logit %d not finite: %f", i, a[i])
		}
	}
	a[0] = 1e9
	c, _ := m.Score(ctx, []int{72, 105})
	if c[0] == 1e9 {
		t.Fatal("Score returned a shared buffer")
	}
}

func TestScoreDependsOnContext(t *testing.T) {
	t.Parallel()
	m := testModel(t)
	a, _ := m.Score(context.Background(), []int{1, 2, 3, 72})
	b, _ := m.Score(context.Background(), []int{9, 8, 7, 72})
	same := true
	for i := range a {
		if a[i] != b[i] {
			same = false
			break
		}
	}
	if same {
		t.Fatal("logits ignore everything but the last token")
	}
}

func TestScoreInputErrors(t *testing.T) {
	t.Parallel()
	m := testModel(t)
	tests := []struct {
		name   string
		tokens []int
		want   error
	}{
		{name: "empty", tokens: nil, want: ErrShape},
		{name: "too long", tokens: make([]int, 17), want: ErrShape},
		{name: "negative", tokens: []int{1, -1}, want: ErrTokenRange},
		{name: "past vocab", tokens: []int{m.VocabSize()}, want: ErrTokenRange},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := m.Score(context.Background(), tt.tokens); !errors.Is(err, tt.want) {
				t.Fatalf("got %v, want %v", err, tt.want)
			}
		})
	}
}

func TestScoreCancelled(t *testing.T) {
	t.Parallel()
	m := testModel(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := m.Score(ctx, []int{1}); !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v, want context.Canceled", err)
	}
}

type recordingTracer struct{ names []string }

func (r *recordingTracer) Visit(l Layer, in, out []float32) {
	if len(out) != l.OutDim() {
		panic("tracer saw wrong output width")
	}
	r.names = append(r.names, l.Name())
}

func TestScoreTracedVisitsEveryLayer(t *testing.T) {
	t.Parallel()
	m := testModel(t)
	tr := &recordingTracer{}
	if _, err := m.ScoreTraced(context.Background(), []int{5, 6}, tr); err != nil {
		t.Fatalf("ScoreTraced: %v", err)
	}
	layers := m.Layers()
	if len(tr.names) != len(layers) {
		t.Fatalf("visited %d layers, want %d: %v", len(tr.names), len(layers), tr.names)
	}
	for i, l := range layers {
		if tr.names[i] != l.Name() {
			t.Fatalf("visit %d: got %s, want %s", i, tr.names[i], l.Name())
		}
	}
}

func TestRebuildLeavesOriginal(t *testing.T) {
	t.Parallel()
	m := testModel(t)
	before, _ := m.Score(context.Background(), []int{3})
	zeroed, err := m.Rebuild(func(l Layer) (Layer, error) {
		if l.Name() != "lm_head" {
			return l, nil
		}
		lin := l.(*Linear)
		w := lin.W.Clone()
		clear(w.Data)
		return NewLinear(lin.Name(), w, nil)
	})
	if err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	got, _ := zeroed.Score(context.Background(), []int{3})
	for i, v := range got {
		if v != 0 {
			t.Fatalf("rebuilt head logit %d = %f, want 0", i, v)
		}
	}
	after, _ := m.Score(context.Background(), []int{3})
	for i := range before {
		if before[i] != after[i] {
			t.Fatalf("original model changed at %d", i)
		}
	}
}

func TestTrainEvalFlag(t *testing.T) {
	t.Parallel()
	m := testModel(t)
	if m.Training() {
		t.Fatal("new model should be in eval mode")
	}
	m.Train()
	if !m.Training() {
		t.Fatal("Train did not switch mode")
	}
	m.Eval()
	if m.Training() {
		t.Fatal("Eval did not switch mode")
	}
}

func TestLoadPresets(t *testing.T) {
	t.Parallel()
	m, err := Load("")
	if err != nil {
		t.Fatalf("Load default: %v", err)
	}
	if m.Name() != DefaultModelID {
		t.Fatalf("default model: got %s, want %s", m.Name(), DefaultModelID)
	}
	if _, err := Load("nope"); !errors.Is(err, ErrUnknownModel) {
		t.Fatalf("got %v, want ErrUnknownModel", err)
	}
	ids := Presets()
	if len(ids) != 3 || ids[0] != "quantchat-base" {
		t.Fatalf("presets: %v", ids)
	}
}

func TestLoadCardOverridesBase(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "card.yaml")
	card := "base: quantchat-mini\nname: tiny\nnum_layers: 1\nseed: 99\n"
	if err := os.WriteFile(path, []byte(card), 0o644); err != nil {
		t.Fatal(err)
	}
	m, err := LoadCard(path)
	if err != nil {
		t.Fatalf("LoadCard: %v", err)
	}
	mini, _ := PresetConfig("quantchat-mini")
	if m.Name() != "tiny" || len(m.Blocks) != 1 || m.Config.Seed != 99 {
		t.Fatalf("overrides not applied: %+v", m.Config)
	}
	if m.Config.HiddenSize != mini.HiddenSize || m.Config.VocabSize != mini.VocabSize {
		t.Fatalf("base fields lost: %+v", m.Config)
	}
}

func TestParseCardValidation(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		card string
	}{
		{name: "unknown base", card: "base: missing\n"},
		{name: "no base incomplete", card: "name: x\nhidden_size: 32\n"},
		{name: "bad decay", card: "base: quantchat-mini\ncontext_decay: 1.5\n"},
		{name: "bad yaml", card: "base: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseCard([]byte(tt.card)); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}
