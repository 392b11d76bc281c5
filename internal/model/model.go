package model

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/samcharles93/quantchat/internal/tensor"
)

var (
	ErrShape      = errors.New("model: input shape mismatch")
	ErrTokenRange = errors.New("model: token id out of range")
)

// Scorer maps a token sequence to next-token logits. Implementations are not
// assumed reentrant; callers serialise access.
type Scorer interface {
	// Score returns VocabSize logits for the token following tokens. The
	// slice belongs to the caller.
	Score(ctx context.Context, tokens []int) ([]float32, error)
	VocabSize() int
}

// Tracer observes every layer visited during a forward pass.
type Tracer interface {
	Visit(l Layer, in, out []float32)
}

// Block is one pre-norm feed-forward residual block.
type Block struct {
	Norm Layer
	Up   Layer
	Act  Layer
	Down Layer
}

// Model is the reference causal language model. The last token's embedding is
// combined with an exponentially decayed summary of the whole context through
// the Mix projection, passed through NumLayers residual blocks and projected
// to the vocabulary by Head.
type Model struct {
	Config Config

	Embed  *Embedding
	Mix    Layer
	Blocks []Block
	Norm   Layer
	Head   Layer

	training bool
}

// New builds a model with deterministic weights derived from cfg.Seed.
func New(cfg Config) (*Model, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	seed := cfg.Seed
	next := func() int64 { seed++; return seed }
	eps := float32(cfg.RMSNormEps)

	linear := func(name string, out, in int, scale float32, bias []float32) (Layer, error) {
		w := tensor.NewMat(out, in)
		tensor.FillRand(&w, next(), scale)
		return NewLinear(name, w, bias)
	}
	invSqrt := func(n int) float32 { return float32(1 / math.Sqrt(float64(n))) }

	m := &Model{Config: cfg}
	emb := tensor.NewMat(cfg.VocabSize, cfg.HiddenSize)
	tensor.FillRand(&emb, next(), 1)
	m.Embed = &Embedding{name: "embed_tokens", Table: emb}

	var err error
	if m.Mix, err = linear("context_mix", cfg.HiddenSize, cfg.HiddenSize, invSqrt(cfg.HiddenSize), nil); err != nil {
		return nil, err
	}

	m.Blocks = make([]Block, cfg.NumLayers)
	for i := range m.Blocks {
		b := &m.Blocks[i]
		b.Norm = &RMSNorm{name: fmt.Sprintf("layers.%d.norm", i), Gain: ones(cfg.HiddenSize), Epsilon: eps}
		if b.Up, err = linear(fmt.Sprintf("layers.%d.up_proj", i), cfg.IntermediateSize, cfg.HiddenSize, invSqrt(cfg.HiddenSize), nil); err != nil {
			return nil, err
		}
		b.Act = &SiLU{name: fmt.Sprintf("layers.%d.act", i), dim: cfg.IntermediateSize}
		if b.Down, err = linear(fmt.Sprintf("layers.%d.down_proj", i), cfg.HiddenSize, cfg.IntermediateSize, invSqrt(cfg.IntermediateSize), nil); err != nil {
			return nil, err
		}
	}

	m.Norm = &RMSNorm{name: "norm", Gain: ones(cfg.HiddenSize), Epsilon: eps}
	bias := make([]float32, cfg.VocabSize)
	for id := 0x20; id < 0x7f && id < cfg.VocabSize; id++ {
		bias[id] = cfg.PrintableBias
	}
	bias[cfg.EOSTokenID] += cfg.EOSBias
	if m.Head, err = linear("lm_head", cfg.VocabSize, cfg.HiddenSize, 2*invSqrt(cfg.HiddenSize), bias); err != nil {
		return nil, err
	}
	return m, nil
}

func ones(n int) []float32 {
	v := make([]float32, n)
	for i := range v {
		v[i] = 1
	}
	return v
}

// Name is the model id shown to users.
func (m *Model) Name() string { return m.Config.Name }

func (m *Model) VocabSize() int { return m.Config.VocabSize }

// MaxSeqLen is the longest sequence Score accepts.
func (m *Model) MaxSeqLen() int { return m.Config.MaxSeqLen }

// Training reports whether the model is in training mode. Conversion
// requires eval mode.
func (m *Model) Training() bool { return m.training }

// Train switches the model to training mode.
func (m *Model) Train() { m.training = true }

// Eval switches the model to eval mode.
func (m *Model) Eval() { m.training = false }

// Layers returns every layer in forward order.
func (m *Model) Layers() []Layer {
	out := make([]Layer, 0, 4+4*len(m.Blocks))
	out = append(out, m.Embed, m.Mix)
	for _, b := range m.Blocks {
		out = append(out, b.Norm, b.Up, b.Act, b.Down)
	}
	return append(out, m.Norm, m.Head)
}

// Rebuild returns a copy of m in which every layer has been passed through fn.
// Layers fn returns unchanged are shared with m; m itself is not modified.
func (m *Model) Rebuild(fn func(Layer) (Layer, error)) (*Model, error) {
	out := &Model{Config: m.Config, Embed: m.Embed, training: m.training}
	swap := func(l Layer) (Layer, error) {
		nl, err := fn(l)
		if err != nil {
			return nil, err
		}
		if nl.InDim() != l.InDim() || nl.OutDim() != l.OutDim() {
			return nil, fmt.Errorf("%w: layer %s changed shape", ErrShape, l.Name())
		}
		return nl, nil
	}
	var err error
	if out.Mix, err = swap(m.Mix); err != nil {
		return nil, err
	}
	out.Blocks = make([]Block, len(m.Blocks))
	for i, b := range m.Blocks {
		nb := &out.Blocks[i]
		if nb.Norm, err = swap(b.Norm); err != nil {
			return nil, err
		}
		if nb.Up, err = swap(b.Up); err != nil {
			return nil, err
		}
		if nb.Act, err = swap(b.Act); err != nil {
			return nil, err
		}
		if nb.Down, err = swap(b.Down); err != nil {
			return nil, err
		}
	}
	if out.Norm, err = swap(m.Norm); err != nil {
		return nil, err
	}
	if out.Head, err = swap(m.Head); err != nil {
		return nil, err
	}
	return out, nil
}

// Score implements Scorer.
func (m *Model) Score(ctx context.Context, tokens []int) ([]float32, error) {
	return m.forward(ctx, tokens, nil)
}

// ScoreTraced runs Score and reports every visited layer to tr.
func (m *Model) ScoreTraced(ctx context.Context, tokens []int, tr Tracer) ([]float32, error) {
	return m.forward(ctx, tokens, tr)
}

// CheckInput validates tokens against the model's vocabulary and context
// length.
func (m *Model) CheckInput(tokens []int) error {
	if len(tokens) == 0 {
		return fmt.Errorf("%w: empty input", ErrShape)
	}
	if len(tokens) > m.Config.MaxSeqLen {
		return fmt.Errorf("%w: %d tokens exceeds max_seq_len %d", ErrShape, len(tokens), m.Config.MaxSeqLen)
	}
	for i, t := range tokens {
		if t < 0 || t >= m.Config.VocabSize {
			return fmt.Errorf("%w: position %d holds %d, vocabulary is %d", ErrTokenRange, i, t, m.Config.VocabSize)
		}
	}
	return nil
}

func (m *Model) forward(ctx context.Context, tokens []int, tr Tracer) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := m.CheckInput(tokens); err != nil {
		return nil, err
	}
	hidden := m.Config.HiddenSize
	run := func(l Layer, dst, x []float32) error {
		if err := l.Forward(dst, x); err != nil {
			return fmt.Errorf("layer %s: %w", l.Name(), err)
		}
		if tr != nil {
			tr.Visit(l, x, dst[:l.OutDim()])
		}
		return nil
	}

	// Decayed context summary, newest token weighted 1.
	summary := make([]float32, hidden)
	decay := float32(m.Config.ContextDecay)
	var weight, total float32 = 1, 0
	for i := len(tokens) - 1; i >= 0 && weight > 1e-4; i-- {
		row, err := m.Embed.Lookup(tokens[i])
		if err != nil {
			return nil, err
		}
		for j, v := range row {
			summary[j] += weight * v
		}
		total += weight
		weight *= decay
	}
	tensor.Scale(summary, 1/total)

	x := make([]float32, hidden)
	last := tokens[len(tokens)-1]
	if err := run(m.Embed, x, []float32{float32(last)}); err != nil {
		return nil, err
	}
	mixed := make([]float32, hidden)
	if err := run(m.Mix, mixed, summary); err != nil {
		return nil, err
	}
	tensor.Add(x, mixed)

	normed := make([]float32, hidden)
	up := make([]float32, m.Config.IntermediateSize)
	act := make([]float32, m.Config.IntermediateSize)
	down := make([]float32, hidden)
	for _, b := range m.Blocks {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := run(b.Norm, normed, x); err != nil {
			return nil, err
		}
		if err := run(b.Up, up, normed); err != nil {
			return nil, err
		}
		if err := run(b.Act, act, up); err != nil {
			return nil, err
		}
		if err := run(b.Down, down, act); err != nil {
			return nil, err
		}
		tensor.Add(x, down)
	}

	if err := run(m.Norm, normed, x); err != nil {
		return nil, err
	}
	logits := make([]float32, m.Config.VocabSize)
	if err := run(m.Head, logits, normed); err != nil {
		return nil, err
	}
	return logits, nil
}

// WeightBytes is the storage footprint of all weight matrices.
func (m *Model) WeightBytes() int {
	total := m.Embed.Table.Bytes()
	for _, l := range m.Layers() {
		if s, ok := l.(interface{ WeightBytes() int }); ok {
			total += s.WeightBytes()
		}
	}
	return total
}
