package model

import (
	"fmt"

	"github.com/samcharles93/quantchat/internal/tensor"
)

// Layer kinds reported in traces and conversion reports.
const (
	KindEmbedding = "embedding"
	KindLinear    = "linear"
	KindRMSNorm   = "rmsnorm"
	KindSiLU      = "silu"
)

// Layer is one stage of the forward pass. Forward writes OutDim values
// into dst from InDim values of x.
type Layer interface {
	Name() string
	Kind() string
	InDim() int
	OutDim() int
	Forward(dst, x []float32) error
}

// Quantizable is implemented by layers whose weight matrix may be replaced by
// a lower precision representation.
type Quantizable interface {
	Layer
	Weight() *tensor.Mat
	Bias() []float32
}

// Linear computes dst = W*x + b with W stored [out x in].
type Linear struct {
	name string
	W    tensor.Mat
	B    []float32
}

// NewLinear wraps w and the optional bias b.
func NewLinear(name string, w tensor.Mat, b []float32) (*Linear, error) {
	if b != nil && len(b) != w.R {
		return nil, fmt.Errorf("%w: bias %d for %d outputs", ErrShape, len(b), w.R)
	}
	return &Linear{name: name, W: w, B: b}, nil
}

func (l *Linear) Name() string        { return l.name }
func (l *Linear) Kind() string        { return KindLinear }
func (l *Linear) InDim() int          { return l.W.C }
func (l *Linear) OutDim() int         { return l.W.R }
func (l *Linear) Weight() *tensor.Mat { return &l.W }
func (l *Linear) Bias() []float32     { return l.B }

// WeightBytes is the fp32 footprint of the weight and bias.
func (l *Linear) WeightBytes() int { return l.W.Bytes() + 4*len(l.B) }

func (l *Linear) Forward(dst, x []float32) error {
	if err := tensor.MatVec(dst, &l.W, x); err != nil {
		return fmt.Errorf("%w: %s", ErrShape, err)
	}
	if l.B != nil {
		tensor.Add(dst[:l.W.R], l.B)
	}
	return nil
}

// RMSNorm normalises its input and applies a learned gain.
type RMSNorm struct {
	name    string
	Gain    []float32
	Epsilon float32
}

func (n *RMSNorm) Name() string { return n.name }
func (n *RMSNorm) Kind() string { return KindRMSNorm }
func (n *RMSNorm) InDim() int   { return len(n.Gain) }
func (n *RMSNorm) OutDim() int  { return len(n.Gain) }

func (n *RMSNorm) Forward(dst, x []float32) error {
	if len(x) != len(n.Gain) || len(dst) < len(n.Gain) {
		return ErrShape
	}
	tensor.RMSNorm(dst, x, n.Gain, n.Epsilon)
	return nil
}

// SiLU applies x*sigmoid(x) element-wise.
type SiLU struct {
	name string
	dim  int
}

func (s *SiLU) Name() string { return s.name }
func (s *SiLU) Kind() string { return KindSiLU }
func (s *SiLU) InDim() int   { return s.dim }
func (s *SiLU) OutDim() int  { return s.dim }

func (s *SiLU) Forward(dst, x []float32) error {
	if len(x) != s.dim || len(dst) < s.dim {
		return ErrShape
	}
	for i, v := range x {
		dst[i] = tensor.Silu(v)
	}
	return nil
}

// Embedding maps token ids to rows of Table. It is traced like any other
// layer but is a lookup, not a matrix product, so it is never quantized.
type Embedding struct {
	name  string
	Table tensor.Mat
}

func (e *Embedding) Name() string { return e.name }
func (e *Embedding) Kind() string { return KindEmbedding }
func (e *Embedding) InDim() int   { return e.Table.R }
func (e *Embedding) OutDim() int  { return e.Table.C }

// Forward treats x as a one-element slice holding the token id.
func (e *Embedding) Forward(dst, x []float32) error {
	if len(x) != 1 || len(dst) < e.Table.C {
		return ErrShape
	}
	tok := int(x[0])
	if tok < 0 || tok >= e.Table.R {
		return fmt.Errorf("%w: %d", ErrTokenRange, tok)
	}
	copy(dst, e.Table.Row(tok))
	return nil
}

// Lookup returns the embedding row for tok without copying.
func (e *Embedding) Lookup(tok int) ([]float32, error) {
	if tok < 0 || tok >= e.Table.R {
		return nil, fmt.Errorf("%w: %d", ErrTokenRange, tok)
	}
	return e.Table.Row(tok), nil
}
