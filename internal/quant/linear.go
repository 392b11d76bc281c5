package quant

import (
	"fmt"

	"github.com/samcharles93/quantchat/internal/model"
	"github.com/samcharles93/quantchat/internal/tensor"
)

// KindDynamicLinear identifies layers converted by this package.
const KindDynamicLinear = "linear_int8"

// DynamicLinear is a linear layer with int8 block-quantized weights whose
// input is quantized on every call from that call's own value range.
type DynamicLinear struct {
	name string
	W    *tensor.QuantMat
	B    []float32
}

// NewDynamicLinear quantizes the weights of l. The bias stays in fp32.
func NewDynamicLinear(l model.Quantizable, bits int) (*DynamicLinear, error) {
	qw, err := tensor.QuantizeMat(l.Weight(), bits)
	if err != nil {
		return nil, err
	}
	var b []float32
	if src := l.Bias(); src != nil {
		b = append([]float32(nil), src...)
	}
	return &DynamicLinear{name: l.Name(), W: qw, B: b}, nil
}

func (d *DynamicLinear) Name() string { return d.name }
func (d *DynamicLinear) Kind() string { return KindDynamicLinear }
func (d *DynamicLinear) InDim() int   { return d.W.C }
func (d *DynamicLinear) OutDim() int  { return d.W.R }

// WeightBytes is the quantized footprint including block scales and bias.
func (d *DynamicLinear) WeightBytes() int { return d.W.Bytes() + 4*len(d.B) }

func (d *DynamicLinear) Forward(dst, x []float32) error {
	if len(x) != d.W.C {
		return fmt.Errorf("%w: input %d, want %d", model.ErrShape, len(x), d.W.C)
	}
	if err := tensor.MatVecQuant(dst, d.W, tensor.QuantizeVec(x)); err != nil {
		return fmt.Errorf("%w: %s", model.ErrShape, err)
	}
	if d.B != nil {
		tensor.Add(dst[:d.W.R], d.B)
	}
	return nil
}
