package tensor

import (
	"errors"
	"math"

	"github.com/x448/float16"
)

// BlockSize is the number of consecutive values that share one scale.
const BlockSize = 32

// qMax is the largest magnitude of a symmetric int8 code.
const qMax = 127

var (
	ErrBlockAlign  = errors.New("tensor: columns not a multiple of the block size")
	ErrUnsupported = errors.New("tensor: unsupported quantization width")
	ErrScaleRange  = errors.New("tensor: block scale outside fp16 range")
)

// QuantMat is a row-major matrix stored as symmetric int8 codes in blocks of
// BlockSize columns, one fp16 scale per block:
//
//	w[r][b*32+i] ~= Scales[r*BlocksPerRow+b] * Q[(r*BlocksPerRow+b)*32+i]
type QuantMat struct {
	R, C         int
	BlocksPerRow int
	Q            []int8
	Scales       []float16.Float16
}

// QuantizeMat converts m to an 8-bit block representation. Each block's scale
// is absmax/127 rounded to fp16; codes are computed against the rounded scale
// so dequantization error stays within half a step.
func QuantizeMat(m *Mat, bits int) (*QuantMat, error) {
	if bits != 8 {
		return nil, ErrUnsupported
	}
	if m.R <= 0 || m.C <= 0 {
		return nil, ErrShape
	}
	if m.C%BlockSize != 0 {
		return nil, ErrBlockAlign
	}
	bpr := m.C / BlockSize
	qm := &QuantMat{
		R:            m.R,
		C:            m.C,
		BlocksPerRow: bpr,
		Q:            make([]int8, m.R*m.C),
		Scales:       make([]float16.Float16, m.R*bpr),
	}
	for r := 0; r < m.R; r++ {
		row := m.Row(r)
		for b := 0; b < bpr; b++ {
			block := row[b*BlockSize : (b+1)*BlockSize]
			idx := r*bpr + b
			scale := float16.Fromfloat32(AbsMax(block) / qMax)
			if scale.IsInf(0) || scale.IsNaN() {
				return nil, ErrScaleRange
			}
			qm.Scales[idx] = scale
			quantizeBlock(qm.Q[idx*BlockSize:(idx+1)*BlockSize], block, scale.Float32())
		}
	}
	return qm, nil
}

// Dequantize expands q back to float32.
func (q *QuantMat) Dequantize() Mat {
	out := NewMat(q.R, q.C)
	for idx, s := range q.Scales {
		d := s.Float32()
		for i := 0; i < BlockSize; i++ {
			out.Data[idx*BlockSize+i] = float32(q.Q[idx*BlockSize+i]) * d
		}
	}
	return out
}

// Bytes is the storage footprint: one byte per code plus two per scale.
func (q *QuantMat) Bytes() int { return len(q.Q) + 2*len(q.Scales) }

func quantizeBlock(dst []int8, src []float32, scale float32) {
	if scale == 0 {
		clear(dst)
		return
	}
	inv := 1 / scale
	for i, v := range src {
		c := math.Round(float64(v * inv))
		dst[i] = int8(max(-qMax, min(qMax, c)))
	}
}
