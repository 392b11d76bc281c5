package tensor

// QuantVec is an activation vector quantized for a single matvec call. Its
// scales are derived from the values it was built from, never stored with
// the model.
type QuantVec struct {
	Q      []int8
	Scales []float32
	N      int
}

// QuantizeVec quantizes x block by block using each block's absmax. A
// trailing partial block is zero padded.
func QuantizeVec(x []float32) *QuantVec {
	blocks := (len(x) + BlockSize - 1) / BlockSize
	qx := &QuantVec{
		Q:      make([]int8, blocks*BlockSize),
		Scales: make([]float32, blocks),
		N:      len(x),
	}
	for b := 0; b < blocks; b++ {
		lo := b * BlockSize
		hi := min(lo+BlockSize, len(x))
		scale := AbsMax(x[lo:hi]) / qMax
		qx.Scales[b] = scale
		quantizeBlock(qx.Q[lo:hi], x[lo:hi], scale)
	}
	return qx
}

// MatVecQuant computes dst = w * x with both operands in int8. Products are
// accumulated in int32 per block and rescaled by the two block scales.
func MatVecQuant(dst []float32, w *QuantMat, qx *QuantVec) error {
	if qx == nil || qx.N != w.C || len(dst) < w.R {
		return ErrShape
	}
	bpr := w.BlocksPerRow
	parallelRows(w.R, w.R*w.C, func(rs, re int) {
		for r := rs; r < re; r++ {
			var sum float32
			for b := 0; b < bpr; b++ {
				xs := qx.Scales[b]
				if xs == 0 {
					continue
				}
				idx := r*bpr + b
				ws := w.Scales[idx].Float32()
				if ws == 0 {
					continue
				}
				dot := dotInt8(w.Q[idx*BlockSize:(idx+1)*BlockSize], qx.Q[b*BlockSize:(b+1)*BlockSize])
				sum += float32(dot) * ws * xs
			}
			dst[r] = sum
		}
	})
	return nil
}

func dotInt8(a, b []int8) int32 {
	var sum int32
	for i := range a {
		sum += int32(a[i]) * int32(b[i])
	}
	return sum
}
