package tensor

// MatVec computes dst = w * x. Rows are split across the worker pool when the
// matrix is large enough.
func MatVec(dst []float32, w *Mat, x []float32) error {
	if len(x) != w.C || len(dst) < w.R {
		return ErrShape
	}
	parallelRows(w.R, w.R*w.C, func(rs, re int) {
		for i := rs; i < re; i++ {
			dst[i] = Dot(w.Data[i*w.C:(i+1)*w.C], x)
		}
	})
	return nil
}
