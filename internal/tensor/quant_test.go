package tensor

import (
	"errors"
	"math"
	"testing"
)

func assertCloseSlice(t *testing.T, got, want []float32, tol float64) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("length mismatch: got %d, want %d", len(got), len(want))
	}
	for i := range got {
		if math.Abs(float64(got[i]-want[i])) > tol {
			t.Fatalf("index %d: got %f, want %f (tol %g)", i, got[i], want[i], tol)
		}
	}
}

func TestQuantizeMatRoundTrip(t *testing.T) {
	t.Parallel()
	m := NewMat(4, 64)
	FillRand(&m, 3, 0.5)
	q, err := QuantizeMat(&m, 8)
	if err != nil {
		t.Fatalf("QuantizeMat: %v", err)
	}
	if q.BlocksPerRow != 2 || len(q.Scales) != 8 || len(q.Q) != 256 {
		t.Fatalf("unexpected layout: bpr=%d scales=%d q=%d", q.BlocksPerRow, len(q.Scales), len(q.Q))
	}
	back := q.Dequantize()
	// Half a quantization step of the largest possible block.
	tol := 0.5*0.5/127 + 1e-3
	assertCloseSlice(t, back.Data, m.Data, tol)
}

func TestQuantizeMatErrors(t *testing.T) {
	t.Parallel()
	odd := NewMat(2, 40)
	if _, err := QuantizeMat(&odd, 8); !errors.Is(err, ErrBlockAlign) {
		t.Fatalf("expected ErrBlockAlign, got %v", err)
	}
	ok := NewMat(2, 32)
	if _, err := QuantizeMat(&ok, 4); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
	empty := NewMat(0, 32)
	if _, err := QuantizeMat(&empty, 8); !errors.Is(err, ErrShape) {
		t.Fatalf("expected ErrShape, got %v", err)
	}
	huge := NewMat(1, 32)
	huge.Data[0] = 1e9
	if _, err := QuantizeMat(&huge, 8); !errors.Is(err, ErrScaleRange) {
		t.Fatalf("expected ErrScaleRange, got %v", err)
	}
}

func TestQuantizeMatZeroBlock(t *testing.T) {
	t.Parallel()
	m := NewMat(1, 64)
	for i := 32; i < 64; i++ {
		m.Data[i] = 1
	}
	q, err := QuantizeMat(&m, 8)
	if err != nil {
		t.Fatalf("QuantizeMat: %v", err)
	}
	if q.Scales[0].Float32() != 0 {
		t.Fatalf("zero block should have zero scale, got %f", q.Scales[0].Float32())
	}
	for i := 0; i < 32; i++ {
		if q.Q[i] != 0 {
			t.Fatalf("zero block code %d = %d", i, q.Q[i])
		}
	}
	if q.Q[32] != 127 {
		t.Fatalf("max code: got %d, want 127", q.Q[32])
	}
}

func TestQuantizeVecPerCallScale(t *testing.T) {
	t.Parallel()
	small := QuantizeVec([]float32{0.12, -0.2, 0.04})
	large := QuantizeVec([]float32{12, -20, 4})
	if small.N != 3 || len(small.Q) != BlockSize {
		t.Fatalf("partial block not padded: n=%d q=%d", small.N, len(small.Q))
	}
	if math.Abs(float64(small.Scales[0])-0.2/127) > 1e-7 {
		t.Fatalf("small scale: got %g", small.Scales[0])
	}
	if math.Abs(float64(large.Scales[0])-20.0/127) > 1e-5 {
		t.Fatalf("large scale: got %g", large.Scales[0])
	}
	// Same relative pattern, same codes: the scale follows the observed range.
	for i := 0; i < 3; i++ {
		if small.Q[i] != large.Q[i] {
			t.Fatalf("code %d: %d vs %d", i, small.Q[i], large.Q[i])
		}
	}
}

func TestQuantizeVecTrailingBlock(t *testing.T) {
	t.Parallel()
	x := make([]float32, BlockSize+8)
	for i := range x {
		x[i] = float32(i + 1)
	}
	qx := QuantizeVec(x)
	if len(qx.Scales) != 2 || len(qx.Q) != 2*BlockSize {
		t.Fatalf("blocks: scales=%d q=%d", len(qx.Scales), len(qx.Q))
	}
	if qx.Q[BlockSize-1] != 127 || qx.Q[len(x)-1] != 127 {
		t.Fatalf("block maxima: %d %d", qx.Q[BlockSize-1], qx.Q[len(x)-1])
	}
	if qx.Q[BlockSize] != 105 {
		t.Fatalf("first code of trailing block: got %d, want 105", qx.Q[BlockSize])
	}
	for i := len(x); i < len(qx.Q); i++ {
		if qx.Q[i] != 0 {
			t.Fatalf("padding code %d: got %d", i, qx.Q[i])
		}
	}
}

func TestMatVecQuantMatchesFloat(t *testing.T) {
	t.Parallel()
	const rows, cols = 48, 96
	w := NewMat(rows, cols)
	FillRand(&w, 11, 0.2)
	x := make([]float32, cols)
	for i := range x {
		x[i] = float32((i%13)-6) * 0.25
	}

	want := make([]float32, rows)
	if err := MatVec(want, &w, x); err != nil {
		t.Fatalf("MatVec: %v", err)
	}
	q, err := QuantizeMat(&w, 8)
	if err != nil {
		t.Fatalf("QuantizeMat: %v", err)
	}
	got := make([]float32, rows)
	if err := MatVecQuant(got, q, QuantizeVec(x)); err != nil {
		t.Fatalf("MatVecQuant: %v", err)
	}
	assertCloseSlice(t, got, want, 0.1)
}

func TestMatVecShapeErrors(t *testing.T) {
	t.Parallel()
	w := NewMat(2, 32)
	if err := MatVec(make([]float32, 2), &w, make([]float32, 31)); !errors.Is(err, ErrShape) {
		t.Fatalf("expected ErrShape, got %v", err)
	}
	q, _ := QuantizeMat(&w, 8)
	if err := MatVecQuant(make([]float32, 2), q, QuantizeVec(make([]float32, 64))); !errors.Is(err, ErrShape) {
		t.Fatalf("expected ErrShape, got %v", err)
	}
}

func TestMatVecParallelMatchesSerial(t *testing.T) {
	t.Parallel()
	const rows, cols = 512, 128
	w := NewMat(rows, cols)
	FillRand(&w, 5, 1)
	x := make([]float32, cols)
	for i := range x {
		x[i] = float32(i%7) * 0.1
	}
	got := make([]float32, rows)
	if err := MatVec(got, &w, x); err != nil {
		t.Fatalf("MatVec: %v", err)
	}
	for r := 0; r < rows; r++ {
		if want := Dot(w.Row(r), x); got[r] != want {
			t.Fatalf("row %d: got %f, want %f", r, got[r], want)
		}
	}
}

func TestRMSNormUnitRMS(t *testing.T) {
	t.Parallel()
	src := []float32{3, -4, 0, 5}
	ones := []float32{1, 1, 1, 1}
	dst := make([]float32, 4)
	RMSNorm(dst, src, ones, 0)
	var ss float64
	for _, v := range dst {
		ss += float64(v * v)
	}
	if rms := math.Sqrt(ss / 4); math.Abs(rms-1) > 1e-5 {
		t.Fatalf("rms: got %f, want 1", rms)
	}
}
