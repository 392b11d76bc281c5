package tensor

import (
	"errors"
	"math/rand"
)

var (
	ErrShape    = errors.New("tensor: shape mismatch")
	errNegative = errors.New("tensor: negative dimension")
	errDataSize = errors.New("tensor: data length mismatch")
)

// Mat is a dense row-major float32 matrix with R rows and C columns.
// Out-of-range row access panics like a slice index would.
type Mat struct {
	R, C int
	Data []float32
}

// NewMat allocates a zeroed R x C matrix.
func NewMat(r, c int) Mat {
	if r < 0 || c < 0 {
		panic(errNegative)
	}
	return Mat{R: r, C: c, Data: make([]float32, r*c)}
}

// NewMatFromData wraps data without copying.
func NewMatFromData(r, c int, data []float32) (Mat, error) {
	if r < 0 || c < 0 {
		return Mat{}, errNegative
	}
	if r*c != len(data) {
		return Mat{}, errDataSize
	}
	return Mat{R: r, C: c, Data: data}, nil
}

// Row returns a view of row i.
func (m *Mat) Row(i int) []float32 {
	if i < 0 || i >= m.R {
		panic("tensor: row index out of range")
	}
	return m.Data[i*m.C : (i+1)*m.C]
}

// Clone returns a deep copy of m.
func (m *Mat) Clone() Mat {
	return Mat{R: m.R, C: m.C, Data: append([]float32(nil), m.Data...)}
}

// Bytes is the storage footprint of the weights.
func (m *Mat) Bytes() int { return 4 * len(m.Data) }

// FillRand fills m with reproducible values uniformly drawn from
// (-scale, scale). The same seed always yields the same matrix.
func FillRand(m *Mat, seed int64, scale float32) {
	rng := rand.New(rand.NewSource(seed))
	for i := range m.Data {
		m.Data[i] = (rng.Float32()*2 - 1) * scale
	}
}
