package quant

import (
	"errors"
	"fmt"

	"github.com/samcharles93/quantchat/internal/tensor"
)

var ErrNotEvalMode = errors.New("quant: model must be in eval mode")

// Conversion stages reported by ConversionError.
const (
	StagePrepare = "prepare"
	StageProbe   = "probe"
	StageConvert = "convert"
)

// Config selects a dynamic quantization scheme. No calibration data is
// involved: activation ranges are measured on every call.
type Config struct {
	// Bits is the weight and activation code width. Only 8 is supported.
	Bits int
	// BlockSize is the number of consecutive values sharing one scale.
	BlockSize int
	// MinElements leaves layers with fewer weights in full precision.
	MinElements int
}

// DefaultConfig is 8-bit symmetric quantization in 32-wide blocks.
func DefaultConfig() Config {
	return Config{Bits: 8, BlockSize: tensor.BlockSize, MinElements: 1024}
}

func (c Config) Validate() error {
	if c.Bits != 8 {
		return fmt.Errorf("quant: only 8-bit codes are supported, got %d bits", c.Bits)
	}
	if c.BlockSize != tensor.BlockSize {
		return fmt.Errorf("quant: block size must be %d, got %d", tensor.BlockSize, c.BlockSize)
	}
	if c.MinElements < 0 {
		return fmt.Errorf("quant: min elements must not be negative, got %d", c.MinElements)
	}
	return nil
}

// ConversionError reports the stage, and when known the layer, at which a
// conversion failed.
type ConversionError struct {
	Stage string
	Layer string
	Err   error
}

func (e *ConversionError) Error() string {
	if e.Layer != "" {
		return fmt.Sprintf("quant: %s failed at layer %s: %v", e.Stage, e.Layer, e.Err)
	}
	return fmt.Sprintf("quant: %s failed: %v", e.Stage, e.Err)
}

func (e *ConversionError) Unwrap() error { return e.Err }
