package inference

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrSessionComplete = errors.New("inference: session complete")
	ErrContextFull     = errors.New("inference: context window full")
	ErrScorer          = errors.New("inference: scorer failed")
	ErrVocabMismatch   = errors.New("inference: scorer and tokenizer vocabularies differ")
)

// DefaultMaxLength is the history capacity in tokens.
const DefaultMaxLength = 2000

// DefaultSlideNewTokens bounds a round's generation under PolicySlide when
// no explicit MaxNewTokens is configured by the caller.
const DefaultSlideNewTokens = 256

// Config controls a Session.
type Config struct {
	// MaxLength caps the history, input and generated tokens together.
	MaxLength int
	// Rounds is the number of rounds before the session completes. Zero
	// means unbounded.
	Rounds int
	Policy Policy
	// SlideChunk is the eviction granularity under PolicySlide.
	SlideChunk int
	// MaxNewTokens bounds one round's generation. Zero leaves only the
	// history capacity as a bound and is rejected under PolicySlide.
	MaxNewTokens int
	// InputTimeout bounds each wait on the InputSource. Zero waits forever.
	InputTimeout time.Duration
	// Label tags metrics and logs with the scorer's precision.
	Label string
}

func DefaultConfig() Config {
	return Config{
		MaxLength:  DefaultMaxLength,
		Rounds:     5,
		Policy:     PolicyStop,
		SlideChunk: 256,
		Label:      "fp32",
	}
}

func (c Config) Validate() error {
	if c.MaxLength < 2 {
		return fmt.Errorf("inference: max length must be at least 2, got %d", c.MaxLength)
	}
	if c.Rounds < 0 {
		return fmt.Errorf("inference: rounds must not be negative, got %d", c.Rounds)
	}
	if c.MaxNewTokens < 0 {
		return fmt.Errorf("inference: max new tokens must not be negative, got %d", c.MaxNewTokens)
	}
	if c.InputTimeout < 0 {
		return fmt.Errorf("inference: input timeout must not be negative, got %s", c.InputTimeout)
	}
	switch c.Policy {
	case PolicyStop:
	case PolicySlide:
		if c.SlideChunk < 1 {
			return fmt.Errorf("inference: slide chunk must be positive, got %d", c.SlideChunk)
		}
		if c.MaxNewTokens == 0 || c.MaxNewTokens >= c.MaxLength {
			return fmt.Errorf("inference: slide policy needs 0 < max new tokens < max length, got %d", c.MaxNewTokens)
		}
	default:
		return fmt.Errorf("inference: unknown context policy %q", c.Policy)
	}
	return nil
}
