package tokenizer

import "errors"

// ErrUnknownToken is returned by Decode for ids outside the vocabulary.
var ErrUnknownToken = errors.New("tokenizer: unknown token id")

// Tokenizer maps text to token ids and back. Implementations must expose a
// fixed vocabulary and an end-of-sequence id.
type Tokenizer interface {
	Encode(text string) ([]int, error)
	Decode(ids []int) (string, error)
	EOSTokenID() int
	VocabSize() int
	Config() TokenizerConfig
}
