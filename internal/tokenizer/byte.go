package tokenizer

import "fmt"

// Special ids of the byte-level vocabulary. Ids 0..255 are raw bytes.
const (
	ByteEOS        = 256
	ByteEndOfInput = 257
	BytePad        = 258
	ByteVocabSize  = 259
)

var byteSpecials = map[int]string{
	ByteEOS:        "<|eos|>",
	ByteEndOfInput: "<|user_end|>",
	BytePad:        "<|pad|>",
}

// ByteTokenizer encodes UTF-8 text one byte per token. Decoding drops special
// tokens, so Decode(Encode(s)) == s for every string.
type ByteTokenizer struct {
	cfg TokenizerConfig
}

func NewByteTokenizer() *ByteTokenizer {
	tokens := make([]string, ByteVocabSize)
	for i := range 256 {
		tokens[i] = fmt.Sprintf("<0x%02X>", i)
	}
	for id, s := range byteSpecials {
		tokens[id] = s
	}
	return &ByteTokenizer{cfg: TokenizerConfig{
		EOSTokenID:        ByteEOS,
		EndOfInputTokenID: ByteEndOfInput,
		PADTokenID:        BytePad,
		PaddingSide:       PadLeft,
		Tokens:            tokens,
	}}
}

func (t *ByteTokenizer) Encode(text string) ([]int, error) {
	ids := make([]int, len(text))
	for i := 0; i < len(text); i++ {
		ids[i] = int(text[i])
	}
	return ids, nil
}

func (t *ByteTokenizer) Decode(ids []int) (string, error) {
	buf := make([]byte, 0, len(ids))
	for _, id := range ids {
		switch {
		case id >= 0 && id < 256:
			buf = append(buf, byte(id))
		case id >= 256 && id < ByteVocabSize:
		default:
			return "", fmt.Errorf("%w: %d", ErrUnknownToken, id)
		}
	}
	return string(buf), nil
}

func (t *ByteTokenizer) EOSTokenID() int         { return t.cfg.EOSTokenID }
func (t *ByteTokenizer) VocabSize() int          { return ByteVocabSize }
func (t *ByteTokenizer) Config() TokenizerConfig { return t.cfg }

// TokenString returns the printable form of id, "" when out of range.
func (t *ByteTokenizer) TokenString(id int) string { return t.cfg.TokenString(id) }
