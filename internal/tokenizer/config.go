package tokenizer

// PaddingSide selects where PadTo inserts pad tokens.
type PaddingSide string

const (
	PadLeft  PaddingSide = "left"
	PadRight PaddingSide = "right"
)

// TokenizerConfig carries the special token ids and padding policy that the
// generation loop and the benchmark need from a tokenizer.
type TokenizerConfig struct {
	EOSTokenID        int
	EndOfInputTokenID int
	PADTokenID        int
	PaddingSide       PaddingSide
	Tokens            []string
}

// TokenString returns the string for a token id when available.
func (t TokenizerConfig) TokenString(id int) string {
	if id < 0 || id >= len(t.Tokens) {
		return ""
	}
	return t.Tokens[id]
}

// PadTo pads or trims ids to exactly n tokens. Trimming keeps the most
// recent tokens, padding follows PaddingSide (left when unset).
func (t TokenizerConfig) PadTo(ids []int, n int) []int {
	if n <= 0 {
		return []int{}
	}
	if len(ids) >= n {
		return append([]int(nil), ids[len(ids)-n:]...)
	}
	out := make([]int, 0, n)
	pad := n - len(ids)
	if t.PaddingSide == PadRight {
		out = append(out, ids...)
		for range pad {
			out = append(out, t.PADTokenID)
		}
		return out
	}
	for range pad {
		out = append(out, t.PADTokenID)
	}
	return append(out, ids...)
}
