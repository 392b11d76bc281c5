package tokenizer

import (
	"errors"
	"reflect"
	"testing"
)

func TestByteRoundTrip(t *testing.T) {
	t.Parallel()
	tok := NewByteTokenizer()
	for _, text := range []string{"", "Hello", "multi\nline\ttext", "héllo wörld ✓", "日本語"} {
		ids, err := tok.Encode(text)
		if err != nil {
			t.Fatalf("Encode(%q): %v", text, err)
		}
		got, err := tok.Decode(ids)
		if err != nil {
			t.Fatalf("Decode(%q): %v", text, err)
		}
		if got != text {
			t.Fatalf("round trip: got %q, want %q", got, text)
		}
	}
}

func TestByteDecodeSkipsSpecials(t *testing.T) {
	t.Parallel()
	tok := NewByteTokenizer()
	got, err := tok.Decode([]int{'h', 'i', ByteEndOfInput, BytePad, ByteEOS})
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got != "hi" {
		t.Fatalf("got %q, want %q", got, "hi")
	}
}

func TestByteDecodeRejectsUnknown(t *testing.T) {
	t.Parallel()
	tok := NewByteTokenizer()
	for _, id := range []int{-1, ByteVocabSize, 1 << 20} {
		if _, err := tok.Decode([]int{id}); !errors.Is(err, ErrUnknownToken) {
			t.Fatalf("Decode(%d): expected ErrUnknownToken, got %v", id, err)
		}
	}
}

func TestByteSpecials(t *testing.T) {
	t.Parallel()
	tok := NewByteTokenizer()
	if tok.EOSTokenID() != ByteEOS {
		t.Fatalf("EOSTokenID: got %d", tok.EOSTokenID())
	}
	if tok.VocabSize() != ByteVocabSize {
		t.Fatalf("VocabSize: got %d", tok.VocabSize())
	}
	if s := tok.TokenString(ByteEndOfInput); s != "<|user_end|>" {
		t.Fatalf("TokenString: got %q", s)
	}
	if s := tok.TokenString('A'); s != "<0x41>" {
		t.Fatalf("TokenString: got %q", s)
	}
}

func TestPadTo(t *testing.T) {
	t.Parallel()
	left := TokenizerConfig{PADTokenID: 9}
	right := TokenizerConfig{PADTokenID: 9, PaddingSide: PadRight}
	cases := []struct {
		name string
		cfg  TokenizerConfig
		ids  []int
		n    int
		want []int
	}{
		{"left-default", left, []int{1, 2}, 4, []int{9, 9, 1, 2}},
		{"right", right, []int{1, 2}, 4, []int{1, 2, 9, 9}},
		{"trim-keeps-tail", left, []int{1, 2, 3, 4}, 2, []int{3, 4}},
		{"exact", left, []int{1, 2}, 2, []int{1, 2}},
		{"zero", left, []int{1}, 0, []int{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.cfg.PadTo(tc.ids, tc.n); !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("got %v, want %v", got, tc.want)
			}
		})
	}
}
