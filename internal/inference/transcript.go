package inference

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/goccy/go-json"
)

// Turn is one exchange in a Transcript.
type Turn struct {
	Round       int          `json:"round"`
	User        string       `json:"user"`
	Assistant   string       `json:"assistant"`
	Finish      FinishReason `json:"finish"`
	Truncated   bool         `json:"truncated"`
	InputTokens int          `json:"input_tokens"`
	Generated   int          `json:"generated"`
	Evicted     int          `json:"evicted,omitempty"`
	HistoryLen  int          `json:"history_len"`
}

// Transcript records the completed rounds of a session.
type Transcript struct {
	Model   string    `json:"model"`
	Started time.Time `json:"started"`
	Turns   []Turn    `json:"turns"`
}

func (t *Transcript) add(r Round) {
	t.Turns = append(t.Turns, Turn{
		Round:       r.Index,
		User:        r.Input,
		Assistant:   r.Text,
		Finish:      r.Finish,
		Truncated:   r.Truncated,
		InputTokens: r.InputTokens,
		Generated:   r.Generated,
		Evicted:     r.Evicted,
		HistoryLen:  r.HistoryLen,
	})
}

// WriteJSON encodes t as indented JSON.
func (t Transcript) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(t)
}

// Save writes t to path, replacing any existing file.
func (t Transcript) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create transcript: %w", err)
	}
	if err := t.WriteJSON(f); err != nil {
		_ = f.Close()
		return fmt.Errorf("write transcript: %w", err)
	}
	return f.Close()
}
