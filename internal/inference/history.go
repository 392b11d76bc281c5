package inference

import "fmt"

// History is the conversation token buffer. Its backing array is allocated
// once at capacity and never grows, so Len never exceeds Cap.
type History struct {
	buf []int
}

// NewHistory returns an empty history holding at most maxLen tokens.
func NewHistory(maxLen int) *History {
	return &History{buf: make([]int, 0, max(maxLen, 0))}
}

func (h *History) Len() int       { return len(h.buf) }
func (h *History) Cap() int       { return cap(h.buf) }
func (h *History) Remaining() int { return cap(h.buf) - len(h.buf) }

// Append adds ids to the end of the history. Either all ids are appended or,
// when they do not fit, none are and ErrContextFull is returned.
func (h *History) Append(ids ...int) error {
	if len(ids) > h.Remaining() {
		return fmt.Errorf("%w: %d tokens, %d free", ErrContextFull, len(ids), h.Remaining())
	}
	h.buf = append(h.buf, ids...)
	return nil
}

// Tokens returns a copy of the current sequence.
func (h *History) Tokens() []int {
	return append([]int(nil), h.buf...)
}

// Snapshot captures the current contents for a later Restore.
func (h *History) Snapshot() []int { return h.Tokens() }

// Restore replaces the contents with a snapshot taken from this history.
func (h *History) Restore(snap []int) {
	n := min(len(snap), cap(h.buf))
	h.buf = h.buf[:n]
	copy(h.buf, snap[:n])
}

// EvictFront drops up to n of the oldest tokens and returns how many were
// removed.
func (h *History) EvictFront(n int) int {
	n = max(0, min(n, len(h.buf)))
	if n == 0 {
		return 0
	}
	kept := copy(h.buf, h.buf[n:])
	h.buf = h.buf[:kept]
	return n
}

// Reset empties the history without releasing its storage.
func (h *History) Reset() { h.buf = h.buf[:0] }
