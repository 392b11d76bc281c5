package inference

import (
	"bufio"
	"context"
	"io"
	"sync"
)

type lineResult struct {
	text string
	err  error
}

// LineSource reads newline-terminated input from a reader. Reads happen on a
// background goroutine so that Next can give up on ctx; a read that is still
// blocked when the caller gives up is delivered to the next call. Close stops
// the goroutine once its current read returns.
type LineSource struct {
	r         io.Reader
	once      sync.Once
	closeOnce sync.Once
	lines     chan lineResult
	stop      chan struct{}
	exited    chan struct{}
	// Prompt, when set, is called before each wait for a line.
	Prompt func()
}

func NewLineSource(r io.Reader) *LineSource {
	return &LineSource{
		r:      r,
		lines:  make(chan lineResult),
		stop:   make(chan struct{}),
		exited: make(chan struct{}),
	}
}

func (s *LineSource) start() {
	go func() {
		defer close(s.exited)
		sc := bufio.NewScanner(s.r)
		sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
		for sc.Scan() {
			if !s.send(lineResult{text: sc.Text()}) {
				return
			}
		}
		err := sc.Err()
		if err == nil {
			err = io.EOF
		}
		if s.send(lineResult{err: err}) {
			close(s.lines)
		}
	}()
}

func (s *LineSource) send(res lineResult) bool {
	select {
	case s.lines <- res:
		return true
	case <-s.stop:
		return false
	}
}

func (s *LineSource) Next(ctx context.Context) (string, error) {
	s.once.Do(s.start)
	select {
	case <-s.stop:
		return "", io.EOF
	default:
	}
	if s.Prompt != nil {
		s.Prompt()
	}
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-s.stop:
		return "", io.EOF
	case res, ok := <-s.lines:
		if !ok {
			return "", io.EOF
		}
		return res.text, res.err
	}
}

// Close releases the reader goroutine. Next reports io.EOF afterwards. It
// does not close the underlying reader.
func (s *LineSource) Close() error {
	s.closeOnce.Do(func() {
		close(s.stop)
		// Never started: mark it exited so nothing waits on it.
		s.once.Do(func() { close(s.exited) })
	})
	return nil
}

// StaticSource replays a fixed list of inputs, then reports io.EOF.
type StaticSource struct {
	mu    sync.Mutex
	lines []string
}

func NewStaticSource(lines ...string) *StaticSource {
	return &StaticSource{lines: append([]string(nil), lines...)}
}

func (s *StaticSource) Next(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.lines) == 0 {
		return "", io.EOF
	}
	line := s.lines[0]
	s.lines = s.lines[1:]
	return line, nil
}
