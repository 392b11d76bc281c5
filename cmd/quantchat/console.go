package main

import (
	"context"
	"fmt"
	"io"

	"github.com/samcharles93/quantchat/internal/inference"
)

const (
	promptText    = ">> You: "
	successMarker = "[CODE_SAMPLE_COMPLETED_SUCCESFULLY]"
)

// console renders the chat surface: one prompt per round and one reply line.
type console struct {
	out io.Writer
}

func (c *console) prompt() {
	fmt.Fprint(c.out, promptText)
}

func (c *console) reply(name string, r inference.Round) {
	fmt.Fprintf(c.out, "%s: %s\n", name, inference.DisplayText(r.Text))
}

func (c *console) done() {
	fmt.Fprintln(c.out, successMarker)
}

// inputSource picks a line editor for terminals and a plain line reader for
// pipes and files.
func (c *console) inputSource(r io.Reader, tty bool) inference.InputSource {
	if tty {
		return &ttySource{ed: newLineEditor(c.out, promptText)}
	}
	src := inference.NewLineSource(r)
	src.Prompt = c.prompt
	return src
}

type lineRead struct {
	text string
	err  error
}

// ttySource reads edited lines from the terminal. A read abandoned because
// ctx ended is delivered to the next call.
type ttySource struct {
	ed      *lineEditor
	pending chan lineRead
}

func (s *ttySource) Next(ctx context.Context) (string, error) {
	if s.pending == nil {
		s.pending = make(chan lineRead, 1)
		go func(ch chan<- lineRead) {
			text, err := readRawLine(s.ed)
			ch <- lineRead{text: text, err: err}
		}(s.pending)
	}
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-s.pending:
		s.pending = nil
		return res.text, res.err
	}
}
