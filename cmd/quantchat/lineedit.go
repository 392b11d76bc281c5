package main

import (
	"fmt"
	"io"
	"strings"
)

type editResult int

const (
	editContinue editResult = iota
	editDone
	editEOF
)

// lineEditor is a minimal raw-mode line editor: cursor movement, word
// deletion and an in-memory history. It consumes one byte at a time so the
// terminal handling stays in the platform files.
type lineEditor struct {
	out     io.Writer
	prompt  string
	history []string

	line     []byte
	cursor   int
	histPos  int
	browsing bool
	draft    string
	escState int
	escBuf   strings.Builder
}

func newLineEditor(out io.Writer, prompt string) *lineEditor {
	return &lineEditor{out: out, prompt: prompt}
}

// begin prints the prompt and clears the line for a new read.
func (e *lineEditor) begin() {
	e.line = e.line[:0]
	e.cursor = 0
	e.histPos = len(e.history)
	e.browsing = false
	e.escState = 0
	fmt.Fprint(e.out, e.prompt)
}

func (e *lineEditor) text() string { return string(e.line) }

func (e *lineEditor) redraw() {
	fmt.Fprintf(e.out, "\r%s%s\x1b[K", e.prompt, e.line)
	if e.cursor < len(e.line) {
		fmt.Fprintf(e.out, "\r%s%s", e.prompt, e.line[:e.cursor])
	}
}

func isBlank(b byte) bool { return b == ' ' || b == '\t' }

func (e *lineEditor) wordLeft() int {
	i := e.cursor
	for i > 0 && isBlank(e.line[i-1]) {
		i--
	}
	for i > 0 && !isBlank(e.line[i-1]) {
		i--
	}
	return i
}

func (e *lineEditor) wordRight() int {
	i := e.cursor
	for i < len(e.line) && isBlank(e.line[i]) {
		i++
	}
	for i < len(e.line) && !isBlank(e.line[i]) {
		i++
	}
	return i
}

func (e *lineEditor) setLine(s string) {
	e.line = append(e.line[:0], s...)
	e.cursor = len(e.line)
	e.redraw()
}

func (e *lineEditor) historyPrev() {
	if len(e.history) == 0 {
		return
	}
	if !e.browsing {
		e.draft = string(e.line)
		e.browsing = true
		e.histPos = len(e.history)
	}
	if e.histPos > 0 {
		e.histPos--
		e.setLine(e.history[e.histPos])
	}
}

func (e *lineEditor) historyNext() {
	if !e.browsing {
		return
	}
	if e.histPos < len(e.history)-1 {
		e.histPos++
		e.setLine(e.history[e.histPos])
		return
	}
	e.histPos = len(e.history)
	e.browsing = false
	e.setLine(e.draft)
}

func (e *lineEditor) csi(seq string) {
	switch seq {
	case "A":
		e.historyPrev()
	case "B":
		e.historyNext()
	case "C":
		if e.cursor < len(e.line) {
			e.cursor++
			e.redraw()
		}
	case "D":
		if e.cursor > 0 {
			e.cursor--
			e.redraw()
		}
	case "H":
		e.cursor = 0
		e.redraw()
	case "F":
		e.cursor = len(e.line)
		e.redraw()
	case "3~":
		if e.cursor < len(e.line) {
			e.line = append(e.line[:e.cursor], e.line[e.cursor+1:]...)
			e.redraw()
		}
	case "1;5D":
		e.cursor = e.wordLeft()
		e.redraw()
	case "1;5C":
		e.cursor = e.wordRight()
		e.redraw()
	}
}

// feed processes one input byte.
func (e *lineEditor) feed(b byte) editResult {
	switch e.escState {
	case 1:
		e.escState = 0
		switch b {
		case '[':
			e.escState = 2
			e.escBuf.Reset()
		case 'b':
			e.cursor = e.wordLeft()
			e.redraw()
		case 'f':
			e.cursor = e.wordRight()
			e.redraw()
		}
		return editContinue
	case 2:
		e.escBuf.WriteByte(b)
		if (b >= 'A' && b <= 'Z') || (b >= 'a' && b <= 'z') || b == '~' {
			e.escState = 0
			e.csi(e.escBuf.String())
		}
		return editContinue
	}

	switch b {
	case 27:
		e.escState = 1
	case '\r', '\n':
		fmt.Fprint(e.out, "\r\n")
		if strings.TrimSpace(string(e.line)) != "" {
			e.history = append(e.history, string(e.line))
		}
		return editDone
	case 3: // Ctrl+C
		fmt.Fprint(e.out, "^C\r\n")
		return editEOF
	case 4: // Ctrl+D
		if len(e.line) == 0 {
			fmt.Fprint(e.out, "\r\n")
			return editEOF
		}
	case 127, 8:
		if e.cursor > 0 {
			e.line = append(e.line[:e.cursor-1], e.line[e.cursor:]...)
			e.cursor--
			e.redraw()
		}
	case 1: // Ctrl+A
		e.cursor = 0
		e.redraw()
	case 5: // Ctrl+E
		e.cursor = len(e.line)
		e.redraw()
	case 23: // Ctrl+W
		start := e.wordLeft()
		e.line = append(e.line[:start], e.line[e.cursor:]...)
		e.cursor = start
		e.redraw()
	default:
		if b >= 32 {
			e.line = append(e.line, 0)
			copy(e.line[e.cursor+1:], e.line[e.cursor:])
			e.line[e.cursor] = b
			e.cursor++
			e.redraw()
		}
	}
	return editContinue
}
