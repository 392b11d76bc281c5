package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/samcharles93/quantchat/internal/inference"
)

func TestConsoleOutput(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	con := &console{out: &out}
	con.prompt()
	con.reply("quantchat-mini", inference.Round{Text: "hi\x00 there"})
	con.done()

	lines := strings.Split(strings.TrimSuffix(out.String(), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %q, want two lines", out.String())
	}
	if !strings.HasPrefix(lines[0], ">> You: quantchat-mini: ") {
		t.Fatalf("reply line: got %q", lines[0])
	}
	if strings.ContainsRune(lines[0], 0) {
		t.Fatalf("control byte leaked into output: %q", lines[0])
	}
	if lines[1] != "[CODE_SAMPLE_COMPLETED_SUCCESFULLY]" {
		t.Fatalf("marker: got %q", lines[1])
	}
}

func TestConsolePipedInput(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	con := &console{out: &out}
	src := con.inputSource(strings.NewReader("one\ntwo\n"), false)

	ctx := context.Background()
	for _, want := range []string{"one", "two"} {
		got, err := src.Next(ctx)
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if got != want {
			t.Fatalf("got %q, want %q", got, want)
		}
	}
	if _, err := src.Next(ctx); !errors.Is(err, io.EOF) {
		t.Fatalf("got %v, want io.EOF", err)
	}
	if got := strings.Count(out.String(), promptText); got != 3 {
		t.Fatalf("prompts: got %d, want 3", got)
	}
}
