package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/samcharles93/quantchat/internal/inference"
	"github.com/samcharles93/quantchat/internal/quant"
	"github.com/samcharles93/quantchat/internal/tokenizer"
)

func TestSessionConfigSlideDefault(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		opts sessionOptions
		want int
	}{
		{name: "stop keeps zero", opts: sessionOptions{maxLength: 2000, policy: "stop"}, want: 0},
		{name: "slide fills default", opts: sessionOptions{maxLength: 2000, policy: "slide"}, want: inference.DefaultSlideNewTokens},
		{name: "slide small history", opts: sessionOptions{maxLength: 100, policy: "slide"}, want: 50},
		{name: "slide explicit", opts: sessionOptions{maxLength: 2000, maxNewTokens: 64, policy: "slide"}, want: 64},
	}
	for _, tt := range tests {
		cfg := tt.opts.sessionConfig("int8")
		if cfg.MaxNewTokens != tt.want {
			t.Fatalf("%s: got %d, want %d", tt.name, cfg.MaxNewTokens, tt.want)
		}
		if cfg.Label != "int8" {
			t.Fatalf("%s: label got %q", tt.name, cfg.Label)
		}
	}
}

func TestLoadModel(t *testing.T) {
	t.Parallel()

	m, err := loadModel("quantchat-mini")
	if err != nil {
		t.Fatalf("preset: %v", err)
	}
	if m.Name() != "quantchat-mini" {
		t.Fatalf("preset name: got %q", m.Name())
	}

	path := filepath.Join(t.TempDir(), "tiny.yaml")
	if err := os.WriteFile(path, []byte("base: quantchat-mini\nname: tiny\nnum_layers: 1\n"), 0o644); err != nil {
		t.Fatalf("write card: %v", err)
	}
	m, err = loadModel(path)
	if err != nil {
		t.Fatalf("card: %v", err)
	}
	if m.Name() != "tiny" || m.Config.NumLayers != 1 {
		t.Fatalf("card: got name=%q layers=%d", m.Name(), m.Config.NumLayers)
	}

	if _, err := loadModel("no-such-model"); err == nil {
		t.Fatalf("expected error for unknown model")
	}
}

func TestConvertAndReport(t *testing.T) {
	t.Parallel()

	m, err := loadModel("quantchat-mini")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	_, rep, err := convertModel(context.Background(), m, tokenizer.NewByteTokenizer(), quant.DefaultConfig())
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	var buf bytes.Buffer
	if err := writeReport(&buf, rep); err != nil {
		t.Fatalf("writeReport: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"quantchat-mini", "LAYER", "quantized", "full precision", "embed_tokens"} {
		if !strings.Contains(out, want) {
			t.Fatalf("report missing %q:\n%s", want, out)
		}
	}
}

func TestWriteBenchText(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	r := benchReport{Model: "quantchat-mini", InputLength: 64, Speedup: 2.5}
	if err := writeBenchText(&buf, r); err != nil {
		t.Fatalf("writeBenchText: %v", err)
	}
	if !strings.Contains(buf.String(), "Speedup:    2.50x") {
		t.Fatalf("got:\n%s", buf.String())
	}
}
