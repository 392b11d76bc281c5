package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

type fakeFlags map[string]bool

func (f fakeFlags) IsSet(name string) bool { return f[name] }

func TestLoadConfig(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `model: quantchat-mini
top_k: 20
top_p: 0.8
rounds: 3
policy: slide
input_timeout: 30s
server_address: 0.0.0.0:9000
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := loadConfig(path)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Model != "quantchat-mini" || cfg.Policy != "slide" || cfg.ServerAddress != "0.0.0.0:9000" {
		t.Fatalf("strings: got %+v", cfg)
	}
	if cfg.TopK == nil || *cfg.TopK != 20 {
		t.Fatalf("top_k: got %v, want 20", cfg.TopK)
	}
	if cfg.TopP == nil || *cfg.TopP != 0.8 {
		t.Fatalf("top_p: got %v, want 0.8", cfg.TopP)
	}
	if cfg.InputTimeout == nil || *cfg.InputTimeout != 30*time.Second {
		t.Fatalf("input_timeout: got %v, want 30s", cfg.InputTimeout)
	}
	if cfg.Seed != nil || cfg.MaxLength != nil {
		t.Fatalf("unset fields must stay nil: got seed=%v max_length=%v", cfg.Seed, cfg.MaxLength)
	}
}

func TestLoadConfigErrors(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	if _, err := loadConfig(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
	bad := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(bad, []byte("top_k: [1, 2"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := loadConfig(bad); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestApplySessionConfigRespectsFlags(t *testing.T) {
	t.Parallel()

	topK, rounds := int64(10), int64(9)
	seed := int64(123)
	cfg := Config{TopK: &topK, Rounds: &rounds, Seed: &seed, Policy: "slide"}
	o := sessionOptions{topK: 50, rounds: 5, seed: 42, policy: "stop"}

	applySessionConfig(fakeFlags{"rounds": true}, cfg, &o)
	if o.topK != 10 {
		t.Fatalf("top-k: got %d, want 10", o.topK)
	}
	if o.rounds != 5 {
		t.Fatalf("explicit --rounds overridden: got %d, want 5", o.rounds)
	}
	if o.seed != 123 || o.policy != "slide" {
		t.Fatalf("got seed=%d policy=%q", o.seed, o.policy)
	}
}

func TestApplyServeConfig(t *testing.T) {
	t.Parallel()

	cfg := Config{ServerAddress: "0.0.0.0:9000", MetricsAddress: ":9100", ModelsDir: "/srv/models"}
	addr, metricsAddr, models := "127.0.0.1:8080", "", ""
	applyServeConfig(fakeFlags{"addr": true}, cfg, &addr, &metricsAddr, &models)
	if addr != "127.0.0.1:8080" {
		t.Fatalf("explicit --addr overridden: got %q", addr)
	}
	if metricsAddr != ":9100" || models != "/srv/models" {
		t.Fatalf("got metrics=%q models=%q", metricsAddr, models)
	}
}

func TestConfigPathUsesXDG(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	if got, want := configPath(), filepath.Join(dir, "quantchat", "config.yaml"); got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}
