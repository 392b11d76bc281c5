package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the quantchat configuration file
// ($XDG_CONFIG_HOME/quantchat/config.yaml). Pointer fields distinguish
// "not set" from zero values.
type Config struct {
	Model     string `yaml:"model"`
	ModelsDir string `yaml:"models_dir"`

	// Sampling defaults
	TopK *int64   `yaml:"top_k"`
	TopP *float64 `yaml:"top_p"`
	Seed *int64   `yaml:"seed"`

	// Session
	Rounds       *int64         `yaml:"rounds"`
	MaxLength    *int64         `yaml:"max_length"`
	MaxNewTokens *int64         `yaml:"max_new_tokens"`
	Policy       string         `yaml:"policy"`
	InputTimeout *time.Duration `yaml:"input_timeout"`

	// Quantization
	Bits *int64 `yaml:"bits"`

	// Output
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// Server
	ServerAddress  string `yaml:"server_address"`
	MetricsAddress string `yaml:"metrics_address"`
}

// flagSetter is the part of *cli.Command the apply functions need.
type flagSetter interface {
	IsSet(name string) bool
}

func configPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "quantchat", "config.yaml")
}

// LoadConfig reads the config file. Returns a zero Config if the file doesn't
// exist or cannot be parsed.
func LoadConfig() Config {
	path := configPath()
	if path == "" {
		return Config{}
	}
	cfg, err := loadConfig(path)
	if err != nil {
		return Config{}
	}
	return cfg
}

func loadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

func applyLoggingConfig(c flagSetter, cfg Config) {
	if cfg.LogLevel != "" && !c.IsSet("log-level") {
		logLevel = cfg.LogLevel
	}
	if cfg.LogFormat != "" && !c.IsSet("log-format") {
		logFormat = cfg.LogFormat
	}
}

// applyModelConfig applies config file defaults shared by every command that
// loads a model.
func applyModelConfig(c flagSetter, cfg Config) {
	if cfg.Model != "" && !c.IsSet("model") {
		modelID = cfg.Model
	}
	if cfg.Bits != nil && !c.IsSet("bits") {
		quantBits = *cfg.Bits
	}
}

// applySessionConfig applies config file defaults to session options when the
// corresponding CLI flag was not explicitly set.
func applySessionConfig(c flagSetter, cfg Config, o *sessionOptions) {
	if cfg.TopK != nil && !c.IsSet("top-k") {
		o.topK = *cfg.TopK
	}
	if cfg.TopP != nil && !c.IsSet("top-p") {
		o.topP = *cfg.TopP
	}
	if cfg.Seed != nil && !c.IsSet("seed") {
		o.seed = *cfg.Seed
	}
	if cfg.Rounds != nil && !c.IsSet("rounds") {
		o.rounds = *cfg.Rounds
	}
	if cfg.MaxLength != nil && !c.IsSet("max-length") {
		o.maxLength = *cfg.MaxLength
	}
	if cfg.MaxNewTokens != nil && !c.IsSet("max-new-tokens") {
		o.maxNewTokens = *cfg.MaxNewTokens
	}
	if cfg.Policy != "" && !c.IsSet("policy") {
		o.policy = cfg.Policy
	}
	if cfg.InputTimeout != nil && !c.IsSet("input-timeout") {
		o.inputTimeout = *cfg.InputTimeout
	}
}

// applyServeConfig applies config file defaults to serve command variables.
func applyServeConfig(c flagSetter, cfg Config, addr, metricsAddr, modelsPath *string) {
	if cfg.ServerAddress != "" && !c.IsSet("addr") {
		*addr = cfg.ServerAddress
	}
	if cfg.MetricsAddress != "" && !c.IsSet("metrics-addr") {
		*metricsAddr = cfg.MetricsAddress
	}
	if cfg.ModelsDir != "" && !c.IsSet("models-path") {
		*modelsPath = cfg.ModelsDir
	}
}
