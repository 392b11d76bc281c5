package model

import (
	"errors"
	"fmt"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/samcharles93/quantchat/internal/tokenizer"
)

// DefaultModelID is loaded when no model is named explicitly.
const DefaultModelID = "quantchat-base"

var ErrUnknownModel = errors.New("model: unknown model id")

// Config describes the shape of a reference model. Weights are generated
// deterministically from Seed, so two models with equal configs are equal.
type Config struct {
	Name             string  `yaml:"name"`
	VocabSize        int     `yaml:"vocab_size"`
	HiddenSize       int     `yaml:"hidden_size"`
	IntermediateSize int     `yaml:"intermediate_size"`
	NumLayers        int     `yaml:"num_layers"`
	MaxSeqLen        int     `yaml:"max_seq_len"`
	ContextDecay     float64 `yaml:"context_decay"`
	RMSNormEps       float64 `yaml:"rms_norm_eps"`
	Seed             int64   `yaml:"seed"`

	// EOSTokenID receives EOSBias on the output head; printable ASCII bytes
	// receive PrintableBias.
	EOSTokenID    int     `yaml:"eos_token_id"`
	EOSBias       float32 `yaml:"eos_bias"`
	PrintableBias float32 `yaml:"printable_bias"`
}

// Validate reports the first inconsistency in c.
func (c Config) Validate() error {
	switch {
	case c.VocabSize <= 0:
		return fmt.Errorf("model: vocab_size must be positive, got %d", c.VocabSize)
	case c.HiddenSize <= 0:
		return fmt.Errorf("model: hidden_size must be positive, got %d", c.HiddenSize)
	case c.IntermediateSize <= 0:
		return fmt.Errorf("model: intermediate_size must be positive, got %d", c.IntermediateSize)
	case c.NumLayers < 0:
		return fmt.Errorf("model: num_layers must not be negative, got %d", c.NumLayers)
	case c.MaxSeqLen <= 0:
		return fmt.Errorf("model: max_seq_len must be positive, got %d", c.MaxSeqLen)
	case c.ContextDecay < 0 || c.ContextDecay >= 1:
		return fmt.Errorf("model: context_decay must be in [0, 1), got %g", c.ContextDecay)
	case c.RMSNormEps <= 0:
		return fmt.Errorf("model: rms_norm_eps must be positive, got %g", c.RMSNormEps)
	case c.EOSTokenID < 0 || c.EOSTokenID >= c.VocabSize:
		return fmt.Errorf("model: eos_token_id %d outside vocabulary of %d", c.EOSTokenID, c.VocabSize)
	}
	return nil
}

func baseConfig(name string, hidden, inter, layers int, seed int64) Config {
	return Config{
		Name:             name,
		VocabSize:        tokenizer.ByteVocabSize,
		HiddenSize:       hidden,
		IntermediateSize: inter,
		NumLayers:        layers,
		MaxSeqLen:        2048,
		ContextDecay:     0.9,
		RMSNormEps:       1e-5,
		Seed:             seed,
		EOSTokenID:       tokenizer.ByteEOS,
		EOSBias:          4.5,
		PrintableBias:    3,
	}
}

// The mini preset has a hidden width that is not block aligned, so its
// input-side projections stay in full precision after conversion.
var presets = map[string]Config{
	"quantchat-mini":  baseConfig("quantchat-mini", 48, 96, 2, 7),
	"quantchat-base":  baseConfig("quantchat-base", 128, 256, 4, 42),
	"quantchat-large": baseConfig("quantchat-large", 256, 768, 6, 1337),
}

// Presets returns the built-in model ids in sorted order.
func Presets() []string {
	ids := make([]string, 0, len(presets))
	for id := range presets {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// PresetConfig returns the configuration registered under id.
func PresetConfig(id string) (Config, error) {
	cfg, ok := presets[id]
	if !ok {
		return Config{}, fmt.Errorf("%w: %q", ErrUnknownModel, id)
	}
	return cfg, nil
}

// Load builds the preset model registered under id. An empty id selects
// DefaultModelID. The returned model is in eval mode.
func Load(id string) (*Model, error) {
	if id == "" {
		id = DefaultModelID
	}
	cfg, err := PresetConfig(id)
	if err != nil {
		return nil, err
	}
	return New(cfg)
}

// Card is the on-disk YAML description of a model. When Base names a preset,
// the remaining fields override that preset.
type Card struct {
	Base   string `yaml:"base"`
	Config `yaml:",inline"`
}

// LoadCard reads a YAML model card from path and builds the model it
// describes.
func LoadCard(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model card: %w", err)
	}
	cfg, err := ParseCard(data)
	if err != nil {
		return nil, fmt.Errorf("model card %s: %w", path, err)
	}
	return New(cfg)
}

// ParseCard decodes a model card. Fields absent from the document keep the
// values of the base preset.
func ParseCard(data []byte) (Config, error) {
	var head struct {
		Base string `yaml:"base"`
	}
	if err := yaml.Unmarshal(data, &head); err != nil {
		return Config{}, fmt.Errorf("parse yaml: %w", err)
	}
	var card Card
	if head.Base != "" {
		base, err := PresetConfig(head.Base)
		if err != nil {
			return Config{}, err
		}
		card.Config = base
	}
	if err := yaml.Unmarshal(data, &card); err != nil {
		return Config{}, fmt.Errorf("parse yaml: %w", err)
	}
	if card.Name == "" {
		card.Name = head.Base
	}
	if err := card.Validate(); err != nil {
		return Config{}, err
	}
	return card.Config, nil
}
