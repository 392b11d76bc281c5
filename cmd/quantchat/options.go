package main

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/quantchat/internal/bench"
	"github.com/samcharles93/quantchat/internal/inference"
	"github.com/samcharles93/quantchat/internal/logits"
	"github.com/samcharles93/quantchat/internal/model"
	"github.com/samcharles93/quantchat/internal/quant"
	"github.com/samcharles93/quantchat/internal/tokenizer"
)

// probeLength is the length of the synthetic sequence traced during
// conversion.
const probeLength = 16

type sessionOptions struct {
	topK         int64
	topP         float64
	seed         int64
	rounds       int64
	maxLength    int64
	maxNewTokens int64
	policy       string
	inputTimeout time.Duration
}

func sessionFlags(o *sessionOptions) []cli.Flag {
	sampler := logits.DefaultConfig()
	sess := inference.DefaultConfig()
	return []cli.Flag{
		&cli.Int64Flag{
			Name:        "top-k",
			Aliases:     []string{"k"},
			Usage:       "keep the k most likely tokens",
			Value:       int64(sampler.TopK),
			Destination: &o.topK,
		},
		&cli.Float64Flag{
			Name:        "top-p",
			Aliases:     []string{"p"},
			Usage:       "keep the smallest prefix holding this much probability mass",
			Value:       sampler.TopP,
			Destination: &o.topP,
		},
		&cli.Int64Flag{
			Name:        "seed",
			Usage:       "sampler seed",
			Value:       sampler.Seed,
			Destination: &o.seed,
		},
		&cli.Int64Flag{
			Name:        "rounds",
			Aliases:     []string{"n"},
			Usage:       "rounds before the session completes (0 = unbounded)",
			Value:       int64(sess.Rounds),
			Destination: &o.rounds,
		},
		&cli.Int64Flag{
			Name:        "max-length",
			Usage:       "history capacity in tokens",
			Value:       int64(sess.MaxLength),
			Destination: &o.maxLength,
		},
		&cli.Int64Flag{
			Name:        "max-new-tokens",
			Usage:       "per-round generation limit (0 = history capacity only)",
			Destination: &o.maxNewTokens,
		},
		&cli.StringFlag{
			Name:        "policy",
			Usage:       "full history policy (stop, slide)",
			Value:       string(sess.Policy),
			Destination: &o.policy,
		},
		&cli.DurationFlag{
			Name:        "input-timeout",
			Usage:       "give up waiting for input after this long (0 = wait forever)",
			Destination: &o.inputTimeout,
		},
	}
}

func (o sessionOptions) samplerConfig() logits.Config {
	return logits.Config{TopK: int(o.topK), TopP: o.topP, Seed: o.seed}
}

func (o sessionOptions) sessionConfig(label string) inference.Config {
	cfg := inference.DefaultConfig()
	cfg.MaxLength = int(o.maxLength)
	cfg.Rounds = int(o.rounds)
	cfg.Policy = inference.Policy(o.policy)
	cfg.MaxNewTokens = int(o.maxNewTokens)
	cfg.InputTimeout = o.inputTimeout
	cfg.Label = label
	if cfg.Policy == inference.PolicySlide && cfg.MaxNewTokens == 0 {
		cfg.MaxNewTokens = min(inference.DefaultSlideNewTokens, cfg.MaxLength/2)
	}
	return cfg
}

// loadModel resolves id as a preset or, when it looks like a file, a YAML
// model card.
func loadModel(id string) (*model.Model, error) {
	ext := strings.ToLower(filepath.Ext(id))
	if strings.ContainsRune(id, filepath.Separator) || ext == ".yaml" || ext == ".yml" {
		return model.LoadCard(id)
	}
	return model.Load(id)
}

func quantConfig() quant.Config {
	cfg := quant.DefaultConfig()
	cfg.Bits = int(quantBits)
	cfg.MinElements = int(minElements)
	return cfg
}

// convertModel quantizes m, tracing it with a synthetic probe shaped like
// real tokenizer output.
func convertModel(ctx context.Context, m *model.Model, tok tokenizer.Tokenizer, cfg quant.Config) (*model.Model, quant.Report, error) {
	probe, err := bench.SyntheticInput(tok, probeLength, 1)
	if err != nil {
		return nil, quant.Report{}, err
	}
	return quant.Convert(ctx, m, probe, cfg)
}
