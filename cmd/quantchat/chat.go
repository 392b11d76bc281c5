package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/quantchat/internal/inference"
	"github.com/samcharles93/quantchat/internal/logger"
	"github.com/samcharles93/quantchat/internal/logits"
	"github.com/samcharles93/quantchat/internal/model"
	"github.com/samcharles93/quantchat/internal/tokenizer"
)

func chatCmd() *cli.Command {
	var (
		opts       sessionOptions
		fullPrec   bool
		transcript string
	)

	flags := append([]cli.Flag{}, commonModelFlags()...)
	flags = append(flags, quantFlags()...)
	flags = append(flags, sessionFlags(&opts)...)
	flags = append(flags,
		&cli.BoolFlag{
			Name:        "full-precision",
			Usage:       "chat with the unconverted model",
			Destination: &fullPrec,
		},
		&cli.StringFlag{
			Name:        "transcript",
			Usage:       "write the session transcript as JSON to this path",
			Destination: &transcript,
		},
	)

	return &cli.Command{
		Name:  "chat",
		Usage: "Chat with a quantized model on the console",
		Flags: flags,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			applyModelConfig(cmd, fileCfg)
			applySessionConfig(cmd, fileCfg, &opts)
			log := logger.FromContext(ctx)

			m, err := loadModel(modelID)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: load model: %v", err), 1)
			}
			tok := tokenizer.NewByteTokenizer()

			var scorer model.Scorer = m
			label := "fp32"
			if !fullPrec {
				qm, rep, err := convertModel(ctx, m, tok, quantConfig())
				if err != nil {
					return cli.Exit(fmt.Sprintf("error: convert model: %v", err), 1)
				}
				scorer, label = qm, "int8"
				log.Info("using quantized model",
					"converted", len(rep.Converted),
					"fallback", len(rep.Fallback),
					"ratio", fmt.Sprintf("%.2fx", rep.CompressionRatio()),
				)
			}

			sampler, err := logits.NewSampler(opts.samplerConfig())
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: sampler: %v", err), 1)
			}
			sess, err := inference.NewSession(scorer, sampler, tok, opts.sessionConfig(label), log)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: session: %v", err), 1)
			}

			con := &console{out: os.Stdout}
			src := con.inputSource(os.Stdin, stdinIsTTY())
			if c, ok := src.(io.Closer); ok {
				defer c.Close()
			}
			runErr := sess.Run(ctx, src, func(r inference.Round) error {
				con.reply(sess.ModelName(), r)
				if r.Truncated {
					log.Warn("response truncated", "round", r.Index, "generated", r.Generated)
				}
				return nil
			})

			if transcript != "" {
				if err := sess.Transcript().Save(transcript); err != nil {
					log.Error("transcript not saved", "path", transcript, "error", err)
				} else {
					log.Info("transcript saved", "path", transcript, "turns", sess.Rounds())
				}
			}
			if runErr != nil {
				return cli.Exit(fmt.Sprintf("error: %v", runErr), 1)
			}
			con.done()
			return nil
		},
	}
}
