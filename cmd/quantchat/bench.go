package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime"

	"github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/quantchat/internal/bench"
	"github.com/samcharles93/quantchat/internal/logger"
	"github.com/samcharles93/quantchat/internal/metrics"
	"github.com/samcharles93/quantchat/internal/model"
	"github.com/samcharles93/quantchat/internal/tokenizer"
)

type benchReport struct {
	Model       string         `json:"model"`
	InputLength int            `json:"input_length"`
	Warmup      int            `json:"warmup"`
	Results     []bench.Result `json:"results"`
	Speedup     float64        `json:"speedup"`
	FullBytes   int            `json:"full_bytes"`
	QuantBytes  int            `json:"quant_bytes"`
}

func benchCmd() *cli.Command {
	var (
		warmup  int64
		iters   int64
		length  int64
		seed    int64
		jsonOut bool
	)

	flags := append([]cli.Flag{}, commonModelFlags()...)
	flags = append(flags, quantFlags()...)
	flags = append(flags,
		&cli.Int64Flag{
			Name:        "warmup",
			Usage:       "untimed scoring calls before measuring",
			Value:       5,
			Destination: &warmup,
		},
		&cli.Int64Flag{
			Name:        "iters",
			Aliases:     []string{"runs"},
			Usage:       "timed scoring calls per model",
			Value:       50,
			Destination: &iters,
		},
		&cli.Int64Flag{
			Name:        "length",
			Usage:       "synthetic input length in tokens",
			Value:       64,
			Destination: &length,
		},
		&cli.Int64Flag{
			Name:        "seed",
			Usage:       "seed for the synthetic input",
			Value:       42,
			Destination: &seed,
		},
		&cli.BoolFlag{
			Name:        "json",
			Usage:       "print results as JSON instead of a chart",
			Destination: &jsonOut,
		},
	)

	return &cli.Command{
		Name:  "bench",
		Usage: "Compare full precision and quantized scoring latency",
		Flags: flags,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			applyModelConfig(cmd, fileCfg)
			log := logger.FromContext(ctx)

			m, err := loadModel(modelID)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: load model: %v", err), 1)
			}
			tok := tokenizer.NewByteTokenizer()
			qm, rep, err := convertModel(ctx, m, tok, quantConfig())
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: convert model: %v", err), 1)
			}
			input, err := bench.SyntheticInput(tok, int(length), seed)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}

			var results []bench.Result
			for _, c := range []struct {
				label  string
				scorer model.Scorer
			}{
				{"fp32", m},
				{"int8", qm},
			} {
				log.Info("measuring", "label", c.label, "warmup", warmup, "iters", iters)
				res, err := bench.Measure(ctx, c.scorer, input, int(warmup), int(iters))
				if err != nil {
					return cli.Exit(fmt.Sprintf("error: measure %s: %v", c.label, err), 1)
				}
				res.Label = c.label
				metrics.RecordBenchmark(c.label, res.Mean)
				results = append(results, res)
			}

			report := benchReport{
				Model:       m.Name(),
				InputLength: len(input),
				Warmup:      int(warmup),
				Results:     results,
				Speedup:     bench.Compare(results[0], results[1]),
				FullBytes:   rep.FullBytes,
				QuantBytes:  rep.QuantBytes,
			}
			if jsonOut {
				return writeBenchJSON(os.Stdout, report)
			}
			return writeBenchText(os.Stdout, report)
		},
	}
}

func writeBenchJSON(w io.Writer, r benchReport) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

func writeBenchText(w io.Writer, r benchReport) error {
	fmt.Fprintln(w, "=== QuantChat Benchmark ===")
	fmt.Fprintf(w, "Model:      %s\n", r.Model)
	fmt.Fprintf(w, "CPUs:       %d\n", runtime.NumCPU())
	fmt.Fprintf(w, "GOMAXPROCS: %d\n", runtime.GOMAXPROCS(0))
	fmt.Fprintf(w, "Input:      %d tokens\n", r.InputLength)
	fmt.Fprintf(w, "Warmup:     %d calls\n", r.Warmup)
	if len(r.Results) > 0 {
		fmt.Fprintf(w, "Iterations: %d calls\n", r.Results[0].Iterations)
	}
	fmt.Fprintln(w)
	if err := bench.WriteChart(w, "Mean latency per scoring call", r.Results...); err != nil {
		return err
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Speedup:    %.2fx\n", r.Speedup)
	fmt.Fprintf(w, "Weights:    %.1f KiB -> %.1f KiB\n", float64(r.FullBytes)/1024, float64(r.QuantBytes)/1024)
	return nil
}
