package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/quantchat/internal/quant"
	"github.com/samcharles93/quantchat/internal/tokenizer"
)

func convertCmd() *cli.Command {
	var jsonOut bool

	flags := append([]cli.Flag{}, commonModelFlags()...)
	flags = append(flags, quantFlags()...)
	flags = append(flags, &cli.BoolFlag{
		Name:        "json",
		Usage:       "print the report as JSON",
		Destination: &jsonOut,
	})

	return &cli.Command{
		Name:  "convert",
		Usage: "Quantize a model and report which layers were converted",
		Flags: flags,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			applyModelConfig(cmd, fileCfg)
			m, err := loadModel(modelID)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: load model: %v", err), 1)
			}
			_, rep, err := convertModel(ctx, m, tokenizer.NewByteTokenizer(), quantConfig())
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: convert model: %v", err), 1)
			}
			if jsonOut {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(rep)
			}
			return writeReport(os.Stdout, rep)
		},
	}
}

func writeReport(w io.Writer, rep quant.Report) error {
	fmt.Fprintf(w, "Model:    %s\n", rep.Model)
	fmt.Fprintf(w, "Bits:     %d\n", rep.Bits)
	fmt.Fprintf(w, "Weights:  %d -> %d bytes (%.2fx)\n", rep.FullBytes, rep.QuantBytes, rep.CompressionRatio())
	fmt.Fprintf(w, "Elapsed:  %s\n\n", rep.Duration)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "LAYER\tKIND\tSHAPE\tACT ABSMAX\tSTATUS")
	for _, l := range rep.Converted {
		fmt.Fprintf(tw, "%s\t%s\t%dx%d\t%.3f\tquantized\n", l.Name, l.Kind, l.Out, l.In, l.ActAbsMax)
	}
	for _, l := range rep.Fallback {
		fmt.Fprintf(tw, "%s\t%s\t%dx%d\t%.3f\tfull precision: %s\n", l.Name, l.Kind, l.Out, l.In, l.ActAbsMax, l.Reason)
	}
	return tw.Flush()
}
