package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/quantchat/internal/logger"
)

func main() {
	app := &cli.Command{
		Name:  "quantchat",
		Usage: "Multi-round chat over a dynamically quantized language model",
		Flags: loggingFlags(),
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			fileCfg = LoadConfig()
			applyLoggingConfig(cmd, fileCfg)
			level := logLevel
			if debug {
				level = "debug"
			}
			log := logger.Setup(os.Stderr, level, logFormat)
			return logger.WithContext(ctx, log), nil
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return cli.ShowAppHelp(cmd)
		},
		Commands: []*cli.Command{
			chatCmd(),
			benchCmd(),
			convertCmd(),
			serveCmd(),
			versionCmd(),
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := app.Run(ctx, os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}
