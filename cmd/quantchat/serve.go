package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/quantchat/internal/api"
	"github.com/samcharles93/quantchat/internal/logger"
	"github.com/samcharles93/quantchat/internal/tokenizer"
)

func serveCmd() *cli.Command {
	var (
		opts        sessionOptions
		addr        string
		metricsAddr string
		modelsPath  string
		readTimeout time.Duration
		fullPrec    bool
	)

	flags := append([]cli.Flag{}, commonModelFlags()...)
	flags = append(flags, quantFlags()...)
	flags = append(flags, sessionFlags(&opts)...)
	flags = append(flags,
		&cli.StringFlag{
			Name:        "addr",
			Usage:       "listen address",
			Value:       "127.0.0.1:8080",
			Destination: &addr,
		},
		&cli.StringFlag{
			Name:        "metrics-addr",
			Usage:       "listen address for /metrics (empty disables)",
			Destination: &metricsAddr,
		},
		&cli.StringFlag{
			Name:        "models-path",
			Usage:       "directory of YAML model cards served next to the presets",
			Destination: &modelsPath,
		},
		&cli.DurationFlag{
			Name:        "read-timeout",
			Usage:       "read header timeout",
			Value:       30 * time.Second,
			Destination: &readTimeout,
		},
		&cli.BoolFlag{
			Name:        "full-precision",
			Usage:       "create sessions on the unconverted model unless a request asks otherwise",
			Destination: &fullPrec,
		},
	)

	return &cli.Command{
		Name:  "serve",
		Usage: "Serve chat sessions over HTTP",
		Flags: flags,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			applyModelConfig(cmd, fileCfg)
			applySessionConfig(cmd, fileCfg, &opts)
			applyServeConfig(cmd, fileCfg, &addr, &metricsAddr, &modelsPath)
			log := logger.FromContext(ctx)

			provider := api.NewCachedModelProvider(api.ModelProviderConfig{
				ModelsPath: modelsPath,
				Quant:      quantConfig(),
			})
			defaults := api.Defaults{
				Model:     modelID,
				Quantized: !fullPrec,
				Sampler:   opts.samplerConfig(),
				Session:   opts.sessionConfig("int8"),
			}
			if err := defaults.Sampler.Validate(); err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			if err := defaults.Session.Validate(); err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			server := api.NewServer(provider, tokenizer.NewByteTokenizer(), defaults, log)

			if metricsAddr != "" {
				go serveMetrics(ctx, metricsAddr, log)
			}

			e := echo.New()
			e.Use(middleware.RequestLogger())
			e.Use(middleware.Recover())
			server.Register(e)
			log.Info("starting server", "address", addr, "model", modelID, "quantized", !fullPrec)
			sc := echo.StartConfig{
				Address: addr,
				BeforeServeFunc: func(srv *http.Server) error {
					srv.ReadHeaderTimeout = readTimeout
					return nil
				},
			}
			return sc.Start(ctx, e)
		},
	}
}

// serveMetrics exposes the prometheus registry until ctx ends.
func serveMetrics(ctx context.Context, addr string, log logger.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info("serving metrics", "address", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("metrics server stopped", "error", err)
	}
}
