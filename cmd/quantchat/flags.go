package main

import (
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/quantchat/internal/model"
)

var (
	modelID     string
	quantBits   int64
	minElements int64
	logLevel    string
	logFormat   string
	debug       bool

	fileCfg Config
)

func commonModelFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "model",
			Aliases:     []string{"m"},
			Usage:       "preset id or path to a YAML model card",
			Value:       model.DefaultModelID,
			Destination: &modelID,
		},
	}
}

func quantFlags() []cli.Flag {
	return []cli.Flag{
		&cli.Int64Flag{
			Name:        "bits",
			Usage:       "weight and activation code width",
			Value:       8,
			Destination: &quantBits,
		},
		&cli.Int64Flag{
			Name:        "min-elements",
			Usage:       "keep layers with fewer weights in full precision",
			Value:       1024,
			Destination: &minElements,
		},
	}
}

func loggingFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "log level (debug, info, warn, error)",
			Value:       "info",
			Destination: &logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "log format (pretty, json, text)",
			Value:       "pretty",
			Destination: &logFormat,
		},
		&cli.BoolFlag{
			Name:        "debug",
			Usage:       "enable debug logging (shorthand for --log-level=debug)",
			Destination: &debug,
		},
	}
}
