package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/stone-age-io/sysmetrics/internal/hostfs"
	"github.com/stone-age-io/sysmetrics/internal/sampler"
)

const (
	formatJSON = "json"
	formatProm = "prom"
)

func collectCmd() *cli.Command {
	return &cli.Command{
		Name:  "collect",
		Usage: "Collect one snapshot and print it without touching the database",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "host-root",
				Usage:   "host filesystem mount prefix (empty reads local sources only)",
				Value:   hostfs.DefaultHostRoot,
				Sources: cli.EnvVars("SYSMETRICS_HOST_ROOT"),
			},
			&cli.DurationFlag{
				Name:  "cpu-interval",
				Usage: "interval between the two CPU readings",
				Value: sampler.DefaultCPUInterval,
			},
			&cli.BoolFlag{
				Name:  "sequential",
				Usage: "run samplers one after another",
			},
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"f"},
				Usage:   "output format (json, prom)",
				Value:   formatJSON,
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "log sampler failures to stderr",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			format := cmd.String("format")
			if format != formatJSON && format != formatProm {
				return fmt.Errorf("unknown output format: %q", format)
			}

			level := zapcore.ErrorLevel
			if cmd.Bool("verbose") {
				level = zapcore.DebugLevel
			}
			logger := zap.New(zapcore.NewCore(
				zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig()),
				zapcore.Lock(os.Stderr),
				level,
			))
			defer func() { _ = logger.Sync() }()

			collector := sampler.NewCollector(hostfs.New(cmd.String("host-root")), sampler.Config{
				CPUInterval: cmd.Duration("cpu-interval"),
				Parallel:    !cmd.Bool("sequential"),
			}, logger)

			snap, err := collector.Collect(ctx)
			if err != nil {
				return err
			}
			return writeSnapshot(os.Stdout, snap, format)
		},
	}
}

func writeSnapshot(w io.Writer, snap sampler.Snapshot, format string) error {
	if format == formatProm {
		return sampler.WriteText(w, snap)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(snap)
}
