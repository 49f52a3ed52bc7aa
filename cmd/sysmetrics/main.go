package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"
	_ "go.uber.org/automaxprocs"

	"github.com/stone-age-io/sysmetrics/internal/config"
)

// overridden during build with ldflags
var version = "dev"

func main() {
	if err := newApp().Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:    "sysmetrics",
		Usage:   "Host metrics collector with MySQL storage and an HTTP API",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to the configuration file",
				Value:   config.GetDefaultConfigPath(),
				Sources: cli.EnvVars("SYSMETRICS_CONFIG"),
			},
		},
		Commands: []*cli.Command{
			runCmd(),
			collectCmd(),
			serviceCmd(),
		},
	}
}
