package main

import (
	"context"
	"fmt"
	"os"

	"github.com/kardianos/service"
	"github.com/urfave/cli/v3"

	"github.com/stone-age-io/sysmetrics/internal/agent"
)

// program adapts the agent to the service manager lifecycle
type program struct {
	configPath string
	agent      *agent.Agent
}

func (p *program) Start(s service.Service) error {
	a, err := agent.New(p.configPath, version)
	if err != nil {
		return err
	}
	p.agent = a

	go func() {
		if err := a.Run(); err != nil {
			fmt.Fprintf(os.Stderr, "sysmetrics stopped: %v\n", err)
			os.Exit(1)
		}
		// Run returns after a signal; let the service manager finish
		if service.Interactive() {
			os.Exit(0)
		}
	}()
	return nil
}

func (p *program) Stop(s service.Service) error {
	if p.agent != nil {
		p.agent.Stop()
	}
	return nil
}

func newService(configPath string) (service.Service, *program, error) {
	prg := &program{configPath: configPath}
	svc, err := service.New(prg, &service.Config{
		Name:        "sysmetrics",
		DisplayName: "sysmetrics",
		Description: "Collects host CPU, memory, disk and network metrics",
		Arguments:   []string{"--config", configPath, "run"},
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create service: %w", err)
	}
	return svc, prg, nil
}

func runCmd() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Run the collector, scheduler and HTTP API in the foreground or under a service manager",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			svc, _, err := newService(cmd.String("config"))
			if err != nil {
				return err
			}
			return svc.Run()
		},
	}
}

func serviceCmd() *cli.Command {
	control := func(action, usage string) *cli.Command {
		return &cli.Command{
			Name:  action,
			Usage: usage,
			Action: func(ctx context.Context, cmd *cli.Command) error {
				svc, _, err := newService(cmd.String("config"))
				if err != nil {
					return err
				}
				if err := service.Control(svc, action); err != nil {
					return fmt.Errorf("service %s failed: %w", action, err)
				}
				fmt.Printf("service %s: ok\n", action)
				return nil
			},
		}
	}

	return &cli.Command{
		Name:  "service",
		Usage: "Manage the sysmetrics system service",
		Commands: []*cli.Command{
			control("install", "Install the system service"),
			control("uninstall", "Remove the system service"),
			control("start", "Start the installed service"),
			control("stop", "Stop the running service"),
		},
	}
}
