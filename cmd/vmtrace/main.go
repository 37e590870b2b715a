package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	scfg "github.com/ihippik/config"
	"github.com/urfave/cli/v2"

	"github.com/ihippik/vm-trace/internal/config"
	"github.com/ihippik/vm-trace/internal/simvm"
	"github.com/ihippik/vm-trace/internal/vmtrace"
)

func main() {
	version := scfg.GetVersion()

	optionsFlag := &cli.StringFlag{
		Name:    "options",
		Aliases: []string{"o"},
		Usage:   "agent options, key=value pairs separated by commas",
	}

	app := &cli.App{
		Name:    "vmtrace",
		Usage:   "trace JVM lifecycle events",
		Version: version,
		Commands: []*cli.Command{
			{
				Name:      "run",
				Usage:     "run a JVM with the tracing agent attached",
				ArgsUsage: "-- <java> [args...]",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "agent",
						Aliases:  []string{"a"},
						Usage:    "path to libvmtrace",
						Required: true,
						EnvVars:  []string{"VMTRACE_AGENT"},
					},
					optionsFlag,
				},
				Action: func(c *cli.Context) error {
					ctx, cancel := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
					defer cancel()

					code, err := launch(ctx, c.String("agent"), c.String("options"), c.Args().Slice())
					if err != nil {
						return fmt.Errorf("launch: %w", err)
					}

					if code != 0 {
						return cli.Exit("", code)
					}

					return nil
				},
			},
			{
				Name:  "simulate",
				Usage: "trace a simulated VM start-up",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "classes", Value: 32, Usage: "number of classes to load"},
					&cli.IntFlag{Name: "workers", Value: 4, Usage: "number of loader threads"},
					&cli.DurationFlag{Name: "step", Value: 250 * time.Microsecond, Usage: "clock advance per event"},
					optionsFlag,
				},
				Action: func(c *cli.Context) error {
					ctx, cancel := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
					defer cancel()

					cfg, err := config.InitConfig(ctx, c.String("options"))
					if err != nil {
						return fmt.Errorf("get config: %w", err)
					}

					logger := cfg.InitSlog(version)

					output, closer, err := cfg.OpenOutput()
					if err != nil {
						return err
					}
					defer func() {
						if err := closer(); err != nil {
							logger.Warn("failed to close trace output", "error", err)
						}
					}()

					opts, err := cfg.AgentOptions(output)
					if err != nil {
						return err
					}

					vm := simvm.New()

					agent, err := vmtrace.Attach(logger, vm, opts)
					if err != nil {
						return fmt.Errorf("attach: %w", err)
					}

					err = vm.Play(ctx, simvm.Script{
						Classes: c.Int("classes"),
						Workers: c.Int("workers"),
						Step:    c.Duration("step").Nanoseconds(),
					})
					if err != nil {
						return err
					}

					logger.Info(
						"simulation finished",
						"events", len(agent.Enabled()),
						"dropped", agent.Dropped(),
						"leaked", vm.Outstanding(),
					)

					return nil
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
