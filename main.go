package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/hrassist/server/internal/agent/graph"
	"github.com/hrassist/server/internal/agent/model"
	"github.com/hrassist/server/internal/agent/repo"
	"github.com/hrassist/server/internal/server"
	logx "github.com/hrassist/server/pkg/logger"
)

const version = "0.1.0"

func main() {
	app := &cli.App{
		Name:    "hrassist",
		Usage:   "Role-aware HR assistant over employee records and documents",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "env-file",
				Usage: "Load environment variables from `FILE`",
				Value: ".env",
			},
		},
		Commands: []*cli.Command{
			serveCommand(),
			askCommand(),
			seedCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the HTTP API",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "addr",
				Usage: "Listen address, overrides SERVER_ADDR",
			},
		},
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c.String("env-file"))
			if err != nil {
				return err
			}
			addr := cfg.ServerAddr
			if c.String("addr") != "" {
				addr = c.String("addr")
			}

			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			return server.Serve(ctx, addr, server.NewHandler(a.runner).Router())
		},
	}
}

func askCommand() *cli.Command {
	return &cli.Command{
		Name:      "ask",
		Usage:     "Run one turn from the command line",
		ArgsUsage: "QUERY",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "employee-id", Aliases: []string{"e"}, Usage: "Caller employee id", Required: true},
			&cli.StringFlag{Name: "name", Usage: "Caller display name"},
			&cli.StringFlag{Name: "title", Usage: "Caller job title"},
			&cli.StringFlag{Name: "document", Aliases: []string{"d"}, Usage: "Document name hint"},
			&cli.StringFlag{Name: "thread", Usage: "Thread id, defaults to the employee id"},
		},
		Action: func(c *cli.Context) error {
			query := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
			if query == "" {
				return cli.Exit("a query is required", 2)
			}
			cfg, err := loadConfig(c.String("env-file"))
			if err != nil {
				return err
			}

			ctx := c.Context
			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.runner.SubmitTurn(ctx, graph.TurnRequest{
				ThreadID:     c.String("thread"),
				Query:        query,
				DocumentName: c.String("document"),
				Identity: model.Identity{
					EmployeeID:   c.String("employee-id"),
					EmployeeName: c.String("name"),
					JobTitle:     c.String("title"),
				},
			})
			if err != nil {
				return err
			}
			fmt.Println(res.Answer)
			logx.Info().Strs("visited", res.Visited).Float64("total_cost_usd", res.CostUSD).Msg("Turn finished")
			return nil
		},
	}
}

func seedCommand() *cli.Command {
	return &cli.Command{
		Name:  "seed",
		Usage: "Create and seed the SQLite HR database",
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c.String("env-file"))
			if err != nil {
				return err
			}
			if !strings.EqualFold(cfg.HRDriver, "sqlite") {
				return fmt.Errorf("seed only supports HRDATA_DRIVER=sqlite, got %q", cfg.HRDriver)
			}
			ctx := context.Background()
			r, err := repo.NewSQLiteHRRepository(ctx, cfg.HRDSN)
			if err != nil {
				return err
			}
			defer r.Close()
			if err := r.Seed(ctx); err != nil {
				return err
			}
			logx.Info().Str("dsn", cfg.HRDSN).Msg("HR database seeded")
			return nil
		},
	}
}
