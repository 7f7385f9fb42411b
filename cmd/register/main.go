package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	registercli "github.com/odyssey-erp/salesregister/cmd/odyssey/cli"
	"github.com/odyssey-erp/salesregister/internal/app"
	"github.com/odyssey-erp/salesregister/internal/platform/cache"
	"github.com/odyssey-erp/salesregister/internal/platform/db"
	"github.com/odyssey-erp/salesregister/internal/salesregister"
	"github.com/odyssey-erp/salesregister/jobs"
)

// exitCoder carries a command's exit status through urfave/cli.
type exitCoder int

func (e exitCoder) Error() string { return fmt.Sprintf("exit status %d", int(e)) }
func (e exitCoder) ExitCode() int { return int(e) }

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		if coder, ok := err.(cli.ExitCoder); ok {
			os.Exit(coder.ExitCode())
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	filterFlags := make([]cli.Flag, 0, len(salesregister.FilterKeys))
	for _, key := range salesregister.FilterKeys {
		filterFlags = append(filterFlags, &cli.StringFlag{Name: key, Usage: "filter on " + key})
	}
	return &cli.App{
		Name:  "register",
		Usage: "daily sales register tooling",
		Commands: []*cli.Command{
			{
				Name:  "show",
				Usage: "build the register and print it",
				Flags: append(filterFlags,
					&cli.StringFlag{Name: "format", Value: registercli.FormatTable, Usage: "table, json or csv"},
					&cli.StringSliceFlag{Name: "query", Usage: "extra select expression over the invoice header (alias si)"},
				),
				Action: showAction,
			},
			{
				Name:  "cache",
				Usage: "register cache maintenance",
				Subcommands: []*cli.Command{{
					Name:   "bump",
					Usage:  "invalidate every cached register",
					Action: bumpAction,
				}},
			},
			{
				Name:  "jobs",
				Usage: "background job helpers",
				Subcommands: []*cli.Command{
					{
						Name:  "trigger",
						Usage: "enqueue a job",
						Flags: []cli.Flag{
							&cli.StringFlag{Name: "task", Value: jobs.TaskRegisterSnapshot},
							&cli.StringFlag{Name: "company"},
							&cli.StringFlag{Name: "date", Usage: "YYYY-MM-DD, defaults to yesterday"},
						},
						Action: triggerAction,
					},
					{
						Name:   "inspect",
						Usage:  "print queue statistics",
						Flags:  []cli.Flag{&cli.StringFlag{Name: "queue", Value: jobs.QueueDefault}},
						Action: inspectAction,
					},
				},
			},
		},
	}
}

func showAction(c *cli.Context) error {
	cfg, logger, err := bootstrap()
	if err != nil {
		return err
	}
	pool, err := db.New(c.Context, cfg.PGDSN, db.PoolOptions{MaxConns: 2, AppName: "salesregister-cli"})
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()

	var registerCache *salesregister.Cache
	if client, err := cache.New(c.Context, cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}); err == nil {
		defer func() { _ = client.Close() }()
		registerCache = salesregister.NewCache(client, cfg.RegisterCacheTTL)
	} else {
		logger.Debug("redis unavailable, cache disabled", slog.Any("error", err))
	}

	service := salesregister.NewService(salesregister.NewRepository(pool), registerCache, logger, cfg.RegisterOptions())
	filters := make(map[string]string, len(salesregister.FilterKeys))
	for _, key := range salesregister.FilterKeys {
		filters[key] = c.String(key)
	}
	code := registercli.NewRegisterCLI(service).ShowCommand(c.Context, registercli.ShowOptions{
		Filters: filters,
		Query:   c.StringSlice("query"),
		Format:  c.String("format"),
		Stdout:  c.App.Writer,
		Stderr:  c.App.ErrWriter,
	})
	if code != 0 {
		return exitCoder(code)
	}
	return nil
}

func bumpAction(c *cli.Context) error {
	cfg, _, err := bootstrap()
	if err != nil {
		return err
	}
	client, err := cache.New(c.Context, cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer func() { _ = client.Close() }()
	registerCache := salesregister.NewCache(client, cfg.RegisterCacheTTL)
	if err := registerCache.Bump(c.Context); err != nil {
		return err
	}
	version, err := registerCache.Version(c.Context)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(c.App.Writer, "register cache version %d\n", version)
	return err
}

func triggerAction(c *cli.Context) error {
	cfg, _, err := bootstrap()
	if err != nil {
		return err
	}
	jobsCLI, err := registercli.NewJobsCLI(cfg.RedisAddr)
	if err != nil {
		return err
	}
	defer func() { _ = jobsCLI.Close() }()
	info, err := jobsCLI.Trigger(c.Context, c.String("task"), registercli.TriggerParams{
		Company: c.String("company"),
		Date:    c.String("date"),
	})
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(c.App.Writer, "enqueued %s id=%s queue=%s\n", info.Type, info.ID, info.Queue)
	return err
}

func inspectAction(c *cli.Context) error {
	cfg, _, err := bootstrap()
	if err != nil {
		return err
	}
	jobsCLI, err := registercli.NewJobsCLI(cfg.RedisAddr)
	if err != nil {
		return err
	}
	defer func() { _ = jobsCLI.Close() }()
	stats, err := jobsCLI.InspectQueue(c.Context, c.String("queue"))
	if err != nil {
		return err
	}
	return json.NewEncoder(c.App.Writer).Encode(stats)
}

func bootstrap() (*app.Config, *slog.Logger, error) {
	cfg, err := app.LoadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	// stdout carries the register itself
	logger := app.NewLoggerTo(cfg, os.Stderr)
	return cfg, logger, nil
}
