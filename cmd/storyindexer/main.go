package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/urfave/cli/v2"

	"StoryIndexer/internal/app"
	"StoryIndexer/internal/config"
	"StoryIndexer/internal/logging"
)

func main() {
	cliApp := &cli.App{
		Name:      "storyindexer",
		Usage:     "Index news stories from RSS, Reddit and custom sources",
		ArgsUsage: "<config.yml>",
		Action:    indexCommand,
		Commands: []*cli.Command{
			{
				Name:      "search",
				Usage:     "Search the titles indexed for a configuration",
				ArgsUsage: "<query>",
				Action:    searchCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "config",
						Aliases:  []string{"c"},
						Usage:    "Path to the run configuration",
						Required: true,
					},
					&cli.IntFlag{
						Name:    "limit",
						Aliases: []string{"n"},
						Usage:   "Number of results",
						Value:   10,
					},
				},
			},
		},
	}

	// Commands log their own failures.
	if err := cliApp.Run(os.Args); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads path and returns a logger at the configured level. A
// configuration error is logged to w at info level since no level is known
// yet.
func loadConfig(path string, w io.Writer) (config.Config, *slog.Logger, error) {
	cfg, err := config.Load(path)
	if err != nil {
		logging.NewWithWriter(w, "info").Error("load configuration", "path", path, "error", err)
		return config.Config{}, nil, err
	}
	return cfg, logging.NewWithWriter(w, cfg.Logging.Level), nil
}

func indexCommand(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("usage: storyindexer <config.yml>", 1)
	}

	cfg, logger, err := loadConfig(c.Args().First(), os.Stdout)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(cfg, logger)
	if err != nil {
		logger.Error("build application", "error", err)
		return err
	}

	if err := application.Run(ctx); err != nil {
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			logger.Info("shutting down")
			return nil
		}
		logger.Error("application stopped", "error", err)
		return err
	}
	return nil
}

func searchCommand(c *cli.Context) error {
	if c.NArg() == 0 {
		return cli.Exit("usage: storyindexer search --config <config.yml> <query>", 1)
	}

	cfg, logger, err := loadConfig(c.String("config"), os.Stdout)
	if err != nil {
		return err
	}

	application, err := app.New(cfg, logger)
	if err != nil {
		logger.Error("build application", "error", err)
		return err
	}

	query := strings.Join(c.Args().Slice(), " ")
	matches, err := application.Search(c.Context, query, c.Int("limit"))
	if err != nil {
		logger.Error("search index", "query", query, "error", err)
		return err
	}
	for _, m := range matches {
		fmt.Fprintf(c.App.Writer, "%.4f\t%s\t%s\n", m.Score, m.UID, m.Title)
	}
	return nil
}
