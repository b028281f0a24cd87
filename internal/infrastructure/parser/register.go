package parser

import (
	"log/slog"
	"net/http"
	"time"

	"StoryIndexer/internal/config"
	"StoryIndexer/internal/ports"
	"StoryIndexer/internal/source"
)

const userAgent = "StoryIndexer/1.0"

// Register adds the built-in sources to reg. rss and reddit are selected by
// their own config keys; arxiv and links are picked with `source:`.
func Register(reg *source.Registry, client *http.Client, logger *slog.Logger) {
	reg.Register(config.SourceRSS, func(cfg config.Config) (ports.Source, error) {
		return NewRSSSource(cfg, client, logger)
	})
	reg.Register(config.SourceReddit, func(cfg config.Config) (ports.Source, error) {
		return NewRedditSource(cfg, client, logger)
	})
	reg.Register("arxiv", func(cfg config.Config) (ports.Source, error) {
		return NewArxivSource(cfg, client, logger)
	})
	reg.Register("links", func(cfg config.Config) (ports.Source, error) {
		return NewLinksSource(cfg, client, logger)
	})
}

func defaultClient(client *http.Client) *http.Client {
	if client == nil {
		return &http.Client{Timeout: 20 * time.Second}
	}
	return client
}

func componentLogger(logger *slog.Logger, name string) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return logger.With("component", "source", "name", name)
}
