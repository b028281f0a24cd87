package parser

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"iter"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"StoryIndexer/internal/config"
	"StoryIndexer/internal/domain"
	"StoryIndexer/internal/ports"
)

// RSSSource reads a list of RSS or Atom feeds in order.
type RSSSource struct {
	feeds  []string
	parser *gofeed.Parser
	now    func() time.Time
	logger *slog.Logger
}

var _ ports.Source = (*RSSSource)(nil)

// NewRSSSource builds the source for cfg.RSS.
func NewRSSSource(cfg config.Config, client *http.Client, logger *slog.Logger) (*RSSSource, error) {
	if len(cfg.RSS) == 0 {
		return nil, fmt.Errorf("rss: no feeds configured")
	}

	fp := gofeed.NewParser()
	fp.Client = defaultClient(client)

	return &RSSSource{
		feeds:  cfg.RSS,
		parser: fp,
		now:    time.Now,
		logger: componentLogger(logger, "rss"),
	}, nil
}

// Run yields every entry of every feed. The uid is the MD5 of the title.
func (s *RSSSource) Run(ctx context.Context) iter.Seq2[domain.Article, error] {
	return func(yield func(domain.Article, error) bool) {
		for _, url := range s.feeds {
			s.logger.Info("reading feed", "url", url)

			feed, err := s.parser.ParseURLWithContext(url, ctx)
			if err != nil {
				yield(domain.Article{}, fmt.Errorf("read feed %s: %w", url, err))
				return
			}

			for _, item := range feed.Items {
				if item == nil {
					continue
				}
				if !yield(s.article(feed, item), nil) {
					return
				}
			}
		}
	}
}

func (s *RSSSource) article(feed *gofeed.Feed, item *gofeed.Item) domain.Article {
	entry := s.now()

	date := entry
	switch {
	case item.PublishedParsed != nil:
		date = *item.PublishedParsed
	case item.UpdatedParsed != nil:
		date = *item.UpdatedParsed
	}

	return domain.Article{
		UID:    TitleUID(item.Title),
		Source: strings.TrimSpace(feed.Title),
		Date:   date,
		Title:  strings.TrimSpace(item.Title),
		URL:    strings.TrimSpace(item.Link),
		Entry:  entry,
	}
}

// TitleUID returns the hex MD5 of title, the stable id of feed entries.
func TitleUID(title string) string {
	sum := md5.Sum([]byte(title))
	return hex.EncodeToString(sum[:])
}
