package parser

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	readability "github.com/go-shiori/go-readability"

	"StoryIndexer/internal/config"
	"StoryIndexer/internal/domain"
	"StoryIndexer/internal/ports"
)

// LinksSource turns a fixed list of page URLs into articles, reading each
// page title with readability. Pages that fail to load are skipped.
type LinksSource struct {
	client *http.Client
	urls   []string
	now    func() time.Time
	logger *slog.Logger
}

var _ ports.Source = (*LinksSource)(nil)

// NewLinksSource builds the source for custom.urls.
func NewLinksSource(cfg config.Config, client *http.Client, logger *slog.Logger) (*LinksSource, error) {
	if len(cfg.Custom.URLs) == 0 {
		return nil, fmt.Errorf("links: no urls configured")
	}
	return &LinksSource{
		client: defaultClient(client),
		urls:   cfg.Custom.URLs,
		now:    time.Now,
		logger: componentLogger(logger, "links"),
	}, nil
}

// Run yields one article per reachable URL. The uid is the MD5 of the
// canonical page address.
func (l *LinksSource) Run(ctx context.Context) iter.Seq2[domain.Article, error] {
	return func(yield func(domain.Article, error) bool) {
		for _, raw := range l.urls {
			if err := ctx.Err(); err != nil {
				yield(domain.Article{}, err)
				return
			}

			title, err := l.title(ctx, raw)
			if err != nil {
				l.logger.Warn("skip link", "url", raw, "error", err)
				continue
			}

			entry := l.now()
			article := domain.Article{
				UID:    TitleUID(raw),
				Source: hostOf(raw),
				Date:   entry,
				Title:  title,
				URL:    raw,
				Entry:  entry,
			}
			if !yield(article, nil) {
				return
			}
		}
	}
}

func (l *LinksSource) title(ctx context.Context, raw string) (string, error) {
	pageURL, err := url.Parse(raw)
	if err != nil || pageURL.Host == "" {
		return "", fmt.Errorf("invalid url %q", raw)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, raw, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := l.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status: %s", resp.Status)
	}

	article, err := readability.FromReader(resp.Body, pageURL)
	if err != nil {
		return "", fmt.Errorf("parse page: %w", err)
	}

	title := strings.TrimSpace(article.Title)
	if title == "" {
		return "", fmt.Errorf("page has no title")
	}
	return title, nil
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}
