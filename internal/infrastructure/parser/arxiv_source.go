package parser

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"StoryIndexer/internal/config"
	"StoryIndexer/internal/domain"
	"StoryIndexer/internal/ports"
)

const (
	arxivBaseURL     = "https://arxiv.org"
	arxivPageSize    = 200
	arxivLookbackKey = "lookback"
)

var dateExpr = regexp.MustCompile(`\d{1,2} [A-Za-z]{3} \d{4}`)

// ArxivSource crawls arXiv listing pages and yields papers submitted within
// the lookback window (in days, default 1).
type ArxivSource struct {
	client     *http.Client
	categories []config.CategoryURL
	lookback   int
	pageSize   int
	now        func() time.Time
	logger     *slog.Logger
}

var _ ports.Source = (*ArxivSource)(nil)

// NewArxivSource builds the source from custom.categories and
// custom.options.lookback.
func NewArxivSource(cfg config.Config, client *http.Client, logger *slog.Logger) (*ArxivSource, error) {
	if len(cfg.Custom.Categories) == 0 {
		return nil, fmt.Errorf("arxiv: no categories configured")
	}

	lookback := 1
	if raw, ok := cfg.Custom.Options[arxivLookbackKey]; ok {
		n, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil || n < 1 {
			return nil, fmt.Errorf("arxiv: invalid lookback %q", raw)
		}
		lookback = n
	}

	return &ArxivSource{
		client:     defaultClient(client),
		categories: cfg.Custom.Categories,
		lookback:   lookback,
		pageSize:   arxivPageSize,
		now:        time.Now,
		logger:     componentLogger(logger, "arxiv"),
	}, nil
}

// Run walks each category until it reaches papers older than the window.
func (a *ArxivSource) Run(ctx context.Context) iter.Seq2[domain.Article, error] {
	return func(yield func(domain.Article, error) bool) {
		now := a.now()
		cutoff := now.UTC().Truncate(24*time.Hour).AddDate(0, 0, -(a.lookback - 1))
		seen := map[string]struct{}{}

		for _, cat := range a.categories {
			a.logger.Info("reading category", "category", cat.Name, "url", cat.URL)

			skip := 0
			for {
				pageURL, err := buildPageURL(cat.URL, skip, a.pageSize)
				if err != nil {
					yield(domain.Article{}, fmt.Errorf("category %s: %w", cat.Name, err))
					return
				}

				doc, err := fetchDocument(ctx, a.client, pageURL)
				if err != nil {
					yield(domain.Article{}, fmt.Errorf("category %s: %w", cat.Name, err))
					return
				}

				articles, more := a.extractArticles(doc, cutoff, cat.Name, now)
				for _, article := range articles {
					if _, ok := seen[article.UID]; ok {
						continue
					}
					seen[article.UID] = struct{}{}
					if !yield(article, nil) {
						return
					}
				}

				if !more {
					break
				}
				skip += a.pageSize
			}
		}
	}
}

func (a *ArxivSource) extractArticles(doc *goquery.Document, cutoff time.Time, category string, now time.Time) ([]domain.Article, bool) {
	var (
		collected    []domain.Article
		continueScan = true
		processed    int
	)

	doc.Find("dl > dt").EachWithBreak(func(i int, dt *goquery.Selection) bool {
		processed++

		article, ok := parseEntry(dt, dt.Next(), category, now)
		if !ok {
			return true
		}

		if article.Date.Before(cutoff) {
			continueScan = false
			return false
		}
		collected = append(collected, article)
		return true
	})

	if processed < a.pageSize {
		continueScan = false
	}

	return collected, continueScan
}

func parseEntry(dt, dd *goquery.Selection, category string, now time.Time) (domain.Article, bool) {
	link := dt.Find(`a[href*="/abs/"]`).First()
	href, _ := link.Attr("href")
	if href == "" {
		return domain.Article{}, false
	}

	id := strings.TrimSpace(link.Text())
	if id == "" {
		id = strings.TrimPrefix(href, "/abs/")
	}
	if !strings.HasPrefix(href, "http") {
		href = strings.TrimSuffix(arxivBaseURL, "/") + href
	}

	title := strings.TrimSpace(dd.Find(".list-title").First().Text())
	title = strings.TrimSpace(strings.TrimPrefix(title, "Title:"))
	if title == "" {
		return domain.Article{}, false
	}

	dateText := strings.TrimSpace(dd.Find(".list-date").First().Text())
	if dateText == "" {
		dateText = strings.TrimSpace(dd.Find(".list-dateline").First().Text())
	}

	published := now.UTC()
	if match := dateExpr.FindString(dateText); match != "" {
		if parsed, err := time.Parse("2 Jan 2006", match); err == nil {
			published = parsed
		}
	}

	source := "arxiv"
	if category != "" {
		source = "arxiv/" + category
	}

	return domain.Article{
		UID:    id,
		Source: source,
		Date:   published,
		Title:  title,
		URL:    href,
		Entry:  now,
	}, true
}

func fetchDocument(ctx context.Context, client *http.Client, pageURL string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request document: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s returned %s", pageURL, resp.Status)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}

	return doc, nil
}

func buildPageURL(base string, skip, pageSize int) (string, error) {
	parsed, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid category url %s: %w", base, err)
	}

	query := parsed.Query()
	query.Set("skip", strconv.Itoa(skip))
	query.Set("show", strconv.Itoa(pageSize))
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}
