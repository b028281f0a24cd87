package parser

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/vartanbeno/go-reddit/v2/reddit"

	"StoryIndexer/internal/config"
	"StoryIndexer/internal/domain"
	"StoryIndexer/internal/ports"
)

const (
	redditPageSize = 100
	redditFilter   = " self:0 nsfw:0"
)

// RedditSource runs search queries against one subreddit and yields link
// posts.
type RedditSource struct {
	client *reddit.Client
	cfg    config.RedditConfig
	now    func() time.Time
	logger *slog.Logger
}

var _ ports.Source = (*RedditSource)(nil)

// NewRedditSource builds the source for cfg.Reddit on a read-only client.
// opts are applied after the HTTP client and user agent.
func NewRedditSource(cfg config.Config, client *http.Client, logger *slog.Logger, opts ...reddit.Opt) (*RedditSource, error) {
	if cfg.Reddit == nil || strings.TrimSpace(cfg.Reddit.Subreddit) == "" {
		return nil, fmt.Errorf("reddit: subreddit is required")
	}

	agent := cfg.Reddit.UserAgent
	if agent == "" {
		agent = userAgent
	}
	opts = append([]reddit.Opt{
		reddit.WithHTTPClient(defaultClient(client)),
		reddit.WithUserAgent(agent),
	}, opts...)

	api, err := reddit.NewReadonlyClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("reddit: create client: %w", err)
	}

	return &RedditSource{
		client: api,
		cfg:    *cfg.Reddit,
		now:    time.Now,
		logger: componentLogger(logger, "reddit"),
	}, nil
}

// Run executes each query with the safe-link filter appended and pages
// through results until the listing ends or limit posts were fetched.
func (r *RedditSource) Run(ctx context.Context) iter.Seq2[domain.Article, error] {
	return func(yield func(domain.Article, error) bool) {
		for _, query := range r.cfg.Queries {
			query += redditFilter
			r.logger.Info("running query", "subreddit", r.cfg.Subreddit, "query", query)

			after := ""
			fetched := 0
			for {
				posts, next, err := r.search(ctx, query, after, r.pageSize(fetched))
				if err != nil {
					yield(domain.Article{}, fmt.Errorf("reddit query %q: %w", query, err))
					return
				}

				for _, post := range posts {
					if r.limitReached(fetched) {
						break
					}
					fetched++
					if post.IsSelfPost {
						continue
					}
					if !yield(r.article(post), nil) {
						return
					}
				}

				after = next
				if after == "" || len(posts) == 0 || r.limitReached(fetched) {
					break
				}
			}
		}
	}
}

func (r *RedditSource) pageSize(fetched int) int {
	if r.cfg.Limit > 0 {
		return min(redditPageSize, r.cfg.Limit-fetched)
	}
	return redditPageSize
}

func (r *RedditSource) limitReached(fetched int) bool {
	return r.cfg.Limit > 0 && fetched >= r.cfg.Limit
}

func (r *RedditSource) search(ctx context.Context, query, after string, limit int) ([]*reddit.Post, string, error) {
	posts, resp, err := r.client.Subreddit.SearchPosts(ctx, query, r.cfg.Subreddit, &reddit.ListPostSearchOptions{
		ListPostOptions: reddit.ListPostOptions{
			ListOptions: reddit.ListOptions{Limit: limit, After: after},
			Time:        r.cfg.Time,
		},
		Sort: r.cfg.Sort,
	})
	if err != nil {
		return nil, "", fmt.Errorf("search posts: %w", err)
	}
	return posts, resp.After, nil
}

// article keeps Date in local time like Entry.
func (r *RedditSource) article(post *reddit.Post) domain.Article {
	subreddit := post.SubredditName
	if subreddit == "" {
		subreddit = r.cfg.Subreddit
	}

	entry := r.now()
	date := entry
	if post.Created != nil {
		date = time.Unix(post.Created.Unix(), 0)
	}
	return domain.Article{
		UID:    post.ID,
		Source: strings.ToLower(subreddit),
		Date:   date,
		Title:  strings.TrimSpace(post.Title),
		URL:    post.URL,
		Entry:  entry,
	}
}
