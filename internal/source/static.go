package source

import (
	"context"
	"iter"

	"StoryIndexer/internal/domain"
	"StoryIndexer/internal/ports"
)

// Static replays a fixed list of articles. It backs tests and dry runs.
type Static struct {
	Articles []domain.Article
	Err      error
}

var _ ports.Source = (*Static)(nil)

// Run yields the stored articles, then Err if set.
func (s *Static) Run(ctx context.Context) iter.Seq2[domain.Article, error] {
	return func(yield func(domain.Article, error) bool) {
		for _, article := range s.Articles {
			if err := ctx.Err(); err != nil {
				yield(domain.Article{}, err)
				return
			}
			if !yield(article, nil) {
				return
			}
		}
		if s.Err != nil {
			yield(domain.Article{}, s.Err)
		}
	}
}
