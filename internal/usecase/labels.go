package usecase

import (
	"fmt"
	"slices"

	"StoryIndexer/internal/config"
	"StoryIndexer/internal/domain"
)

// Labels folds a classifier result into the values stored for one category.
// Aggregated categories collapse to a single (category, value) pair, rescaled
// into [0, 1] when a normalize range is configured; other categories pass the
// result through unchanged.
func Labels(category string, cfg config.Category, result []domain.LabelScore) ([]domain.LabelScore, error) {
	if !cfg.Aggregated() {
		return result, nil
	}

	var score float64
	for _, pair := range result {
		if slices.Contains(cfg.Aggregate, pair.Name) {
			score += pair.Score
		}
	}

	if cfg.Normalize != nil {
		width := cfg.Normalize.Width()
		if width == 0 {
			return nil, fmt.Errorf("labels %s: %w", category, config.ErrInvalidNormalize)
		}
		score = min(max(0.0, (score-cfg.Normalize.Min)/width), 1.0)
	}

	return []domain.LabelScore{{Name: category, Score: score}}, nil
}
