package source

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"StoryIndexer/internal/config"
	"StoryIndexer/internal/domain"
	"StoryIndexer/internal/ports"
)

func TestRegistryCreatesSelectedSource(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	var seen config.Config
	reg.Register("custom", func(cfg config.Config) (ports.Source, error) {
		seen = cfg
		return &Static{}, nil
	})

	cfg := config.Config{Name: "run", Source: "custom"}
	src, err := reg.Create(cfg)
	require.NoError(t, err)
	assert.NotNil(t, src)
	assert.Equal(t, "run", seen.Name)
}

func TestRegistryUnknownSource(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	_, err := reg.Create(config.Config{Source: "nope"})
	require.ErrorIs(t, err, ErrUnknownSource)

	_, err = reg.Create(config.Config{})
	require.ErrorIs(t, err, config.ErrNoSource)
}

func TestRegistryWrapsFactoryError(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	reg := NewRegistry()
	reg.Register(config.SourceRSS, func(config.Config) (ports.Source, error) { return nil, boom })

	_, err := reg.Create(config.Config{RSS: []string{"https://a"}})
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "create source rss")
}

func TestRegistryNames(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	reg.Register("rss", nil)
	reg.Register("arxiv", nil)
	assert.Equal(t, []string{"arxiv", "rss"}, reg.Names())
}

func TestStaticYieldsArticlesThenError(t *testing.T) {
	t.Parallel()

	boom := errors.New("feed down")
	src := &Static{
		Articles: []domain.Article{{UID: "a"}, {UID: "b"}},
		Err:      boom,
	}

	var uids []string
	var last error
	for article, err := range src.Run(context.Background()) {
		if err != nil {
			last = err
			break
		}
		uids = append(uids, article.UID)
	}
	assert.Equal(t, []string{"a", "b"}, uids)
	assert.ErrorIs(t, last, boom)
}
