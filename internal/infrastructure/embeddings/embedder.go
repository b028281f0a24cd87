package embeddings

import (
	"fmt"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"

	"StoryIndexer/internal/config"
)

// NewEmbedder returns an embedder for an OpenAI-compatible embeddings API
// (OpenAI, Ollama, vLLM and similar).
func NewEmbedder(cfg config.EmbeddingsConfig) (embeddings.Embedder, error) {
	token := cfg.APIKey
	if token == "" {
		// local services accept any token
		token = "none"
	}

	client, err := openai.New(
		openai.WithBaseURL(cfg.Host),
		openai.WithToken(token),
		openai.WithEmbeddingModel(cfg.Model),
	)
	if err != nil {
		return nil, fmt.Errorf("create embeddings client: %w", err)
	}

	opts := []embeddings.Option{embeddings.WithStripNewLines(true)}
	if cfg.Batch > 0 {
		opts = append(opts, embeddings.WithBatchSize(cfg.Batch))
	}

	embedder, err := embeddings.NewEmbedder(client, opts...)
	if err != nil {
		return nil, fmt.Errorf("create embedder: %w", err)
	}
	return embedder, nil
}
