package embedding

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/Ratchadaporn07043/astrobot/internal/config"
	"github.com/Ratchadaporn07043/astrobot/internal/helper"
)

// TextEmbedder maps text to a fixed length vector and never fails.
type TextEmbedder interface {
	Embed(ctx context.Context, text string) []float32
	Dimension() int
}

// Text wraps a langchaingo embedder that is built on first use.
// Any failure yields a zero vector so stored records keep the same shape.
type Text struct {
	dim      int
	embedder *helper.Lazy[embeddings.Embedder]
}

// NewTextEmbedder creates the lazily loaded sentence encoder described by cfg.
func NewTextEmbedder(cfg *config.TextEmbeddingConfig) *Text {
	c := *cfg
	return &Text{
		dim: cfg.Dimension,
		embedder: helper.NewLazy(func() (embeddings.Embedder, error) {
			log.Info().Str("provider", c.Provider).Str("model", c.Model).Msg("Loading text embedding model")
			return newEmbedder(&c.LLMConfig)
		}),
	}
}

// NewTextEmbedderWith uses an already built embedder.
func NewTextEmbedderWith(e embeddings.Embedder, dim int) *Text {
	return &Text{
		dim:      dim,
		embedder: helper.NewLazy(func() (embeddings.Embedder, error) { return e, nil }),
	}
}

func (t *Text) Dimension() int { return t.dim }

func (t *Text) Embed(ctx context.Context, text string) []float32 {
	e, err := t.embedder.Get()
	if err != nil {
		log.Error().Err(err).Msg("Text embedder unavailable, using zero vector")
		return make([]float32, t.dim)
	}

	vec, err := e.EmbedQuery(ctx, text)
	if err != nil {
		log.Error().Err(err).Msg("Error creating embedding, using zero vector")
		return make([]float32, t.dim)
	}
	if len(vec) != t.dim {
		log.Error().Int("got", len(vec)).Int("want", t.dim).Msg("Unexpected embedding size, using zero vector")
		return make([]float32, t.dim)
	}
	return vec
}

func newEmbedder(cfg *config.LLMConfig) (embeddings.Embedder, error) {
	var client embeddings.EmbedderClient
	switch cfg.Provider {
	case "ollama":
		llm, err := ollama.New(
			ollama.WithServerURL(cfg.BaseURL),
			ollama.WithModel(cfg.Model),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize ollama: %w", err)
		}
		client = llm
	case "openai":
		opts := []openai.Option{
			openai.WithToken(strings.TrimPrefix(cfg.Key, "Bearer ")),
			openai.WithEmbeddingModel(cfg.Model),
		}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		llm, err := openai.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize openai: %w", err)
		}
		client = llm
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", cfg.Provider)
	}

	embedder, err := embeddings.NewEmbedder(client)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}
	return embedder, nil
}
