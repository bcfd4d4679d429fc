package llmservice

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"

	"github.com/Ratchadaporn07043/astrobot/internal/config"
	"github.com/Ratchadaporn07043/astrobot/internal/helper"
	"github.com/Ratchadaporn07043/astrobot/internal/models"
)

// Summarizer condenses chunk text with a hosted chat model. It never fails:
// after the last retry it returns a truncated prefix of the input.
type Summarizer struct {
	cfg   config.SummarizerConfig
	model *helper.Lazy[Generator]
}

func NewSummarizer(cfg *config.SummarizerConfig) *Summarizer {
	c := *cfg
	return &Summarizer{
		cfg: c,
		model: helper.NewLazy(func() (Generator, error) {
			return NewModel(&c.LLMConfig)
		}),
	}
}

// NewSummarizerWith uses an existing model.
func NewSummarizerWith(model Generator, cfg *config.SummarizerConfig) *Summarizer {
	return &Summarizer{
		cfg:   *cfg,
		model: helper.NewLazy(func() (Generator, error) { return model, nil }),
	}
}

func (s *Summarizer) Summarize(ctx context.Context, text string, kind models.Kind) string {
	summary, err := s.summarize(ctx, text, kind)
	if err != nil {
		log.Warn().Err(err).Str("kind", string(kind)).Msg("Summarization failed, using truncated text")
		return s.Fallback(text)
	}
	return summary
}

// Fallback is what Summarize returns when the model can't be reached.
func (s *Summarizer) Fallback(text string) string {
	if cut, truncated := helper.TruncateRunes(text, s.cfg.FallbackChars); truncated {
		return cut + "..."
	}
	return text
}

func (s *Summarizer) summarize(ctx context.Context, text string, kind models.Kind) (string, error) {
	model, err := s.model.Get()
	if err != nil {
		return "", fmt.Errorf("failed to load summarizer model: %w", err)
	}

	input, _ := helper.TruncateRunes(text, s.cfg.MaxInputChars)
	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeHuman, fmt.Sprintf(models.SummaryPromptTemplate, kind, input)),
	}

	attempts := s.cfg.MaxRetries
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		summary, err := s.call(ctx, model, messages)
		if err == nil {
			return summary, nil
		}
		lastErr = err
		log.Debug().Err(err).Int("attempt", attempt).Msg("Summarizer call failed")

		if attempt == attempts {
			break
		}
		backoff := s.cfg.Backoff * time.Duration(attempt)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return "", fmt.Errorf("failed after %d attempts: %w", attempts, lastErr)
}

func (s *Summarizer) call(ctx context.Context, model Generator, messages []llms.MessageContent) (string, error) {
	callCtx := ctx
	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	out, err := GenerateContent(callCtx, model, messages,
		llms.WithMaxTokens(s.cfg.MaxTokens),
		llms.WithTemperature(s.cfg.Temperature),
	)
	if err != nil {
		return "", err
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return "", errors.New("empty summary")
	}
	return out, nil
}
