package llmservice

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"github.com/Ratchadaporn07043/astrobot/internal/config"
	"github.com/Ratchadaporn07043/astrobot/internal/models"
)

type fakeModel struct {
	failures int
	reply    string
	calls    int
	prompts  []string
}

func (f *fakeModel) GenerateContent(_ context.Context, messages []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	f.calls++
	for _, p := range messages[0].Parts {
		if t, ok := p.(llms.TextContent); ok {
			f.prompts = append(f.prompts, t.Text)
		}
	}
	if f.calls <= f.failures {
		return nil, errors.New("service unavailable")
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: f.reply}}}, nil
}

func testConfig() *config.SummarizerConfig {
	cfg := config.Default().Summarizer
	cfg.Backoff = 0
	return &cfg
}

func Test_Summarize_Success(t *testing.T) {
	m := &fakeModel{reply: "  ดาวอังคารให้พลัง  "}
	s := NewSummarizerWith(m, testConfig())

	out := s.Summarize(context.Background(), "some content", models.KindText)
	assert.Equal(t, "ดาวอังคารให้พลัง", out)
	assert.Equal(t, 1, m.calls)
	require.Len(t, m.prompts, 1)
	assert.Contains(t, m.prompts[0], "ประเภทเนื้อหา: text")
	assert.Contains(t, m.prompts[0], "some content")
}

func Test_Summarize_RetriesThenSucceeds(t *testing.T) {
	m := &fakeModel{failures: 2, reply: "ok"}
	s := NewSummarizerWith(m, testConfig())

	assert.Equal(t, "ok", s.Summarize(context.Background(), "text", models.KindTable))
	assert.Equal(t, 3, m.calls)
}

func Test_Summarize_ExhaustedFallsBack(t *testing.T) {
	content := strings.Repeat("a", 500)
	m := &fakeModel{failures: 3, reply: "never"}
	s := NewSummarizerWith(m, testConfig())

	out := s.Summarize(context.Background(), content, models.KindText)
	assert.Equal(t, content[:200]+"...", out)
	assert.Equal(t, 3, m.calls)
}

func Test_Summarize_ShortFallbackIsUnchanged(t *testing.T) {
	m := &fakeModel{failures: 10}
	s := NewSummarizerWith(m, testConfig())

	assert.Equal(t, "short text", s.Summarize(context.Background(), "short text", models.KindImage))
}

func Test_Summarize_EmptyReplyCountsAsFailure(t *testing.T) {
	m := &fakeModel{reply: "   "}
	s := NewSummarizerWith(m, testConfig())

	assert.Equal(t, "text", s.Summarize(context.Background(), "text", models.KindText))
	assert.Equal(t, 3, m.calls)
}

func Test_Summarize_TruncatesInput(t *testing.T) {
	content := strings.Repeat("ก", 2500)
	m := &fakeModel{reply: "ok"}
	s := NewSummarizerWith(m, testConfig())

	s.Summarize(context.Background(), content, models.KindText)
	require.Len(t, m.prompts, 1)
	assert.Contains(t, m.prompts[0], strings.Repeat("ก", 2000)+"...")
	assert.NotContains(t, m.prompts[0], strings.Repeat("ก", 2001))
}

func Test_Summarize_FallbackRunes(t *testing.T) {
	s := NewSummarizerWith(&fakeModel{}, testConfig())
	thai := strings.Repeat("ด", 201)
	assert.Equal(t, strings.Repeat("ด", 200)+"...", s.Fallback(thai))
	assert.Equal(t, strings.Repeat("ด", 200), s.Fallback(strings.Repeat("ด", 200)))
}

func Test_NewModel_UnknownProvider(t *testing.T) {
	_, err := NewModel(&config.LLMConfig{Provider: "mystery"})
	assert.Error(t, err)
}
