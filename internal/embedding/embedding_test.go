package embedding

import (
	"context"
	"errors"
	"testing"

	"cloud.google.com/go/aiplatform/apiv1/aiplatformpb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/Ratchadaporn07043/astrobot/internal/config"
)

type fakeEmbedder struct {
	vec   []float32
	err   error
	calls []string
}

func (f *fakeEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := f.EmbedQuery(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (f *fakeEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	f.calls = append(f.calls, text)
	return f.vec, f.err
}

func Test_TextEmbedder(t *testing.T) {
	ctx := context.Background()

	ok := &fakeEmbedder{vec: []float32{1, 2, 3}}
	e := NewTextEmbedderWith(ok, 3)
	assert.Equal(t, []float32{1, 2, 3}, e.Embed(ctx, "hello"))
	assert.Equal(t, []string{"hello"}, ok.calls)

	failing := NewTextEmbedderWith(&fakeEmbedder{err: errors.New("down")}, 3)
	assert.Equal(t, []float32{0, 0, 0}, failing.Embed(ctx, "hello"))

	wrongSize := NewTextEmbedderWith(&fakeEmbedder{vec: []float32{1}}, 3)
	assert.Equal(t, []float32{0, 0, 0}, wrongSize.Embed(ctx, "hello"))
}

func Test_TextEmbedder_UnknownProvider(t *testing.T) {
	e := NewTextEmbedder(&config.TextEmbeddingConfig{
		LLMConfig: config.LLMConfig{Provider: "nope"},
		Dimension: 4,
	})
	assert.Equal(t, 4, e.Dimension())
	assert.Equal(t, make([]float32, 4), e.Embed(context.Background(), "x"))
}

type fakePredictor struct {
	resp *aiplatformpb.PredictResponse
	err  error
	req  *aiplatformpb.PredictRequest
}

func (f *fakePredictor) Predict(_ context.Context, req *aiplatformpb.PredictRequest) (*aiplatformpb.PredictResponse, error) {
	f.req = req
	return f.resp, f.err
}

func predictionWith(t *testing.T, values ...any) *aiplatformpb.PredictResponse {
	v, err := structpb.NewValue(map[string]any{"imageEmbedding": values})
	require.NoError(t, err)
	return &aiplatformpb.PredictResponse{Predictions: []*structpb.Value{v}}
}

func Test_ImageEmbedder(t *testing.T) {
	ctx := context.Background()
	p := &fakePredictor{resp: predictionWith(t, 0.5, -0.25)}
	e := NewImageEmbedderWith(p, "projects/p/locations/l/publishers/google/models/m", 2)

	vec, ok := e.Embed(ctx, []byte("img"))
	require.True(t, ok)
	assert.Equal(t, []float32{0.5, -0.25}, vec)
	assert.Equal(t, "projects/p/locations/l/publishers/google/models/m", p.req.Endpoint)
	image := p.req.Instances[0].GetStructValue().GetFields()["image"].GetStructValue()
	assert.Equal(t, "aW1n", image.GetFields()["bytesBase64Encoded"].GetStringValue())

	p.err = errors.New("quota")
	vec, ok = e.Embed(ctx, []byte("img"))
	assert.False(t, ok)
	assert.Nil(t, vec)

	// a failed call does not disable the embedder
	p.err = nil
	_, ok = e.Embed(ctx, []byte("img"))
	assert.True(t, ok)
}

func Test_ImageEmbedder_Unavailable(t *testing.T) {
	disabled := NewImageEmbedder(&config.ImageEmbeddingConfig{Enabled: false})
	assert.False(t, disabled.Available())
	vec, ok := disabled.Embed(context.Background(), []byte("img"))
	assert.False(t, ok)
	assert.Nil(t, vec)

	noProject := NewImageEmbedder(&config.ImageEmbeddingConfig{Enabled: true, Location: "us-central1"})
	assert.False(t, noProject.Available())
}

func Test_ParseImageEmbedding_Empty(t *testing.T) {
	_, err := parseImageEmbedding(&aiplatformpb.PredictResponse{})
	assert.Error(t, err)
}
