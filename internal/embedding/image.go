package embedding

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	aiplatform "cloud.google.com/go/aiplatform/apiv1"
	"cloud.google.com/go/aiplatform/apiv1/aiplatformpb"
	"github.com/rs/zerolog/log"
	"google.golang.org/api/option"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/Ratchadaporn07043/astrobot/internal/config"
	"github.com/Ratchadaporn07043/astrobot/internal/helper"
)

var ErrImageEmbedderDisabled = errors.New("image embedder disabled")

// ImageEmbedder maps raw image bytes to a vector. ok is false when there is
// no embedding, which callers treat as an absent field.
type ImageEmbedder interface {
	Embed(ctx context.Context, img []byte) (vec []float32, ok bool)
}

// Predictor is the slice of the Vertex AI prediction client we use.
type Predictor interface {
	Predict(ctx context.Context, req *aiplatformpb.PredictRequest) (*aiplatformpb.PredictResponse, error)
}

type predictionClient struct {
	c *aiplatform.PredictionClient
}

func (p predictionClient) Predict(ctx context.Context, req *aiplatformpb.PredictRequest) (*aiplatformpb.PredictResponse, error) {
	return p.c.Predict(ctx, req)
}

// Image is a joint image/text encoder on Vertex AI. A client that fails to
// load marks the embedder unavailable for the rest of the process.
type Image struct {
	endpoint  string
	dim       int
	predictor *helper.Lazy[Predictor]
}

func NewImageEmbedder(cfg *config.ImageEmbeddingConfig) *Image {
	c := *cfg
	return &Image{
		endpoint: modelEndpoint(&c),
		dim:      c.Dimension,
		predictor: helper.NewLazy(func() (Predictor, error) {
			if !c.Enabled {
				return nil, ErrImageEmbedderDisabled
			}
			if c.Project == "" {
				return nil, fmt.Errorf("image embedder needs a project id")
			}
			log.Info().Str("model", c.Model).Str("location", c.Location).Msg("Loading image embedding model")
			client, err := aiplatform.NewPredictionClient(context.Background(),
				option.WithEndpoint(fmt.Sprintf("%s-aiplatform.googleapis.com:443", c.Location)))
			if err != nil {
				log.Warn().Err(err).Msg("Image embedder unavailable for this run")
				return nil, fmt.Errorf("failed to create prediction client: %w", err)
			}
			return predictionClient{c: client}, nil
		}),
	}
}

// NewImageEmbedderWith uses an already built predictor.
func NewImageEmbedderWith(p Predictor, endpoint string, dim int) *Image {
	return &Image{
		endpoint:  endpoint,
		dim:       dim,
		predictor: helper.NewLazy(func() (Predictor, error) { return p, nil }),
	}
}

func modelEndpoint(cfg *config.ImageEmbeddingConfig) string {
	return fmt.Sprintf("projects/%s/locations/%s/publishers/google/models/%s", cfg.Project, cfg.Location, cfg.Model)
}

// Available reports whether the model could be loaded.
func (e *Image) Available() bool {
	_, err := e.predictor.Get()
	return err == nil
}

func (e *Image) Embed(ctx context.Context, img []byte) ([]float32, bool) {
	p, err := e.predictor.Get()
	if err != nil {
		return nil, false
	}

	instance, err := structpb.NewValue(map[string]any{
		"image": map[string]any{
			"bytesBase64Encoded": base64.StdEncoding.EncodeToString(img),
		},
	})
	if err != nil {
		log.Error().Err(err).Msg("Error building image embedding request")
		return nil, false
	}
	params, err := structpb.NewValue(map[string]any{"dimension": e.dim})
	if err != nil {
		log.Error().Err(err).Msg("Error building image embedding request")
		return nil, false
	}

	resp, err := p.Predict(ctx, &aiplatformpb.PredictRequest{
		Endpoint:   e.endpoint,
		Instances:  []*structpb.Value{instance},
		Parameters: params,
	})
	if err != nil {
		log.Error().Err(err).Msg("Error creating image embedding")
		return nil, false
	}

	vec, err := parseImageEmbedding(resp)
	if err != nil {
		log.Error().Err(err).Msg("Error reading image embedding")
		return nil, false
	}
	return vec, true
}

func parseImageEmbedding(resp *aiplatformpb.PredictResponse) ([]float32, error) {
	if len(resp.GetPredictions()) == 0 {
		return nil, errors.New("empty prediction")
	}
	fields := resp.GetPredictions()[0].GetStructValue().GetFields()
	values := fields["imageEmbedding"].GetListValue().GetValues()
	if len(values) == 0 {
		return nil, errors.New("prediction has no imageEmbedding")
	}
	vec := make([]float32, len(values))
	for i, v := range values {
		vec[i] = float32(v.GetNumberValue())
	}
	return vec, nil
}
