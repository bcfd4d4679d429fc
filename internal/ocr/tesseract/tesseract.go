// Package tesseract adapts gosseract to the ocr.Recognizer interface.
package tesseract

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/otiai10/gosseract/v2"
	"github.com/rs/zerolog/log"

	"github.com/Ratchadaporn07043/astrobot/internal/helper"
	"github.com/Ratchadaporn07043/astrobot/internal/ocr"
)

// Client is created on first use and reused for the rest of the process.
// gosseract clients are not safe for concurrent use, so calls are serialized.
type Client struct {
	mu     sync.Mutex
	client *helper.Lazy[*gosseract.Client]
}

func New(languages []string) *Client {
	return &Client{
		client: helper.NewLazy(func() (*gosseract.Client, error) {
			log.Info().Strs("languages", languages).Msg("Loading OCR engine")
			c := gosseract.NewClient()
			if err := c.SetLanguage(languages...); err != nil {
				c.Close()
				return nil, fmt.Errorf("failed to set OCR languages: %w", err)
			}
			return c, nil
		}),
	}
}

// Recognize returns one span per text line.
func (c *Client) Recognize(ctx context.Context, img []byte) ([]ocr.Span, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cl, err := c.client.Get()
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := cl.SetImageFromBytes(img); err != nil {
		return nil, fmt.Errorf("failed to load image for OCR: %w", err)
	}
	boxes, err := cl.GetBoundingBoxes(gosseract.RIL_TEXTLINE)
	if err != nil {
		return nil, fmt.Errorf("failed to run OCR: %w", err)
	}

	spans := make([]ocr.Span, 0, len(boxes))
	for _, b := range boxes {
		text := strings.TrimSpace(b.Word)
		if text == "" {
			continue
		}
		spans = append(spans, ocr.Span{
			Box:        b.Box,
			Text:       text,
			Confidence: b.Confidence / 100,
		})
	}
	return spans, nil
}

// Close releases the engine if it was ever started.
func (c *Client) Close() error {
	cl, ok := c.client.Loaded()
	if !ok {
		return nil
	}
	return cl.Close()
}
