package parser

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"sort"
	"strconv"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/rs/zerolog/log"
	_ "golang.org/x/image/tiff"

	"github.com/Ratchadaporn07043/astrobot/internal/models"
)

var ErrUnknownImageSize = errors.New("unknown image size")

// Image is an embedded raster image of a page.
type Image struct {
	Index  int // 1-based, in object order
	Name   string
	Format string
	Data   []byte
	// size as declared in the pdf, used when Data can't be decoded
	Width, Height int
	// nil when the image was never painted by the page content
	BBox *models.BoundingBox
}

// Dimensions decodes the pixel size from the image bytes, falling back to
// the declared size.
func (im Image) Dimensions() (int, int, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(im.Data))
	if err == nil {
		return cfg.Width, cfg.Height, nil
	}
	if im.Width > 0 && im.Height > 0 {
		return im.Width, im.Height, nil
	}
	return 0, 0, fmt.Errorf("%w: %v", ErrUnknownImageSize, err)
}

func pdfcpuConfig() *model.Configuration {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}

// Images extracts the page's images with pdfcpu and matches them to their
// placement in the content stream by resource name.
func (d *PDF) Images(page int) ([]Image, error) {
	raw, err := d.extractImages(page)
	if err != nil {
		return nil, err
	}

	content, box, err := d.pageContent(page)
	if err != nil {
		log.Debug().Err(err).Int("page", page).Msg("Image placement unavailable")
	}
	var placements []placement
	if content != nil {
		placements = content.Placements
	}
	used := make([]bool, len(placements))

	images := make([]Image, 0, len(raw))
	for i, img := range raw {
		var data []byte
		if img.Reader != nil {
			if data, err = io.ReadAll(img); err != nil {
				log.Warn().Err(err).Int("page", page).Str("image", img.Name).Msg("Error reading image")
				data = nil
			}
		}

		out := Image{
			Index:  i + 1,
			Name:   img.Name,
			Format: img.FileType,
			Data:   data,
			Width:  img.Width,
			Height: img.Height,
		}
		for j, p := range placements {
			if !used[j] && p.Name == img.Name {
				used[j] = true
				bbox := models.BoundingBox(box.topLeft(p.Rect))
				out.BBox = &bbox
				break
			}
		}
		images = append(images, out)
	}
	return images, nil
}

func (d *PDF) extractImages(page int) (images []model.Image, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("failed to extract images: %v", r)
		}
	}()

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, err := d.file.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("failed to rewind %s: %w", d.path, err)
	}
	pages, err := api.ExtractImagesRaw(d.file, []string{strconv.Itoa(page)}, pdfcpuConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to extract images: %w", err)
	}

	for _, m := range pages {
		for _, img := range m {
			images = append(images, img)
		}
	}
	sort.Slice(images, func(i, j int) bool {
		return images[i].ObjNr < images[j].ObjNr
	})
	return images, nil
}
