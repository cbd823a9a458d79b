// Package convert turns uploaded documents into per-page images.
package convert

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png" // register PNG decoding for direct image uploads

	"github.com/gen2brain/go-fitz"
	"golang.org/x/sync/errgroup"

	"github.com/atelier-ai/atelier/internal/domain"
)

// Upload is one file received from a client.
type Upload struct {
	Filename string
	Data     []byte
}

// PageImage is one converted page held in memory.
type PageImage struct {
	PageNumber int
	MediaType  string
	Payload    []byte
	Width      int
	Height     int
}

// Converter rasterizes PDFs with go-fitz and validates direct image uploads.
type Converter struct {
	quality  int
	maxPages int
	maxBytes int64
}

// NewConverter creates a converter encoding JPEG at the given quality.
func NewConverter(quality, maxPages int) (*Converter, error) {
	if quality < 1 || quality > 100 {
		return nil, domain.ValidationError(fmt.Sprintf("quality must be between 1 and 100, got %d", quality), nil)
	}
	if maxPages <= 0 {
		maxPages = 60
	}
	return &Converter{quality: quality, maxPages: maxPages}, nil
}

// SetMaxUploadBytes overrides the default upload size ceiling. Zero or
// negative keeps the default.
func (c *Converter) SetMaxUploadBytes(n int64) {
	c.maxBytes = n
}

// Convert dispatches on the sniffed media type of the upload.
func (c *Converter) Convert(ctx context.Context, filename string, data []byte) ([]PageImage, error) {
	if err := ValidateUpload(filename, data, c.maxBytes); err != nil {
		return nil, err
	}

	switch SniffMediaType(data) {
	case MediaTypePDF:
		return c.convertPDF(ctx, data)
	case MediaTypeJPEG, MediaTypePNG:
		return c.convertImage(data)
	default:
		return nil, domain.ValidationError(fmt.Sprintf("unsupported file type: %s", filename), nil)
	}
}

// ConvertAll converts multiple uploads with bounded concurrency. The
// result is index-aligned with the input.
func (c *Converter) ConvertAll(ctx context.Context, uploads []Upload, maxConcurrent int) ([][]PageImage, error) {
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrent)

	results := make([][]PageImage, len(uploads))
	for i, u := range uploads {
		g.Go(func() error {
			pages, err := c.Convert(ctx, u.Filename, u.Data)
			if err != nil {
				return fmt.Errorf("%s: %w", u.Filename, err)
			}
			results[i] = pages
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// convertPDF rasterizes each PDF page to a JPEG payload.
func (c *Converter) convertPDF(ctx context.Context, data []byte) ([]PageImage, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, domain.ConversionError("Failed to open PDF", err)
	}
	defer doc.Close()

	pageCount := doc.NumPage()
	if pageCount == 0 {
		return nil, domain.ValidationError("PDF has no pages", nil)
	}
	if pageCount > c.maxPages {
		return nil, domain.ValidationError(fmt.Sprintf("PDF has %d pages, limit is %d", pageCount, c.maxPages), nil)
	}

	pages := make([]PageImage, 0, pageCount)
	for pageNum := 0; pageNum < pageCount; pageNum++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		img, err := doc.Image(pageNum)
		if err != nil {
			return nil, domain.ConversionError(fmt.Sprintf("Failed to convert page %d", pageNum+1), err)
		}

		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: c.quality}); err != nil {
			return nil, domain.ConversionError(fmt.Sprintf("Failed to encode page %d as JPG", pageNum+1), err)
		}

		bounds := img.Bounds()
		pages = append(pages, PageImage{
			PageNumber: pageNum + 1,
			MediaType:  MediaTypeJPEG,
			Payload:    buf.Bytes(),
			Width:      bounds.Dx(),
			Height:     bounds.Dy(),
		})
	}

	return pages, nil
}

// convertImage validates a direct JPEG/PNG upload and passes it through
// as a single page.
func (c *Converter) convertImage(data []byte) ([]PageImage, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, domain.ConversionError("Failed to decode image", err)
	}
	if cfg.Width == 0 || cfg.Height == 0 {
		return nil, domain.ValidationError("image has zero dimensions", nil)
	}

	return []PageImage{{
		PageNumber: 1,
		MediaType:  SniffMediaType(data),
		Payload:    data,
		Width:      cfg.Width,
		Height:     cfg.Height,
	}}, nil
}
