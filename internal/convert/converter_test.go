package convert

import (
	"bytes"
	"context"
	"image"
	"image/jpeg"
	"image/png"
	"strings"
	"testing"

	"github.com/atelier-ai/atelier/internal/domain"
)

func encodeTestJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 80}); err != nil {
		t.Fatalf("encode jpeg: %v", err)
	}
	return buf.Bytes()
}

func encodeTestPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func TestSniffMediaType(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want string
	}{
		{"pdf", []byte("%PDF-1.7\n..."), MediaTypePDF},
		{"jpeg", []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00}, MediaTypeJPEG},
		{"png", []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A, 0x00}, MediaTypePNG},
		{"unknown", []byte("hello world"), ""},
		{"empty", nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SniffMediaType(tt.data); got != tt.want {
				t.Errorf("SniffMediaType() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestValidateUpload(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		data     []byte
		wantErr  bool
	}{
		{"valid pdf header", "doc.pdf", []byte("%PDF-1.4 rest"), false},
		{"empty filename", "  ", []byte("%PDF-1.4"), true},
		{"empty data", "doc.pdf", nil, true},
		{"unrecognized type", "doc.txt", []byte("plain text"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateUpload(tt.filename, tt.data, 0)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateUpload() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !domain.IsType(err, domain.ErrorTypeValidation) {
				t.Errorf("Expected validation error, got %v", err)
			}
		})
	}
}

func TestValidateUpload_SizeLimit(t *testing.T) {
	big := make([]byte, MaxUploadBytes+1)
	copy(big, pdfMagic)
	if err := ValidateUpload("big.pdf", big, 0); err == nil {
		t.Error("Expected error for oversized upload")
	}
}

func TestValidateUpload_ConfiguredLimit(t *testing.T) {
	data := []byte("%PDF-1.4 with some body text")
	if err := ValidateUpload("doc.pdf", data, 8); err == nil {
		t.Error("Expected error when the configured limit is below the upload size")
	}
	if err := ValidateUpload("doc.pdf", data, int64(len(data))); err != nil {
		t.Errorf("Upload at the configured limit should pass, got %v", err)
	}
}

func TestConverter_ConfiguredLimit(t *testing.T) {
	c, _ := NewConverter(85, 10)
	c.SetMaxUploadBytes(4)

	data := encodeTestJPEG(t, 10, 10)
	_, err := c.Convert(context.Background(), "photo.jpg", data)
	if err == nil {
		t.Fatal("Expected error for upload above the converter's limit")
	}
	if !domain.IsType(err, domain.ErrorTypeValidation) {
		t.Errorf("Expected validation error, got %v", err)
	}
}

func TestNewConverter_QualityBounds(t *testing.T) {
	if _, err := NewConverter(0, 10); err == nil {
		t.Error("Expected error for quality 0")
	}
	if _, err := NewConverter(101, 10); err == nil {
		t.Error("Expected error for quality 101")
	}
	if _, err := NewConverter(85, 10); err != nil {
		t.Errorf("Unexpected error for valid quality: %v", err)
	}
}

func TestConvert_DirectJPEG(t *testing.T) {
	c, _ := NewConverter(85, 10)
	data := encodeTestJPEG(t, 640, 480)

	pages, err := c.Convert(context.Background(), "photo.jpg", data)
	if err != nil {
		t.Fatalf("Convert() error = %v", err)
	}
	if len(pages) != 1 {
		t.Fatalf("Expected 1 page, got %d", len(pages))
	}
	p := pages[0]
	if p.MediaType != MediaTypeJPEG {
		t.Errorf("MediaType = %q", p.MediaType)
	}
	if p.Width != 640 || p.Height != 480 {
		t.Errorf("Dimensions = %dx%d, want 640x480", p.Width, p.Height)
	}
	if !bytes.Equal(p.Payload, data) {
		t.Error("Direct image upload should pass payload through unchanged")
	}
}

func TestConvert_DirectPNG(t *testing.T) {
	c, _ := NewConverter(85, 10)
	data := encodeTestPNG(t, 100, 50)

	pages, err := c.Convert(context.Background(), "sketch.png", data)
	if err != nil {
		t.Fatalf("Convert() error = %v", err)
	}
	if pages[0].MediaType != MediaTypePNG {
		t.Errorf("MediaType = %q", pages[0].MediaType)
	}
}

func TestConvert_TruncatedImage(t *testing.T) {
	c, _ := NewConverter(85, 10)
	// Valid JPEG magic but garbage body.
	data := []byte{0xFF, 0xD8, 0xFF, 0x00, 0x01}

	if _, err := c.Convert(context.Background(), "broken.jpg", data); err == nil {
		t.Error("Expected error for truncated image")
	}
}

func TestConvertAll_PropagatesErrors(t *testing.T) {
	c, _ := NewConverter(85, 10)
	uploads := []Upload{
		{Filename: "good.jpg", Data: encodeTestJPEG(t, 10, 10)},
		{Filename: "bad.txt", Data: []byte("not an image")},
	}

	_, err := c.ConvertAll(context.Background(), uploads, 2)
	if err == nil {
		t.Fatal("Expected error from bad upload")
	}
	if !strings.Contains(err.Error(), "bad.txt") {
		t.Errorf("Error should name the failing file, got: %v", err)
	}
}

func TestConvertAll_KeepsInputOrder(t *testing.T) {
	c, _ := NewConverter(85, 10)
	uploads := []Upload{
		{Filename: "a.jpg", Data: encodeTestJPEG(t, 10, 10)},
		{Filename: "b.png", Data: encodeTestPNG(t, 20, 10)},
	}

	results, err := c.ConvertAll(context.Background(), uploads, 2)
	if err != nil {
		t.Fatalf("ConvertAll() error = %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("Expected 2 results, got %d", len(results))
	}
	if results[0][0].MediaType != MediaTypeJPEG {
		t.Errorf("results[0] media type = %q", results[0][0].MediaType)
	}
	if results[1][0].MediaType != MediaTypePNG {
		t.Errorf("results[1] media type = %q", results[1][0].MediaType)
	}
}
