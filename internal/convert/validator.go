package convert

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/atelier-ai/atelier/internal/domain"
)

// Supported media types.
const (
	MediaTypePDF  = "application/pdf"
	MediaTypeJPEG = "image/jpeg"
	MediaTypePNG  = "image/png"
)

// MaxUploadBytes is the default upload size ceiling.
const MaxUploadBytes = 50 * 1024 * 1024

var (
	pdfMagic  = []byte("%PDF-")
	jpegMagic = []byte{0xFF, 0xD8, 0xFF}
	pngMagic  = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}
)

// SniffMediaType identifies the upload by magic bytes, not extension.
func SniffMediaType(data []byte) string {
	switch {
	case bytes.HasPrefix(data, pdfMagic):
		return MediaTypePDF
	case bytes.HasPrefix(data, jpegMagic):
		return MediaTypeJPEG
	case bytes.HasPrefix(data, pngMagic):
		return MediaTypePNG
	default:
		return ""
	}
}

// ValidateUpload rejects empty, oversized or unrecognized uploads early.
// A maxBytes of zero or less falls back to MaxUploadBytes.
func ValidateUpload(filename string, data []byte, maxBytes int64) error {
	if maxBytes <= 0 {
		maxBytes = MaxUploadBytes
	}
	if strings.TrimSpace(filename) == "" {
		return domain.ValidationError("filename cannot be empty", nil)
	}
	if len(data) == 0 {
		return domain.ValidationError(fmt.Sprintf("file is empty: %s", filename), nil)
	}
	if int64(len(data)) > maxBytes {
		return domain.ValidationError(fmt.Sprintf("file exceeds %d MB limit: %s", maxBytes/(1024*1024), filename), nil)
	}

	mediaType := SniffMediaType(data)
	if mediaType == "" {
		return domain.ValidationError(fmt.Sprintf("unrecognized file type: %s (expected PDF, JPEG or PNG)", filename), nil)
	}

	// A PDF header must sit at byte zero; anything else was sniffed fine.
	return nil
}
