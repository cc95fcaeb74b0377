// Package ocr turns invoice photographs into raw text.
//
// Backends:
//   - vision: Google Cloud Vision DOCUMENT_TEXT_DETECTION on inline image bytes
//   - documentai: a Document AI OCR processor
//   - none: always unavailable, forcing vision-only extraction
//
// Credentials come from GOOGLE_CREDENTIALS (inline JSON) or GOOGLE_APPLICATION_CREDENTIALS,
// falling back to application default credentials.
//
// A recognizer never returns empty text with a nil error: empty output is reported
// as ErrRecognitionUnavailable.
package ocr

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"google.golang.org/api/option"
)

const (
	// MaxImageBytes is the inline request limit shared by both Google backends.
	MaxImageBytes = 20 * 1024 * 1024

	// DefaultTimeout bounds a single recognition call.
	DefaultTimeout = 60 * time.Second
)

// Recognizer extracts raw text from an image.
type Recognizer interface {
	Recognize(ctx context.Context, image []byte) (*Recognition, error)
	Close() error
}

// Recognition is the raw output of one recognizer call.
type Recognition struct {
	Text       string        `json:"text"`
	Confidence float32       `json:"confidence"`
	Backend    string        `json:"backend"`
	Duration   time.Duration `json:"duration"`
}

func credentialOptions() []option.ClientOption {
	if credJSON := os.Getenv("GOOGLE_CREDENTIALS"); credJSON != "" {
		return []option.ClientOption{option.WithCredentialsJSON([]byte(credJSON))}
	}
	if credFile := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"); credFile != "" {
		return []option.ClientOption{option.WithCredentialsFile(credFile)}
	}
	return nil
}

func checkImage(backend, op string, image []byte) error {
	if len(image) == 0 {
		return WrapRecognitionError(backend, op, ErrEmptyImage, "")
	}
	if len(image) > MaxImageBytes {
		return WrapRecognitionError(backend, op, ErrImageTooLarge, "")
	}
	return nil
}

func sniffImageMIME(image []byte) string {
	return mimetype.Detect(image).String()
}

func usable(text string) bool {
	return strings.TrimSpace(text) != ""
}

// NoopRecognizer never recognizes anything.
type NoopRecognizer struct{}

func (NoopRecognizer) Recognize(context.Context, []byte) (*Recognition, error) {
	return nil, WrapRecognitionError("none", "Recognize", ErrRecognitionUnavailable, "recognition disabled")
}

func (NoopRecognizer) Close() error { return nil }
