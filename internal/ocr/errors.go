package ocr

import (
	"errors"
	"fmt"
)

var (
	// ErrRecognitionUnavailable is returned when a backend produced no usable text.
	// Callers treat it as a signal to fall back to vision-only extraction.
	ErrRecognitionUnavailable = errors.New("text recognition unavailable")

	// ErrImageTooLarge is returned when the image exceeds the backend request limit.
	ErrImageTooLarge = errors.New("image exceeds the maximum size for inline recognition")

	// ErrEmptyImage is returned for zero-length input.
	ErrEmptyImage = errors.New("empty image")

	// ErrMissingCredentials is returned when no Google credentials could be found.
	ErrMissingCredentials = errors.New("missing Google Cloud credentials: set GOOGLE_APPLICATION_CREDENTIALS or GOOGLE_CREDENTIALS")
)

// RecognitionError wraps errors with the backend operation that failed.
type RecognitionError struct {
	Op      string
	Backend string
	Err     error
	Details string
}

func (e *RecognitionError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("ocr(%s): %s failed: %s: %v", e.Backend, e.Op, e.Details, e.Err)
	}
	return fmt.Sprintf("ocr(%s): %s failed: %v", e.Backend, e.Op, e.Err)
}

func (e *RecognitionError) Unwrap() error {
	return e.Err
}

func (e *RecognitionError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// WrapRecognitionError wraps err as a RecognitionError unless it already is one.
func WrapRecognitionError(backend, op string, err error, details string) error {
	if err == nil {
		return nil
	}

	var recErr *RecognitionError
	if errors.As(err, &recErr) {
		return err
	}

	return &RecognitionError{Op: op, Backend: backend, Err: err, Details: details}
}
