package extract

import (
	"errors"
	"fmt"
)

var (
	// ErrNoJSONRegion is returned when the model answer holds no balanced {...} region.
	ErrNoJSONRegion = errors.New("no JSON object found in model response")

	// ErrInvalidRecord is returned when the JSON region does not describe an invoice.
	ErrInvalidRecord = errors.New("model response is not a valid invoice record")

	// ErrEmptyResponse is returned when the model returned no choices or empty content.
	ErrEmptyResponse = errors.New("empty model response")
)

// ExtractionError wraps a failure of one extraction variant.
type ExtractionError struct {
	Op      string
	Variant string // "text" or "vision"
	Err     error
	Details string
}

func (e *ExtractionError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("extract(%s): %s failed: %s: %v", e.Variant, e.Op, e.Details, e.Err)
	}
	return fmt.Sprintf("extract(%s): %s failed: %v", e.Variant, e.Op, e.Err)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

func (e *ExtractionError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// WrapExtractionError wraps err as an ExtractionError unless it already is one.
func WrapExtractionError(variant, op string, err error, details string) error {
	if err == nil {
		return nil
	}

	var extErr *ExtractionError
	if errors.As(err, &extErr) {
		return err
	}

	return &ExtractionError{Op: op, Variant: variant, Err: err, Details: details}
}
