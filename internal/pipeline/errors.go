package pipeline

import (
	"errors"
	"fmt"
)

var (
	// ErrDuplicateOrder matches every *DuplicateError.
	ErrDuplicateOrder = errors.New("invoice already processed")

	// ErrExtractionFailed matches every *ExtractionError.
	ErrExtractionFailed = errors.New("invoice extraction failed")

	// ErrLedgerPersistence wraps snapshot load or save failures. The invoice is not
	// marked processed, so resubmitting it can succeed later.
	ErrLedgerPersistence = errors.New("ledger persistence failed")

	// ErrInvoicePersistence wraps dedup store failures after a successful ledger merge.
	ErrInvoicePersistence = errors.New("invoice persistence failed")

	// ErrDedupLookup wraps a failed existence check.
	ErrDedupLookup = errors.New("duplicate check failed")

	// ErrInvalidInput is returned when the image cannot be loaded or prepared.
	ErrInvalidInput = errors.New("invalid invoice image")
)

// DuplicateError reports an order number that was already processed.
type DuplicateError struct {
	OrderNumber string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("invoice already processed: orden_servicio %s", e.OrderNumber)
}

func (e *DuplicateError) Is(target error) bool {
	return target == ErrDuplicateOrder
}

// ExtractionError reports that no extraction variant produced a record.
type ExtractionError struct {
	Message string
	Err     error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extraction failed: %s", e.Message)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

func (e *ExtractionError) Is(target error) bool {
	return target == ErrExtractionFailed
}
