package ledger

import (
	"errors"
	"fmt"
)

var (
	// ErrSnapshotNotFound is returned by a SnapshotStore when no ledger has been saved yet.
	ErrSnapshotNotFound = errors.New("ledger snapshot not found")

	// ErrCorruptSnapshot is returned when the stored bytes are not a readable workbook.
	ErrCorruptSnapshot = errors.New("ledger snapshot is not a valid workbook")
)

// LedgerError wraps a failed ledger operation.
type LedgerError struct {
	Op      string
	Err     error
	Details string
}

func (e *LedgerError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("ledger: %s failed: %s: %v", e.Op, e.Details, e.Err)
	}
	return fmt.Sprintf("ledger: %s failed: %v", e.Op, e.Err)
}

func (e *LedgerError) Unwrap() error {
	return e.Err
}

func (e *LedgerError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// WrapLedgerError wraps err as a LedgerError unless it already is one.
func WrapLedgerError(op string, err error, details string) error {
	if err == nil {
		return nil
	}

	var ledgerErr *LedgerError
	if errors.As(err, &ledgerErr) {
		return err
	}

	return &LedgerError{Op: op, Err: err, Details: details}
}
