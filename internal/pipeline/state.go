package pipeline

import (
	"time"

	"facturas/pkg/models"
)

type State string

const (
	StateReceived    State = "received"
	StateRecognizing State = "recognizing"
	StateExtracting  State = "extracting"
	StateNormalizing State = "normalizing"
	StateDedupCheck  State = "dedup_check"
	StateMerging     State = "merging"
	StatePersisted   State = "persisted"
	StateFailed      State = "failed"
	StateRejected    State = "rejected"
)

// Terminal reports whether no further transition can happen from s.
func (s State) Terminal() bool {
	return s == StatePersisted || s == StateFailed || s == StateRejected
}

// Result is the outcome of one invoice run.
type Result struct {
	RunID  string
	Source string
	State  State
	Trail  []State // every state entered, in order

	Record     *models.InvoiceRecord
	CedulaHint string
	Variant    string // extraction variant that produced Record
	RowsAdded  int
	InvoiceID  int64

	Err      error
	Duration time.Duration
}

// BatchFailure pairs a failed source with its error.
type BatchFailure struct {
	Source string
	Err    error
}

// BatchResult partitions a batch into successful and failed runs.
type BatchResult struct {
	Successful []*Result
	Failed     []BatchFailure
	Results    []*Result // one per input, in input order
}
