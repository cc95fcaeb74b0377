// Package pipeline runs invoice images through recognition, extraction, normalization,
// duplicate rejection and the ledger commit.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"facturas/internal/cedula"
	"facturas/internal/extract"
	"facturas/internal/logger"
	"facturas/internal/metrics"
	"facturas/internal/ocr"
	"facturas/internal/store"
	"facturas/pkg/models"
)

// DefaultWorkers is the batch concurrency window.
const DefaultWorkers = 4

type Recognizer interface {
	Recognize(ctx context.Context, image []byte) (*ocr.Recognition, error)
}

type Normalizer interface {
	Normalize(rec *models.InvoiceRecord) *models.InvoiceRecord
}

// DedupStore is the persistent record of processed order numbers.
type DedupStore interface {
	ExistsByOrderNumber(ctx context.Context, orderNumber string) (bool, error)
	PersistInvoice(ctx context.Context, rec *models.InvoiceRecord, ledgerRows int, imagePath string) (int64, error)
}

type LedgerMerger interface {
	Merge(ctx context.Context, rec *models.InvoiceRecord) (int, error)
}

type Option func(*Orchestrator)

// WithWorkers sets the batch window. Values below one are ignored.
func WithWorkers(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.workers = n
		}
	}
}

func WithMetrics(m *metrics.Pipeline) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// ProgressFunc is called once per finished batch run. Calls are serialized.
type ProgressFunc func(done, total int, res *Result)

func WithProgress(fn ProgressFunc) Option {
	return func(o *Orchestrator) { o.progress = fn }
}

// Orchestrator sequences one invoice run. Extraction runs concurrently across
// invoices; the duplicate recheck, ledger merge and invoice persistence run one
// invoice at a time.
type Orchestrator struct {
	recognizer Recognizer
	extractor  extract.Extractor
	normalizer Normalizer
	store      DedupStore
	ledger     LedgerMerger
	metrics    *metrics.Pipeline
	progress   ProgressFunc
	workers    int

	commitMu sync.Mutex
}

func New(recognizer Recognizer, extractor extract.Extractor, normalizer Normalizer, dedup DedupStore, ledger LedgerMerger, opts ...Option) *Orchestrator {
	if recognizer == nil {
		recognizer = ocr.NoopRecognizer{}
	}
	o := &Orchestrator{
		recognizer: recognizer,
		extractor:  extractor,
		normalizer: normalizer,
		store:      dedup,
		ledger:     ledger,
		workers:    DefaultWorkers,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// run carries the per-invoice state. It is never shared between goroutines.
type run struct {
	result *Result
	input  Input
	text   string
	log    zerolog.Logger
}

func (r *run) enter(state State) {
	r.result.State = state
	r.result.Trail = append(r.result.Trail, state)
	r.log.Debug().Str("state", string(state)).Msg("State transition")
}

// extractStep produces a record or fails; the next step in the table is tried on failure.
type extractStep struct {
	variant string
	reason  string // fallback reason recorded when this step fails
	do      func(ctx context.Context, o *Orchestrator, r *run) (*models.InvoiceRecord, error)
}

var (
	textAssisted = extractStep{
		variant: extract.VariantText,
		reason:  "text_extraction_failed",
		do: func(ctx context.Context, o *Orchestrator, r *run) (*models.InvoiceRecord, error) {
			return o.extractor.FromText(ctx, r.text, r.result.CedulaHint)
		},
	}
	visionOnly = extractStep{
		variant: extract.VariantVision,
		do: func(ctx context.Context, o *Orchestrator, r *run) (*models.InvoiceRecord, error) {
			return o.extractor.FromImage(ctx, r.input.Image, r.input.MIME)
		},
	}

	// keyed by whether recognition produced usable text
	extractionStrategies = map[bool][]extractStep{
		true:  {textAssisted, visionOnly},
		false: {visionOnly},
	}
)

// ProcessOne runs a single invoice to a terminal state. The returned error is the
// same as Result.Err: a *DuplicateError for Rejected, nil for Persisted.
func (o *Orchestrator) ProcessOne(ctx context.Context, in Input) (*Result, error) {
	runID := uuid.NewString()
	r := &run{
		result: &Result{RunID: runID, Source: in.Source},
		input:  in,
		log:    logger.WithRun("pipeline", runID, in.Source),
	}
	start := time.Now()
	o.metrics.StartInvoice()

	err := o.execute(ctx, r)

	res := r.result
	res.Duration = time.Since(start)
	switch {
	case err == nil:
		r.enter(StatePersisted)
		r.log.Info().
			Str("orden_servicio", res.Record.OrderNumber).
			Int("rows_added", res.RowsAdded).
			Int64("invoice_id", res.InvoiceID).
			Str("variant", res.Variant).
			Dur("duration", res.Duration).
			Msg("Invoice processed")
	case errors.Is(err, ErrDuplicateOrder):
		res.Err = err
		r.enter(StateRejected)
		r.log.Warn().Err(err).Msg("Invoice rejected as duplicate")
	default:
		res.Err = err
		r.enter(StateFailed)
		r.log.Error().Err(err).Msg("Invoice processing failed")
	}
	o.metrics.FinishInvoice(string(res.State), res.Duration)

	return res, res.Err
}

func (o *Orchestrator) execute(ctx context.Context, r *run) error {
	r.enter(StateReceived)
	if err := r.input.resolve(); err != nil {
		return err
	}

	r.enter(StateRecognizing)
	o.recognize(ctx, r)

	r.enter(StateExtracting)
	rec, err := o.extractRecord(ctx, r)
	if err != nil {
		return err
	}

	r.enter(StateNormalizing)
	rec = o.normalizer.Normalize(rec)
	r.result.Record = rec
	r.log.Debug().
		Str("orden_servicio", rec.OrderNumber).
		Int("surviving_services", len(rec.Services)).
		Msg("Record normalized")

	r.enter(StateDedupCheck)
	if err := o.checkDuplicate(ctx, rec.OrderNumber); err != nil {
		return err
	}

	return o.commit(ctx, r, rec)
}

// recognize never fails the run: missing text only changes the extraction strategy.
func (o *Orchestrator) recognize(ctx context.Context, r *run) {
	recognition, err := o.recognizer.Recognize(ctx, r.input.Image)
	if err != nil {
		level := r.log.Warn()
		if errors.Is(err, ocr.ErrRecognitionUnavailable) {
			level = r.log.Info()
		}
		level.Err(err).Msg("Text recognition unavailable, using vision extraction")
		return
	}
	if recognition == nil {
		return
	}

	r.text = recognition.Text
	if hint, ok := cedula.Extract(r.text); ok {
		r.result.CedulaHint = hint
	}
	r.log.Debug().
		Str("backend", recognition.Backend).
		Int("text_length", len(r.text)).
		Bool("cedula_hint", r.result.CedulaHint != "").
		Msg("Text recognized")
}

func (o *Orchestrator) extractRecord(ctx context.Context, r *run) (*models.InvoiceRecord, error) {
	textAvailable := strings.TrimSpace(r.text) != ""
	if !textAvailable {
		o.metrics.VisionFallback("recognition_unavailable")
	}

	var lastErr error
	steps := extractionStrategies[textAvailable]
	for i, step := range steps {
		rec, err := step.do(ctx, o, r)
		if err == nil && rec != nil {
			r.result.Variant = step.variant
			if extract.ApplyHint(rec, r.result.CedulaHint) {
				r.log.Debug().Str("variant", step.variant).Msg("Patient ID replaced with cedula hint")
			}
			return rec, nil
		}
		if err == nil {
			err = extract.ErrEmptyResponse
		}
		lastErr = err

		if i < len(steps)-1 {
			o.metrics.VisionFallback(step.reason)
			r.log.Warn().Err(err).Str("variant", step.variant).Msg("Extraction variant failed, falling back")
		}
	}

	return nil, &ExtractionError{Message: lastErr.Error(), Err: lastErr}
}

func (o *Orchestrator) checkDuplicate(ctx context.Context, orderNumber string) error {
	exists, err := o.store.ExistsByOrderNumber(ctx, orderNumber)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDedupLookup, err)
	}
	if exists {
		return &DuplicateError{OrderNumber: orderNumber}
	}
	return nil
}

// commit serializes the duplicate recheck, the ledger merge and invoice persistence so
// two runs with the same order number cannot both append rows.
func (o *Orchestrator) commit(ctx context.Context, r *run, rec *models.InvoiceRecord) error {
	o.commitMu.Lock()
	defer o.commitMu.Unlock()

	if err := o.checkDuplicate(ctx, rec.OrderNumber); err != nil {
		return err
	}

	r.enter(StateMerging)
	rows, err := o.ledger.Merge(ctx, rec)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrLedgerPersistence, err)
	}
	r.result.RowsAdded = rows
	o.metrics.AddLedgerRows(rows)

	id, err := o.store.PersistInvoice(ctx, rec, rows, r.input.Source)
	if err != nil {
		if errors.Is(err, store.ErrDuplicateOrder) {
			// another process committed the same order between our check and insert
			r.log.Warn().Int("rows_added", rows).Msg("Order persisted concurrently, ledger rows already appended")
			return &DuplicateError{OrderNumber: rec.OrderNumber}
		}
		r.log.Error().Err(err).Int("rows_added", rows).Msg("Ledger updated but invoice not marked processed")
		return fmt.Errorf("%w: %w", ErrInvoicePersistence, err)
	}
	r.result.InvoiceID = id
	return nil
}
