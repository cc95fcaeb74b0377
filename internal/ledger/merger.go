// Package ledger appends processed invoices to the shared xlsx ledger.
//
// Every merge is a full fetch-modify-persist of the workbook snapshot. Merges are
// serialized by the Merger so concurrent pipeline runs never overwrite each other's
// rows. Rows are only ever appended; existing rows are never rewritten or reordered.
package ledger

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"

	"facturas/internal/logger"
	"facturas/internal/normalize"
	"facturas/pkg/models"
)

// DefaultSheet is the only sheet the merger reads or writes.
const DefaultSheet = "Estudios Doppler"

// Header is the fixed column order of the ledger.
var Header = []string{"FECHA", "NOMBRE", "ID", "EPS", "ESTUDIOS REALIZADOS", "COSTO", "COSTO FINAL", "OBSERVACIONES"}

// Mirror receives a copy of every batch of appended rows. Mirror failures are logged only.
type Mirror interface {
	AppendRows(ctx context.Context, rows []models.LedgerRow) error
}

type Option func(*Merger)

// WithMirror sets a best-effort secondary destination for appended rows.
func WithMirror(mirror Mirror) Option {
	return func(m *Merger) { m.mirror = mirror }
}

// WithSheet overrides DefaultSheet.
func WithSheet(sheet string) Option {
	return func(m *Merger) {
		if sheet != "" {
			m.sheet = sheet
		}
	}
}

type Merger struct {
	mu     sync.Mutex
	store  SnapshotStore
	sheet  string
	mirror Mirror
	log    zerolog.Logger
}

func NewMerger(store SnapshotStore, opts ...Option) *Merger {
	m := &Merger{
		store: store,
		sheet: DefaultSheet,
		log:   logger.WithComponent("ledger"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// BuildRows materializes one ledger row per service of a normalized record, in service order.
func BuildRows(rec *models.InvoiceRecord) []models.LedgerRow {
	rows := make([]models.LedgerRow, 0, len(rec.Services))
	for _, s := range rec.Services {
		rows = append(rows, models.LedgerRow{
			Date:      rec.Date,
			Name:      rec.PatientName,
			ID:        rec.PatientID,
			Entity:    normalize.ResolveEntity(rec.Entity, rec.Plan),
			Study:     s.Description,
			Cost:      s.Value.Pesos,
			FinalCost: normalize.FinalCost(s.Value.Pesos),
		})
	}
	return rows
}

// Merge appends the record's rows to the ledger and returns how many were written.
// A record without services writes nothing and does not touch the snapshot.
func (m *Merger) Merge(ctx context.Context, rec *models.InvoiceRecord) (int, error) {
	const op = "Merge"

	rows := BuildRows(rec)
	if len(rows) == 0 {
		return 0, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	start := time.Now()

	f, created, err := m.open(ctx)
	if err != nil {
		return 0, WrapLedgerError(op, err, "load snapshot")
	}
	defer f.Close()

	if err := m.ensureSheet(f, created); err != nil {
		return 0, WrapLedgerError(op, err, "prepare sheet")
	}

	existing, err := f.GetRows(m.sheet)
	if err != nil {
		return 0, WrapLedgerError(op, err, "read rows")
	}
	next := len(existing) + 1

	for i, row := range rows {
		cells := row.Cells()
		if err := f.SetSheetRow(m.sheet, fmt.Sprintf("A%d", next+i), &cells); err != nil {
			return 0, WrapLedgerError(op, err, fmt.Sprintf("write row %d", next+i))
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return 0, WrapLedgerError(op, err, "encode workbook")
	}

	location, err := m.store.Save(ctx, buf.Bytes())
	if err != nil {
		return 0, WrapLedgerError(op, err, "save snapshot")
	}

	m.log.Info().
		Str("orden_servicio", rec.OrderNumber).
		Int("first_row", next).
		Int("rows_added", len(rows)).
		Str("location", location).
		Bool("created", created).
		Dur("duration", time.Since(start)).
		Msg("Ledger updated")

	if m.mirror != nil {
		if err := m.mirror.AppendRows(ctx, rows); err != nil {
			m.log.Warn().Err(err).Str("orden_servicio", rec.OrderNumber).Msg("Ledger mirror append failed")
		}
	}

	return len(rows), nil
}

// Rows returns the current content of the ledger sheet, header included.
// A ledger that was never written yields no rows.
func (m *Merger) Rows(ctx context.Context) ([][]string, error) {
	const op = "Rows"

	f, created, err := m.open(ctx)
	if err != nil {
		return nil, WrapLedgerError(op, err, "load snapshot")
	}
	defer f.Close()

	if created {
		return nil, nil
	}
	if idx, _ := f.GetSheetIndex(m.sheet); idx == -1 {
		return nil, nil
	}

	rows, err := f.GetRows(m.sheet)
	if err != nil {
		return nil, WrapLedgerError(op, err, "read rows")
	}
	return rows, nil
}

// open loads the snapshot, or starts an empty workbook when none exists.
// Any other load failure is returned: overwriting an unreadable ledger would lose rows.
func (m *Merger) open(ctx context.Context) (*excelize.File, bool, error) {
	data, err := m.store.Load(ctx)
	if errors.Is(err, ErrSnapshotNotFound) {
		m.log.Info().Str("sheet", m.sheet).Msg("No ledger snapshot found, starting a new workbook")
		return excelize.NewFile(), true, nil
	}
	if err != nil {
		return nil, false, err
	}

	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrCorruptSnapshot, err)
	}
	return f, false, nil
}

func (m *Merger) ensureSheet(f *excelize.File, created bool) error {
	if idx, err := f.GetSheetIndex(m.sheet); err != nil {
		return err
	} else if idx != -1 {
		return nil
	}

	idx, err := f.NewSheet(m.sheet)
	if err != nil {
		return err
	}

	header := make([]interface{}, len(Header))
	for i, h := range Header {
		header[i] = h
	}
	if err := f.SetSheetRow(m.sheet, "A1", &header); err != nil {
		return err
	}

	if created && m.sheet != "Sheet1" {
		if err := f.DeleteSheet("Sheet1"); err != nil {
			return err
		}
		if idx, err = f.GetSheetIndex(m.sheet); err != nil {
			return err
		}
	}
	f.SetActiveSheet(idx)

	_ = f.SetColWidth(m.sheet, "A", "A", 12)
	_ = f.SetColWidth(m.sheet, "B", "B", 32)
	_ = f.SetColWidth(m.sheet, "E", "E", 40)
	return nil
}
