package ledger

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"testing"

	"github.com/xuri/excelize/v2"

	"facturas/pkg/models"
)

type memoryStore struct {
	mu      sync.Mutex
	data    []byte
	saves   int
	loadErr error
	saveErr error
}

func (s *memoryStore) Load(context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	if s.data == nil {
		return nil, ErrSnapshotNotFound
	}
	return append([]byte(nil), s.data...), nil
}

func (s *memoryStore) Save(_ context.Context, data []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return "", s.saveErr
	}
	s.data = append([]byte(nil), data...)
	s.saves++
	return "memory://ledger.xlsx", nil
}

type recordingMirror struct {
	rows []models.LedgerRow
	err  error
}

func (m *recordingMirror) AppendRows(_ context.Context, rows []models.LedgerRow) error {
	m.rows = append(m.rows, rows...)
	return m.err
}

func invoice(order string, values ...int64) *models.InvoiceRecord {
	rec := &models.InvoiceRecord{
		OrderNumber: order,
		Date:        "05/08/2025",
		PatientName: "MARIA PEREZ",
		PatientID:   "1020304050",
		Entity:      "Nueva EPS",
	}
	for i, v := range values {
		rec.Services = append(rec.Services, models.ServiceLine{
			Code:        fmt.Sprintf("88222%d", i),
			Description: fmt.Sprintf("DOPPLER %s-%d", order, i),
			Value:       models.PesosValue(v),
		})
	}
	return rec
}

func readRows(t *testing.T, store *memoryStore) [][]string {
	t.Helper()
	f, err := excelize.OpenReader(bytes.NewReader(store.data))
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer f.Close()
	rows, err := f.GetRows(DefaultSheet)
	if err != nil {
		t.Fatalf("get rows: %v", err)
	}
	return rows
}

func TestMergeCreatesLedgerWithHeader(t *testing.T) {
	store := &memoryStore{}
	m := NewMerger(store)

	n, err := m.Merge(context.Background(), invoice("OS-1", 18360000, 251000))
	if err != nil {
		t.Fatalf("Merge() error = %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 rows added, got %d", n)
	}

	rows := readRows(t, store)
	if !reflect.DeepEqual(rows[0], Header) {
		t.Fatalf("unexpected header %v", rows[0])
	}
	if len(rows) != 3 {
		t.Fatalf("expected header plus 2 rows, got %d", len(rows))
	}
	want := []string{"05/08/2025", "MARIA PEREZ", "1020304050", "Nueva EPS", "DOPPLER OS-1-0", "18360000", "9180000", ""}
	if !reflect.DeepEqual(trimRow(rows[1], len(want)), want) {
		t.Fatalf("unexpected first row %v", rows[1])
	}

	f, _ := excelize.OpenReader(bytes.NewReader(store.data))
	defer f.Close()
	if idx, _ := f.GetSheetIndex("Sheet1"); idx != -1 {
		t.Fatalf("default sheet must be removed from a new ledger")
	}
}

func trimRow(row []string, n int) []string {
	out := make([]string, n)
	copy(out, row)
	return out
}

func TestMergeIsAppendOnly(t *testing.T) {
	store := &memoryStore{}
	m := NewMerger(store)
	ctx := context.Background()

	if _, err := m.Merge(ctx, invoice("OS-1", 100000, 200000, 300000)); err != nil {
		t.Fatalf("Merge() error = %v", err)
	}
	before := readRows(t, store)

	n, err := m.Merge(ctx, invoice("OS-2", 400000, 500000))
	if err != nil {
		t.Fatalf("Merge() error = %v", err)
	}
	after := readRows(t, store)

	if len(after) != len(before)+n || n != 2 {
		t.Fatalf("expected %d rows, got %d", len(before)+2, len(after))
	}
	if !reflect.DeepEqual(after[:len(before)], before) {
		t.Fatalf("existing rows changed:\nbefore %v\nafter  %v", before, after[:len(before)])
	}
	if after[len(before)][4] != "DOPPLER OS-2-0" {
		t.Fatalf("new rows must follow existing ones, got %v", after[len(before)])
	}
}

func TestMergePreservesOtherSheets(t *testing.T) {
	f := excelize.NewFile()
	_ = f.SetCellValue("Sheet1", "A1", "resumen")
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("write workbook: %v", err)
	}
	store := &memoryStore{data: buf.Bytes()}

	if _, err := NewMerger(store).Merge(context.Background(), invoice("OS-1", 100000)); err != nil {
		t.Fatalf("Merge() error = %v", err)
	}

	out, _ := excelize.OpenReader(bytes.NewReader(store.data))
	defer out.Close()
	if v, _ := out.GetCellValue("Sheet1", "A1"); v != "resumen" {
		t.Fatalf("unrelated sheet was modified, got %q", v)
	}
	if rows := readRows(t, store); len(rows) != 2 {
		t.Fatalf("expected header plus one row, got %d", len(rows))
	}
}

func TestMergeWithoutServicesTouchesNothing(t *testing.T) {
	store := &memoryStore{}
	n, err := NewMerger(store).Merge(context.Background(), invoice("OS-1"))
	if err != nil || n != 0 {
		t.Fatalf("expected 0 rows and no error, got %d, %v", n, err)
	}
	if store.saves != 0 {
		t.Fatalf("expected no snapshot save, got %d", store.saves)
	}
}

func TestMergeFailsOnUnreadableSnapshot(t *testing.T) {
	loadErr := errors.New("access denied")
	store := &memoryStore{loadErr: loadErr}
	_, err := NewMerger(store).Merge(context.Background(), invoice("OS-1", 100000))
	if !errors.Is(err, loadErr) {
		t.Fatalf("expected load error, got %v", err)
	}
	var ledgerErr *LedgerError
	if !errors.As(err, &ledgerErr) {
		t.Fatalf("expected LedgerError, got %T", err)
	}

	corrupt := &memoryStore{data: []byte("not a zip")}
	if _, err := NewMerger(corrupt).Merge(context.Background(), invoice("OS-1", 100000)); !errors.Is(err, ErrCorruptSnapshot) {
		t.Fatalf("expected ErrCorruptSnapshot, got %v", err)
	}
	if corrupt.saves != 0 {
		t.Fatalf("corrupt ledger must not be overwritten")
	}
}

func TestMergeSaveFailure(t *testing.T) {
	store := &memoryStore{saveErr: errors.New("bucket unavailable")}
	if _, err := NewMerger(store).Merge(context.Background(), invoice("OS-1", 100000)); err == nil {
		t.Fatalf("expected save error")
	}
}

func TestConcurrentMergesKeepEveryRow(t *testing.T) {
	store := &memoryStore{}
	m := NewMerger(store)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := m.Merge(context.Background(), invoice(fmt.Sprintf("OS-%d", i), 100000, 200000)); err != nil {
				t.Errorf("Merge() error = %v", err)
			}
		}(i)
	}
	wg.Wait()

	if rows := readRows(t, store); len(rows) != 1+8*2 {
		t.Fatalf("expected %d rows, got %d", 1+8*2, len(rows))
	}
}

func TestMirrorFailureDoesNotFailMerge(t *testing.T) {
	store := &memoryStore{}
	mirror := &recordingMirror{err: errors.New("sheets quota")}
	n, err := NewMerger(store, WithMirror(mirror)).Merge(context.Background(), invoice("OS-1", 100000))
	if err != nil || n != 1 {
		t.Fatalf("expected success despite mirror failure, got %d, %v", n, err)
	}
	if len(mirror.rows) != 1 || mirror.rows[0].FinalCost != 50000 {
		t.Fatalf("unexpected mirrored rows %+v", mirror.rows)
	}
}

func TestBuildRowsDiscount(t *testing.T) {
	for _, row := range BuildRows(invoice("OS-1", 0, 1, 25, 18360000)) {
		if row.FinalCost > float64(row.Cost) || row.FinalCost != float64(row.Cost)*0.5 {
			t.Fatalf("bad discount for %+v", row)
		}
	}
}

func TestRowsOnEmptyLedger(t *testing.T) {
	rows, err := NewMerger(&memoryStore{}).Rows(context.Background())
	if err != nil || rows != nil {
		t.Fatalf("expected no rows, got %v, %v", rows, err)
	}
}
