package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestPipelineCounters(t *testing.T) {
	m := NewPipeline()

	m.StartInvoice()
	m.StartInvoice()
	if got := testutil.ToFloat64(m.inFlight); got != 2 {
		t.Fatalf("expected 2 in flight, got %v", got)
	}

	m.FinishInvoice("persisted", time.Second)
	m.FinishInvoice("rejected", time.Second)
	m.AddLedgerRows(3)
	m.AddLedgerRows(0)
	m.VisionFallback("recognition_unavailable")

	if got := testutil.ToFloat64(m.inFlight); got != 0 {
		t.Fatalf("expected 0 in flight, got %v", got)
	}
	if got := testutil.ToFloat64(m.outcomes.WithLabelValues("persisted")); got != 1 {
		t.Fatalf("expected 1 persisted, got %v", got)
	}
	if got := testutil.ToFloat64(m.ledgerRows); got != 3 {
		t.Fatalf("expected 3 ledger rows, got %v", got)
	}
	if got := testutil.ToFloat64(m.fallbacks.WithLabelValues("recognition_unavailable")); got != 1 {
		t.Fatalf("expected 1 fallback, got %v", got)
	}
}

func TestNilPipelineIsSafe(t *testing.T) {
	var m *Pipeline
	m.StartInvoice()
	m.FinishInvoice("failed", time.Second)
	m.AddLedgerRows(1)
	m.VisionFallback("text_extraction_failed")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != 404 {
		t.Fatalf("expected 404 from nil handler, got %d", rec.Code)
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := NewPipeline()
	m.AddLedgerRows(2)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "facturas_ledger_rows_appended_total 2") {
		t.Fatalf("metrics output missing ledger rows:\n%s", rec.Body.String())
	}
}
