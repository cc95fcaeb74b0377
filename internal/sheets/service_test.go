package sheets

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"facturas/pkg/models"
)

type fakeSheetsAPI struct {
	mu       sync.Mutex
	titles   []string
	header   bool
	appended [][]interface{}
	calls    []string
}

func (f *fakeSheetsAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	path := r.URL.Path
	f.calls = append(f.calls, r.Method+" "+path)
	w.Header().Set("Content-Type", "application/json")

	switch {
	case strings.HasSuffix(path, ":batchUpdate"):
		var req sheets.BatchUpdateSpreadsheetRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		f.titles = append(f.titles, req.Requests[0].AddSheet.Properties.Title)
		_ = json.NewEncoder(w).Encode(sheets.BatchUpdateSpreadsheetResponse{})
	case strings.HasSuffix(path, ":append"):
		var vr sheets.ValueRange
		_ = json.NewDecoder(r.Body).Decode(&vr)
		f.appended = append(f.appended, vr.Values...)
		_ = json.NewEncoder(w).Encode(sheets.AppendValuesResponse{})
	case strings.Contains(path, "/values/") && r.Method == http.MethodPut:
		f.header = true
		_ = json.NewEncoder(w).Encode(sheets.UpdateValuesResponse{})
	case strings.Contains(path, "/values/"):
		vr := sheets.ValueRange{}
		if f.header {
			vr.Values = [][]interface{}{{"FECHA"}}
		}
		_ = json.NewEncoder(w).Encode(vr)
	default:
		ss := sheets.Spreadsheet{}
		for _, title := range f.titles {
			ss.Sheets = append(ss.Sheets, &sheets.Sheet{Properties: &sheets.SheetProperties{Title: title}})
		}
		_ = json.NewEncoder(w).Encode(ss)
	}
}

func TestExtractSpreadsheetID(t *testing.T) {
	id, err := extractSpreadsheetID("https://docs.google.com/spreadsheets/d/1AbC-d_9/edit#gid=0")
	if err != nil || id != "1AbC-d_9" {
		t.Fatalf("extractSpreadsheetID() = %q, %v", id, err)
	}
	if _, err := extractSpreadsheetID("https://example.com/file.xlsx"); err == nil {
		t.Fatalf("expected error for non-sheets URL")
	}
}

func TestMirrorCreatesWorksheetOnceAndAppends(t *testing.T) {
	api := &fakeSheetsAPI{}
	srv := httptest.NewServer(api)
	defer srv.Close()

	svc, err := sheets.NewService(context.Background(), option.WithEndpoint(srv.URL+"/"), option.WithoutAuthentication())
	if err != nil {
		t.Fatalf("sheets.NewService() error = %v", err)
	}
	mirror := NewMirrorWithService(svc, "sheet-id", "")

	rows := []models.LedgerRow{{Date: "05/08/2025", Name: "MARIA PEREZ", ID: "1020304050", Entity: "Nueva EPS", Study: "DOPPLER RENAL", Cost: 18360000, FinalCost: 9180000}}
	for i := 0; i < 2; i++ {
		if err := mirror.AppendRows(context.Background(), rows); err != nil {
			t.Fatalf("AppendRows() error = %v", err)
		}
	}

	if len(api.titles) != 1 || api.titles[0] != "Estudios Doppler" {
		t.Fatalf("expected one worksheet creation, got %v", api.titles)
	}
	if !api.header {
		t.Fatalf("expected header row to be written")
	}
	if len(api.appended) != 2 || api.appended[0][4] != "DOPPLER RENAL" {
		t.Fatalf("unexpected appended values %v", api.appended)
	}
}
