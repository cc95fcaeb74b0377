package logger

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestSetupJSONFileWithRunFields(t *testing.T) {
	prevLevel := zerolog.GlobalLevel()
	t.Cleanup(func() {
		_ = Setup(DefaultConfig())
		zerolog.SetGlobalLevel(prevLevel)
	})

	path := filepath.Join(t.TempDir(), "facturas.log")
	if err := Setup(LogConfig{Level: "debug", Format: "json", Output: path}); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}

	log := WithRun("pipeline", "run-42", "scan_001.jpg")
	log.Info().Msg("Invoice processed")
	ledgerLog := WithComponent("ledger")
	ledgerLog.Debug().Msg("Snapshot loaded")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 log lines, got %d:\n%s", len(lines), data)
	}

	var entry map[string]interface{}
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("log line is not json: %v", err)
	}
	for field, want := range map[string]string{
		"component": "pipeline",
		"run_id":    "run-42",
		"source":    "scan_001.jpg",
		"message":   "Invoice processed",
		"level":     "info",
	} {
		if entry[field] != want {
			t.Fatalf("field %s = %v, want %q", field, entry[field], want)
		}
	}

	if err := json.Unmarshal([]byte(lines[1]), &entry); err != nil {
		t.Fatalf("log line is not json: %v", err)
	}
	if entry["component"] != "ledger" || entry["level"] != "debug" {
		t.Fatalf("unexpected component entry %v", entry)
	}
}

func TestSetupRejectsUnknownLevel(t *testing.T) {
	if err := Setup(LogConfig{Level: "loud", Output: "stdout"}); err == nil {
		t.Fatal("expected error for unknown level")
	}
}
