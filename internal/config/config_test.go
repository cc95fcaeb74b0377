package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{
		"OCR_BACKEND", "LEDGER_BACKEND", "DATABASE_DRIVER", "BATCH_WORKERS",
		"CAPABILITY_TIMEOUT", "LEDGER_SHEET", "S3_BUCKET", "OPENAI_MODEL",
	} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BatchWorkers != 4 {
		t.Fatalf("expected 4 batch workers, got %d", cfg.BatchWorkers)
	}
	if cfg.LedgerSheet != "Estudios Doppler" {
		t.Fatalf("unexpected sheet %q", cfg.LedgerSheet)
	}
	if cfg.OCRBackend != OCRBackendVision || cfg.LedgerBackend != LedgerBackendS3 || cfg.DatabaseDriver != DatabasePostgres {
		t.Fatalf("unexpected backends: %+v", cfg)
	}
	if cfg.CapabilityTimeout != 60*time.Second {
		t.Fatalf("unexpected timeout %s", cfg.CapabilityTimeout)
	}
	if cfg.OpenAIModel != "gpt-4o" {
		t.Fatalf("unexpected model %q", cfg.OpenAIModel)
	}
}

func TestLoadRejectsUnknownBackends(t *testing.T) {
	tests := []struct {
		key, value, want string
	}{
		{"OCR_BACKEND", "tesseract", "OCR_BACKEND"},
		{"LEDGER_BACKEND", "gcs", "LEDGER_BACKEND"},
		{"DATABASE_DRIVER", "mysql", "DATABASE_DRIVER"},
		{"BATCH_WORKERS", "-1", "BATCH_WORKERS"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			if err == nil {
				t.Fatalf("expected error for %s=%s", tt.key, tt.value)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error mentioning %s, got %v", tt.want, err)
			}
		})
	}
}

func TestRequirements(t *testing.T) {
	cfg := &Config{OCRBackend: OCRBackendDocumentAI, LedgerBackend: LedgerBackendS3, LedgerKey: "ledger.xlsx"}

	if err := cfg.RequireExtraction(); err == nil {
		t.Fatalf("expected missing OPENAI_API_KEY")
	}
	cfg.OpenAIAPIKey = "sk-test"
	if err := cfg.RequireExtraction(); err == nil || !strings.Contains(err.Error(), "GOOGLE_CLOUD_PROJECT") {
		t.Fatalf("expected missing project, got %v", err)
	}
	cfg.GoogleCloudProject = "proj"
	cfg.DocumentAIProcessorID = "proc"
	if err := cfg.RequireExtraction(); err != nil {
		t.Fatalf("RequireExtraction() error = %v", err)
	}

	if err := cfg.RequireStore(); err == nil {
		t.Fatalf("expected missing DATABASE_URL")
	}
	if err := cfg.RequireLedger(); err == nil {
		t.Fatalf("expected missing S3_BUCKET")
	}
	cfg.S3Bucket = "invoice-transcript"
	if err := cfg.RequireLedger(); err != nil {
		t.Fatalf("RequireLedger() error = %v", err)
	}
}
