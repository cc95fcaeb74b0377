package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"facturas/internal/logger"
)

const (
	OCRBackendVision     = "vision"
	OCRBackendDocumentAI = "documentai"
	OCRBackendNone       = "none"

	LedgerBackendS3    = "s3"
	LedgerBackendLocal = "local"

	DatabasePostgres = "postgres"
	DatabaseSQLite   = "sqlite"
)

type Config struct {
	// OpenAI Configuration
	OpenAIAPIKey          string
	OpenAIModel           string
	OpenAIBaseURL         string
	OpenAITextMaxTokens   int
	OpenAIVisionMaxTokens int

	// Text recognition
	OCRBackend            string
	GoogleCloudProject    string
	GoogleCloudLocation   string
	DocumentAIProcessorID string

	// Dedup store
	DatabaseDriver string
	DatabaseURL    string

	// Ledger snapshot
	LedgerBackend string
	S3Bucket      string
	AWSRegion     string
	LedgerKey     string
	LedgerDir     string
	LedgerSheet   string

	// Optional Google Sheets mirror of appended rows
	GoogleSheetURL       string
	GoogleSheetWorksheet string

	// Optional replacement for the built-in EPS keyword table
	EPSAliasesFile string

	BatchWorkers      int
	CapabilityTimeout time.Duration

	// Logging Configuration
	LogLevel      string
	LogFormat     string
	LogTimeFormat string
	LogOutput     string
}

func Load() (*Config, error) {
	config := &Config{
		OpenAIAPIKey:          getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:           getEnv("OPENAI_MODEL", "gpt-4o"),
		OpenAIBaseURL:         getEnv("OPENAI_BASE_URL", ""),
		OpenAITextMaxTokens:   getIntEnv("OPENAI_TEXT_MAX_TOKENS", 1500),
		OpenAIVisionMaxTokens: getIntEnv("OPENAI_VISION_MAX_TOKENS", 1000),
		OCRBackend:            strings.ToLower(getEnv("OCR_BACKEND", OCRBackendVision)),
		GoogleCloudProject:    getEnv("GOOGLE_CLOUD_PROJECT", ""),
		GoogleCloudLocation:   getEnv("GOOGLE_CLOUD_LOCATION", "us"),
		DocumentAIProcessorID: getEnv("DOCUMENT_AI_PROCESSOR_ID", ""),
		DatabaseDriver:        strings.ToLower(getEnv("DATABASE_DRIVER", DatabasePostgres)),
		DatabaseURL:           getEnv("DATABASE_URL", ""),
		LedgerBackend:         strings.ToLower(getEnv("LEDGER_BACKEND", LedgerBackendS3)),
		S3Bucket:              getEnv("S3_BUCKET", "invoice-transcript"),
		AWSRegion:             getEnv("AWS_REGION", "sa-east-1"),
		LedgerKey:             getEnv("LEDGER_KEY", "ESTUDIOS DOPPLER JULIO - AGOSTO 2025.xlsx"),
		LedgerDir:             getEnv("LEDGER_DIR", "./data"),
		LedgerSheet:           getEnv("LEDGER_SHEET", "Estudios Doppler"),
		GoogleSheetURL:        getEnv("GOOGLE_SHEET_URL", ""),
		GoogleSheetWorksheet:  getEnv("GOOGLE_SHEET_WORKSHEET", "Estudios Doppler"),
		EPSAliasesFile:        getEnv("EPS_ALIASES_FILE", ""),
		BatchWorkers:          getIntEnv("BATCH_WORKERS", 4),
		CapabilityTimeout:     getDurationEnv("CAPABILITY_TIMEOUT", 60*time.Second),
		LogLevel:              getEnv("LOG_LEVEL", "info"),
		LogFormat:             getEnv("LOG_FORMAT", "console"),
		LogTimeFormat:         getEnv("LOG_TIME_FORMAT", "2006-01-02T15:04:05Z07:00"),
		LogOutput:             getEnv("LOG_OUTPUT", "stdout"),
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

func (c *Config) validate() error {
	switch c.OCRBackend {
	case OCRBackendVision, OCRBackendDocumentAI, OCRBackendNone:
	default:
		return fmt.Errorf("OCR_BACKEND must be one of vision, documentai, none (got %q)", c.OCRBackend)
	}
	switch c.LedgerBackend {
	case LedgerBackendS3, LedgerBackendLocal:
	default:
		return fmt.Errorf("LEDGER_BACKEND must be s3 or local (got %q)", c.LedgerBackend)
	}
	switch c.DatabaseDriver {
	case DatabasePostgres, DatabaseSQLite:
	default:
		return fmt.Errorf("DATABASE_DRIVER must be postgres or sqlite (got %q)", c.DatabaseDriver)
	}
	if c.BatchWorkers <= 0 {
		return fmt.Errorf("BATCH_WORKERS must be positive (got %d)", c.BatchWorkers)
	}
	if c.CapabilityTimeout <= 0 {
		return fmt.Errorf("CAPABILITY_TIMEOUT must be positive (got %s)", c.CapabilityTimeout)
	}
	if strings.TrimSpace(c.LedgerSheet) == "" {
		return fmt.Errorf("LEDGER_SHEET must not be empty")
	}
	return nil
}

// RequireExtraction checks the settings needed to recognize and extract invoices
func (c *Config) RequireExtraction() error {
	if c.OpenAIAPIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required")
	}
	if c.OCRBackend == OCRBackendDocumentAI {
		if c.GoogleCloudProject == "" {
			return fmt.Errorf("GOOGLE_CLOUD_PROJECT is required for the documentai backend")
		}
		if c.DocumentAIProcessorID == "" {
			return fmt.Errorf("DOCUMENT_AI_PROCESSOR_ID is required for the documentai backend")
		}
	}
	return nil
}

// RequireStore checks the settings needed to reach the dedup store
func (c *Config) RequireStore() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	return nil
}

// RequireLedger checks the settings needed to load and save the ledger snapshot
func (c *Config) RequireLedger() error {
	if c.LedgerKey == "" {
		return fmt.Errorf("LEDGER_KEY is required")
	}
	switch c.LedgerBackend {
	case LedgerBackendS3:
		if c.S3Bucket == "" {
			return fmt.Errorf("S3_BUCKET is required for the s3 ledger backend")
		}
	case LedgerBackendLocal:
		if c.LedgerDir == "" {
			return fmt.Errorf("LEDGER_DIR is required for the local ledger backend")
		}
	}
	return nil
}

// GetLoggerConfig returns a logger configuration from the main config
func (c *Config) GetLoggerConfig() logger.LogConfig {
	return logger.LogConfig{
		Level:      c.LogLevel,
		Format:     c.LogFormat,
		TimeFormat: c.LogTimeFormat,
		Output:     c.LogOutput,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
