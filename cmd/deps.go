package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"facturas/internal/config"
	"facturas/internal/extract"
	"facturas/internal/ledger"
	"facturas/internal/metrics"
	"facturas/internal/normalize"
	"facturas/internal/ocr"
	"facturas/internal/pipeline"
	"facturas/internal/sheets"
	"facturas/internal/store"
)

// closers collects cleanup functions and runs them in reverse order.
type closers []func() error

func (c *closers) add(fn func() error) { *c = append(*c, fn) }

func (c closers) close(log zerolog.Logger) {
	for i := len(c) - 1; i >= 0; i-- {
		if err := c[i](); err != nil {
			log.Warn().Err(err).Msg("Failed to release resource")
		}
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// createContext returns a context that is canceled on SIGINT/SIGTERM or after timeout.
func createContext(timeout time.Duration, log zerolog.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigChan)
		select {
		case sig := <-sigChan:
			log.Info().
				Str("signal", sig.String()).
				Msg("Received interrupt signal, canceling")
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}

func createRecognizer(ctx context.Context, cfg *config.Config, log zerolog.Logger) (ocr.Recognizer, error) {
	var (
		recognizer ocr.Recognizer
		err        error
	)
	switch cfg.OCRBackend {
	case config.OCRBackendNone:
		return ocr.NoopRecognizer{}, nil
	case config.OCRBackendDocumentAI:
		recognizer, err = ocr.NewDocumentAIRecognizer(ctx, ocr.DocumentAIConfig{
			ProjectID:   cfg.GoogleCloudProject,
			Location:    cfg.GoogleCloudLocation,
			ProcessorID: cfg.DocumentAIProcessorID,
			Timeout:     cfg.CapabilityTimeout,
		})
	default:
		recognizer, err = ocr.NewVisionRecognizer(ctx, cfg.CapabilityTimeout)
	}
	if err != nil {
		if errors.Is(err, ocr.ErrMissingCredentials) {
			return nil, fmt.Errorf("Google Cloud credentials not configured. Set GOOGLE_APPLICATION_CREDENTIALS "+
				"or GOOGLE_CREDENTIALS, or use OCR_BACKEND=none for vision-only extraction: %w", err)
		}
		return nil, fmt.Errorf("failed to create %s recognizer: %w", cfg.OCRBackend, err)
	}

	log.Debug().Str("backend", cfg.OCRBackend).Msg("Text recognizer created")
	return recognizer, nil
}

func createExtractor(cfg *config.Config) extract.Extractor {
	client := extract.NewOpenAIClient(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL)
	return extract.NewOpenAIExtractor(client, extract.OpenAIConfig{
		Model:           cfg.OpenAIModel,
		TextMaxTokens:   cfg.OpenAITextMaxTokens,
		VisionMaxTokens: cfg.OpenAIVisionMaxTokens,
		Timeout:         cfg.CapabilityTimeout,
	})
}

func createNormalizer(cfg *config.Config) (*normalize.Normalizer, error) {
	if cfg.EPSAliasesFile == "" {
		return normalize.New(nil), nil
	}
	aliases, err := normalize.LoadEntityAliases(cfg.EPSAliasesFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load EPS aliases: %w", err)
	}
	return normalize.New(aliases), nil
}

func openRepository(ctx context.Context, cfg *config.Config) (*store.Repository, error) {
	if err := cfg.RequireStore(); err != nil {
		return nil, err
	}

	dialect := store.Dialect(cfg.DatabaseDriver)
	db, err := store.Open(dialect, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", cfg.DatabaseDriver, err)
	}

	repo := store.NewRepository(db, dialect)
	if err := repo.EnsureSchema(ctx); err != nil {
		_ = repo.Close()
		return nil, fmt.Errorf("failed to prepare database schema: %w", err)
	}
	return repo, nil
}

func createSnapshotStore(ctx context.Context, cfg *config.Config) (ledger.SnapshotStore, error) {
	if err := cfg.RequireLedger(); err != nil {
		return nil, err
	}
	if cfg.LedgerBackend == config.LedgerBackendLocal {
		return ledger.NewFileStore(cfg.LedgerDir, cfg.LedgerKey)
	}
	return ledger.NewS3Store(ctx, cfg.S3Bucket, cfg.LedgerKey, cfg.AWSRegion)
}

func createMerger(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*ledger.Merger, error) {
	snapshots, err := createSnapshotStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create ledger store: %w", err)
	}

	opts := []ledger.Option{ledger.WithSheet(cfg.LedgerSheet)}
	if cfg.GoogleSheetURL != "" {
		mirror, err := sheets.NewMirror(ctx, cfg.GoogleSheetURL, cfg.GoogleSheetWorksheet)
		if err != nil {
			// the xlsx snapshot is authoritative; run without the mirror
			log.Warn().Err(err).Msg("Google Sheets mirror disabled")
		} else {
			opts = append(opts, ledger.WithMirror(mirror))
		}
	}
	return ledger.NewMerger(snapshots, opts...), nil
}

// createOrchestrator wires every collaborator of the invoice pipeline from cfg.
func createOrchestrator(ctx context.Context, cfg *config.Config, m *metrics.Pipeline, log zerolog.Logger, opts ...pipeline.Option) (*pipeline.Orchestrator, closers, error) {
	var cleanup closers

	if err := cfg.RequireExtraction(); err != nil {
		return nil, nil, err
	}

	recognizer, err := createRecognizer(ctx, cfg, log)
	if err != nil {
		return nil, nil, err
	}
	cleanup.add(recognizer.Close)

	normalizer, err := createNormalizer(cfg)
	if err != nil {
		cleanup.close(log)
		return nil, nil, err
	}

	repo, err := openRepository(ctx, cfg)
	if err != nil {
		cleanup.close(log)
		return nil, nil, err
	}
	cleanup.add(repo.Close)

	merger, err := createMerger(ctx, cfg, log)
	if err != nil {
		cleanup.close(log)
		return nil, nil, err
	}

	opts = append([]pipeline.Option{
		pipeline.WithWorkers(cfg.BatchWorkers),
		pipeline.WithMetrics(m),
	}, opts...)
	orch := pipeline.New(recognizer, createExtractor(cfg), normalizer, repo, merger, opts...)
	return orch, cleanup, nil
}
