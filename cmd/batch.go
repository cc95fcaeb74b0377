package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"facturas/internal/logger"
	"facturas/internal/metrics"
	"facturas/internal/pipeline"
)

var batchCmd = &cobra.Command{
	Use:   "batch [folder-path]",
	Short: "Process every invoice image in a folder",
	Long: `Process all invoice images (.jpg, .jpeg, .png, .webp) in a folder.

Up to BATCH_WORKERS invoices (default 4) are recognized and extracted in
parallel; ledger updates are applied one invoice at a time. A failing invoice
never stops the others; failures are listed in the summary.

Required environment variables are the same as for the process command.`,
	Example: `  # Process a folder of invoice photos
  facturas batch ./facturas-julio

  # Expose Prometheus metrics while the batch runs
  facturas batch ./facturas-julio --metrics-addr :9090`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".webp": true,
}

func init() {
	rootCmd.AddCommand(batchCmd)

	batchCmd.Flags().String("metrics-addr", "", "Serve Prometheus metrics on this address while running")
	batchCmd.Flags().Duration("timeout", 30*time.Minute, "Overall batch timeout")
}

func runBatch(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("batch")

	folderPath := args[0]
	metricsAddr, _ := cmd.Flags().GetString("metrics-addr")
	timeout, _ := cmd.Flags().GetDuration("timeout")

	folderInfo, err := os.Stat(folderPath)
	if err != nil {
		return fmt.Errorf("folder not found: %s", folderPath)
	}
	if !folderInfo.IsDir() {
		return fmt.Errorf("path is not a directory: %s", folderPath)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	files, err := findImageFiles(folderPath)
	if err != nil {
		return fmt.Errorf("failed to find invoice images: %w", err)
	}
	if len(files) == 0 {
		fmt.Println("No se encontraron imágenes de facturas en la carpeta.")
		return nil
	}

	ctx, cancel := createContext(timeout, log)
	defer cancel()

	m := metrics.NewPipeline()
	if metricsAddr != "" {
		stop := serveMetrics(metricsAddr, m, log)
		defer stop()
	}

	orch, cleanup, err := createOrchestrator(ctx, cfg, m, log, pipeline.WithProgress(printProgress))
	if err != nil {
		return err
	}
	defer cleanup.close(log)

	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Carpeta: %s\n", folderPath)
	fmt.Printf("Procesando %d facturas con %d en paralelo...\n\n", len(files), orch.Workers())

	inputs := make([]pipeline.Input, len(files))
	for i, f := range files {
		inputs[i] = pipeline.FileInput(f)
	}
	batch := orch.ProcessBatch(ctx, inputs)

	printBatchSummary(batch)

	if len(batch.Failed) > 0 {
		return fmt.Errorf("%d of %d invoices failed", len(batch.Failed), len(files))
	}
	return nil
}

// findImageFiles lists supported images directly and recursively under folderPath, sorted.
func findImageFiles(folderPath string) ([]string, error) {
	var files []string

	err := filepath.Walk(folderPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && imageExtensions[strings.ToLower(filepath.Ext(info.Name()))] {
			files = append(files, path)
		}
		return nil
	})

	sort.Strings(files)
	return files, err
}

func serveMetrics(addr string, m *metrics.Pipeline, log zerolog.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		log.Info().Str("addr", addr).Msg("Serving metrics")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("Metrics server failed")
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

func printProgress(done, total int, res *pipeline.Result) {
	fmt.Printf("[%d/%d] %s - %s", done, total, filepath.Base(res.Source), statusEmoji(res.State))
	switch {
	case res.Err != nil:
		fmt.Printf(" (%v)", res.Err)
	case res.Record != nil:
		fmt.Printf(" (orden %s, %d filas)", res.Record.OrderNumber, res.RowsAdded)
	}
	fmt.Println()
}

func statusEmoji(state pipeline.State) string {
	switch state {
	case pipeline.StatePersisted:
		return "✅"
	case pipeline.StateRejected:
		return "⚠️"
	case pipeline.StateFailed:
		return "❌"
	default:
		return "❓"
	}
}

func printBatchSummary(batch *pipeline.BatchResult) {
	rows := 0
	for _, res := range batch.Successful {
		rows += res.RowsAdded
	}

	fmt.Println()
	fmt.Println(strings.Repeat("=", 50))
	fmt.Println("                 RESULTADO")
	fmt.Println(strings.Repeat("=", 50))
	fmt.Printf("Exitosas: %d\n", len(batch.Successful))
	fmt.Printf("Filas agregadas: %d\n", rows)
	if len(batch.Failed) > 0 {
		fmt.Printf("Fallidas: %d\n", len(batch.Failed))
		for _, f := range batch.Failed {
			fmt.Printf("  - %s: %v\n", filepath.Base(f.Source), f.Err)
		}
	}
	fmt.Println(strings.Repeat("=", 50))
}
