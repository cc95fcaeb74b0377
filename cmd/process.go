package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"facturas/internal/logger"
	"facturas/internal/pipeline"
	"facturas/pkg/models"
)

var processCmd = &cobra.Command{
	Use:   "process [image-file]",
	Short: "Process one invoice image into the ledger",
	Long: `Recognize, extract and normalize one invoice photo, then append its Doppler
studies to the ledger and record the service order as processed.

An invoice whose service order was already processed is rejected with exit
code 3 and leaves the ledger untouched.

Required environment variables:
  OPENAI_API_KEY - OpenAI API key
  DATABASE_URL   - Dedup store connection string
  GOOGLE_APPLICATION_CREDENTIALS or GOOGLE_CREDENTIALS - unless OCR_BACKEND=none
  AWS credentials - when LEDGER_BACKEND=s3`,
	Example: `  # Process one invoice
  facturas process factura.jpg

  # Print the extracted record as JSON
  facturas process factura.jpg --json`,
	Args: cobra.ExactArgs(1),
	RunE: runProcess,
}

// ProcessOutput is the JSON shape printed by process --json.
type ProcessOutput struct {
	Source     string                `json:"source"`
	RunID      string                `json:"run_id"`
	State      string                `json:"state"`
	Variant    string                `json:"variant,omitempty"`
	RowsAdded  int                   `json:"rows_added"`
	InvoiceID  int64                 `json:"invoice_id,omitempty"`
	Record     *models.InvoiceRecord `json:"record,omitempty"`
	Error      string                `json:"error,omitempty"`
	DurationMS int64                 `json:"duration_ms"`
}

func init() {
	rootCmd.AddCommand(processCmd)

	processCmd.Flags().Bool("json", false, "Output as JSON")
	processCmd.Flags().Duration("timeout", 5*time.Minute, "Overall processing timeout")
}

func runProcess(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("process")

	jsonOutput, _ := cmd.Flags().GetBool("json")
	timeout, _ := cmd.Flags().GetDuration("timeout")
	imagePath := args[0]

	if _, err := os.Stat(imagePath); err != nil {
		return fmt.Errorf("image not found: %s", imagePath)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := createContext(timeout, log)
	defer cancel()

	orch, cleanup, err := createOrchestrator(ctx, cfg, nil, log)
	if err != nil {
		return err
	}
	defer cleanup.close(log)

	res, procErr := orch.ProcessOne(ctx, pipeline.FileInput(imagePath))

	if jsonOutput {
		if err := printJSON(processOutput(res)); err != nil {
			return err
		}
	} else {
		printResult(res)
	}

	var dup *pipeline.DuplicateError
	if errors.As(procErr, &dup) {
		return withExitCode(exitDuplicate, procErr)
	}
	return procErr
}

func processOutput(res *pipeline.Result) ProcessOutput {
	out := ProcessOutput{
		Source:     res.Source,
		RunID:      res.RunID,
		State:      string(res.State),
		Variant:    res.Variant,
		RowsAdded:  res.RowsAdded,
		InvoiceID:  res.InvoiceID,
		Record:     res.Record,
		DurationMS: res.Duration.Milliseconds(),
	}
	if res.Err != nil {
		out.Error = res.Err.Error()
	}
	return out
}

func printResult(res *pipeline.Result) {
	var dup *pipeline.DuplicateError
	switch {
	case res.Err == nil:
		rec := res.Record
		fmt.Printf("Orden de servicio: %s\n", rec.OrderNumber)
		fmt.Printf("Paciente: %s (%s)\n", rec.PatientName, rec.PatientID)
		fmt.Printf("EPS: %s\n", rec.Entity)
		for _, s := range rec.Services {
			fmt.Printf("  %s  %-40s %12d\n", s.Code, s.Description, s.Value.Pesos)
		}
		fmt.Printf("Filas agregadas al ledger: %d\n", res.RowsAdded)
	case errors.As(res.Err, &dup):
		fmt.Printf("Factura ya procesada: orden de servicio %s\n", dup.OrderNumber)
	default:
		fmt.Printf("No se pudo procesar %s: %v\n", res.Source, res.Err)
	}
}

func marshalIndent(v interface{}) ([]byte, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to create JSON output: %w", err)
	}
	return data, nil
}

func printJSON(v interface{}) error {
	data, err := marshalIndent(v)
	if err != nil {
		return err
	}
	if _, err := os.Stdout.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}
