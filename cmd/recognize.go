package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"facturas/internal/cedula"
	"facturas/internal/imageprep"
	"facturas/internal/logger"
	"facturas/internal/ocr"
)

var recognizeCmd = &cobra.Command{
	Use:   "recognize [image-file]",
	Short: "Extract raw text and the cedula hint from an invoice image",
	Long: `Run only the text recognizer on an invoice photo and print the recognized
text together with the patient cedula found in it, if any.

The backend is chosen with OCR_BACKEND (vision or documentai).

Required environment variables:
  GOOGLE_APPLICATION_CREDENTIALS - Path to service account JSON file, OR
  GOOGLE_CREDENTIALS - Inline JSON credentials string
  GOOGLE_CLOUD_PROJECT, DOCUMENT_AI_PROCESSOR_ID - for the documentai backend`,
	Example: `  # Print recognized text
  facturas recognize factura.jpg

  # Save text and metadata as JSON
  facturas recognize factura.jpg --json -o factura.json`,
	Args: cobra.ExactArgs(1),
	RunE: runRecognize,
}

// RecognizeOutput represents the JSON output structure when --json flag is used
type RecognizeOutput struct {
	Text               string  `json:"text"`
	CedulaHint         string  `json:"cedula_hint,omitempty"`
	Backend            string  `json:"backend"`
	Confidence         float32 `json:"confidence,omitempty"`
	ProcessingDuration string  `json:"processing_duration"`
	FileName           string  `json:"file_name"`
	ImageMIME          string  `json:"image_mime"`
	Resized            bool    `json:"resized"`
}

func init() {
	rootCmd.AddCommand(recognizeCmd)

	recognizeCmd.Flags().StringP("output", "o", "", "Output file path (default: stdout)")
	recognizeCmd.Flags().Bool("json", false, "Output as JSON")
	recognizeCmd.Flags().Duration("timeout", 2*time.Minute, "Processing timeout")
}

func runRecognize(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("recognize")

	outputPath, _ := cmd.Flags().GetString("output")
	jsonOutput, _ := cmd.Flags().GetBool("json")
	timeout, _ := cmd.Flags().GetDuration("timeout")
	imagePath := args[0]

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	img, err := imageprep.Load(imagePath)
	if err != nil {
		if errors.Is(err, imageprep.ErrUnsupportedImage) {
			return fmt.Errorf("unsupported image %s. Use a JPEG, PNG or WebP photo", imagePath)
		}
		return fmt.Errorf("failed to read image: %w", err)
	}

	ctx, cancel := createContext(timeout, log)
	defer cancel()

	recognizer, err := createRecognizer(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := recognizer.Close(); closeErr != nil {
			log.Warn().Err(closeErr).Msg("Failed to close recognizer")
		}
	}()

	result, err := recognizer.Recognize(ctx, img.Data)
	if err != nil {
		return handleRecognitionError(err, log)
	}

	hint, _ := cedula.Extract(result.Text)
	log.Info().
		Str("backend", result.Backend).
		Int("text_length", len(result.Text)).
		Bool("cedula_hint", hint != "").
		Dur("duration", result.Duration).
		Msg("Text recognition completed")

	var output string
	if jsonOutput {
		data, err := marshalIndent(RecognizeOutput{
			Text:               result.Text,
			CedulaHint:         hint,
			Backend:            result.Backend,
			Confidence:         result.Confidence,
			ProcessingDuration: result.Duration.String(),
			FileName:           imagePath,
			ImageMIME:          img.SourceMIME,
			Resized:            img.Resized,
		})
		if err != nil {
			return err
		}
		output = string(data)
	} else {
		var b strings.Builder
		b.WriteString(result.Text)
		b.WriteString("\n\n=== Cédula ===\n")
		if hint != "" {
			b.WriteString(hint)
		} else {
			b.WriteString("(no encontrada)")
		}
		output = b.String()
	}

	return writeOutput(outputPath, output, log)
}

// handleRecognitionError provides user-friendly error messages for recognition failures
func handleRecognitionError(err error, log zerolog.Logger) error {
	log.Error().Err(err).Msg("Text recognition failed")

	errStr := err.Error()
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("text recognition timed out. Try increasing --timeout")
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("text recognition was canceled")
	case errors.Is(err, ocr.ErrImageTooLarge):
		return fmt.Errorf("image is too large for the recognition backend: %w", err)
	case errors.Is(err, ocr.ErrRecognitionUnavailable):
		return fmt.Errorf("no readable text found in the image. The invoice can still be processed with vision extraction")
	case strings.Contains(errStr, "PERMISSION_DENIED") || strings.Contains(errStr, "Unauthenticated"):
		return fmt.Errorf("Google Cloud authentication failed. Check GOOGLE_APPLICATION_CREDENTIALS and the service account roles: %w", err)
	default:
		return fmt.Errorf("text recognition failed: %w", err)
	}
}

func writeOutput(outputPath, output string, log zerolog.Logger) error {
	if outputPath == "" {
		_, err := fmt.Fprintln(os.Stdout, output)
		return err
	}
	if err := os.WriteFile(outputPath, []byte(output), 0o644); err != nil {
		return fmt.Errorf("failed to write output file: %w", err)
	}
	log.Info().Str("output_file", outputPath).Int("bytes", len(output)).Msg("Output written to file")
	return nil
}
