package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"facturas/internal/logger"
)

var version = "1.0.0"

// Exit codes beyond the generic failure.
const (
	exitFailure   = 1
	exitDuplicate = 3
)

var rootCmd = &cobra.Command{
	Use:   "facturas",
	Short: "Facturas - turn medical imaging invoices into ledger rows",
	Long: `Facturas reads photos of Colombian medical imaging invoices, extracts the
patient, insurer and billed studies, and appends the Doppler studies to the
shared xlsx ledger.

Every processed invoice is recorded by its service order number, so the same
invoice is never added to the ledger twice.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// exitError carries a process exit code through cobra's error return.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func withExitCode(code int, err error) error {
	if err == nil {
		return nil
	}
	return &exitError{code: code, err: err}
}

func Execute() int {
	log := logger.WithComponent("cmd")

	if err := rootCmd.Execute(); err != nil {
		code := exitFailure
		var exitErr *exitError
		if errors.As(err, &exitErr) {
			code = exitErr.code
		}
		log.Debug().
			Err(err).
			Int("exit_code", code).
			Msg("Command execution failed")
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return code
	}
	return 0
}
