package cmd

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"facturas/internal/logger"
)

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Inspect the xlsx ledger",
}

var ledgerShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the rows of the ledger sheet",
	Args:  cobra.NoArgs,
	RunE:  runLedgerShow,
}

func init() {
	rootCmd.AddCommand(ledgerCmd)
	ledgerCmd.AddCommand(ledgerShowCmd)

	ledgerShowCmd.Flags().Int("tail", 0, "Only print the last N data rows")
}

func runLedgerShow(cmd *cobra.Command, _ []string) error {
	log := logger.WithComponent("ledger")
	tail, _ := cmd.Flags().GetInt("tail")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := createContext(time.Minute, log)
	defer cancel()

	merger, err := createMerger(ctx, cfg, log)
	if err != nil {
		return err
	}

	rows, err := merger.Rows(ctx)
	if err != nil {
		return fmt.Errorf("failed to read ledger: %w", err)
	}
	if len(rows) == 0 {
		fmt.Println("El ledger está vacío.")
		return nil
	}

	header, data := rows[0], rows[1:]
	if tail > 0 && tail < len(data) {
		data = data[len(data)-tail:]
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, strings.Join(header, "\t"))
	for _, row := range data {
		fmt.Fprintln(w, strings.Join(row, "\t"))
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Printf("\n%d filas en %s\n", len(rows)-1, cfg.LedgerSheet)
	return nil
}
