package cmd

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"facturas/internal/logger"
	"facturas/internal/store"
)

var invoicesCmd = &cobra.Command{
	Use:   "invoices",
	Short: "List or delete processed invoices",
	Long: `Administrative access to the dedup store. Deleting an invoice lets the same
service order be processed again; ledger rows are never touched.`,
}

var invoicesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List processed invoices, newest first",
	Args:  cobra.NoArgs,
	RunE:  runInvoicesList,
}

var invoicesDeleteCmd = &cobra.Command{
	Use:     "delete [id]",
	Short:   "Delete a processed invoice and its services",
	Example: `  facturas invoices delete 42`,
	Args:    cobra.ExactArgs(1),
	RunE:    runInvoicesDelete,
}

func init() {
	rootCmd.AddCommand(invoicesCmd)
	invoicesCmd.AddCommand(invoicesListCmd, invoicesDeleteCmd)

	invoicesListCmd.Flags().Int("limit", 50, "Maximum number of invoices to list (0 for all)")
	invoicesListCmd.Flags().Bool("json", false, "Output as JSON")
}

func runInvoicesList(cmd *cobra.Command, _ []string) error {
	log := logger.WithComponent("invoices")

	limit, _ := cmd.Flags().GetInt("limit")
	jsonOutput, _ := cmd.Flags().GetBool("json")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := createContext(30*time.Second, log)
	defer cancel()

	repo, err := openRepository(ctx, cfg)
	if err != nil {
		return err
	}
	defer repo.Close()

	invoices, err := repo.ListInvoices(ctx, limit)
	if err != nil {
		return fmt.Errorf("failed to list invoices: %w", err)
	}

	if jsonOutput {
		return printJSON(invoices)
	}

	if len(invoices) == 0 {
		fmt.Println("No hay facturas procesadas.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tORDEN\tPACIENTE\tCEDULA\tFILAS\tPROCESADA\tSERVICIOS")
	for _, inv := range invoices {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\t%s\t%s\n",
			inv.ID, inv.OrderNumber, inv.PatientName, inv.PatientID, inv.LedgerRowCount,
			inv.ProcessedAt.Format("2006-01-02 15:04"), strings.Join(inv.Services, "; "))
	}
	return w.Flush()
}

func runInvoicesDelete(_ *cobra.Command, args []string) error {
	log := logger.WithComponent("invoices")

	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || id <= 0 {
		return fmt.Errorf("invalid invoice id: %s", args[0])
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := createContext(30*time.Second, log)
	defer cancel()

	repo, err := openRepository(ctx, cfg)
	if err != nil {
		return err
	}
	defer repo.Close()

	if err := repo.DeleteInvoice(ctx, id); err != nil {
		if errors.Is(err, store.ErrInvoiceNotFound) {
			return fmt.Errorf("invoice %d not found", id)
		}
		return fmt.Errorf("failed to delete invoice %d: %w", id, err)
	}

	log.Info().Int64("invoice_id", id).Msg("Invoice deleted")
	fmt.Printf("Factura %d eliminada\n", id)
	return nil
}
