package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"facturas/internal/logger"
)

var checkCmd = &cobra.Command{
	Use:   "check [order-number]",
	Short: "Check whether a service order was already processed",
	Long: `Look up a service order number in the dedup store.

Exits with code 3 when the order was already processed, so scripts can branch
the same way the process command does for duplicates.`,
	Example: `  facturas check OS-1001`,
	Args:    cobra.ExactArgs(1),
	RunE:    runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("check")
	orderNumber := args[0]

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

	exists, err := repo.ExistsByOrderNumber(ctx, orderNumber)
	if err != nil {
		return fmt.Errorf("failed to check order %s: %w", orderNumber, err)
	}

	if exists {
		fmt.Printf("Orden %s: ya procesada\n", orderNumber)
		return withExitCode(exitDuplicate, fmt.Errorf("order %s already processed", orderNumber))
	}
	fmt.Printf("Orden %s: no procesada\n", orderNumber)
	return nil
}
