package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"traderiser/internal/domain"
)

var closeCmd = &cobra.Command{
	Use:   "close [position-id]",
	Short: "Close an open position at a simulated price",
	Args:  cobra.ExactArgs(1),
	RunE:  runClose,
}

var closeAllCmd = &cobra.Command{
	Use:   "close-all",
	Short: "Close every open position of an account",
	RunE:  runCloseAll,
}

var closeAllAccountID int64

func init() {
	rootCmd.AddCommand(closeCmd)
	rootCmd.AddCommand(closeAllCmd)

	closeAllCmd.Flags().Int64Var(&closeAllAccountID, "account", 0, "account ID (required)")
	closeAllCmd.MarkFlagRequired("account")
}

func runClose(cmd *cobra.Command, args []string) error {
	var positionID int64
	if _, err := fmt.Sscanf(args[0], "%d", &positionID); err != nil {
		return fmt.Errorf("invalid position ID %q", args[0])
	}

	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()

	trade, err := a.engine.ClosePosition(cmd.Context(), positionID, 0, domain.CloseReasonManual)
	if err != nil {
		return fmt.Errorf("close position: %w", err)
	}
	if trade == nil {
		fmt.Printf("Position %d is already closed\n", positionID)
		return nil
	}

	fmt.Printf("Closed position %d: %s @ %.5f, realized P&L %+.2f\n",
		positionID, trade.PairSymbol, trade.ClosePrice, trade.RealizedPL)
	return nil
}

func runCloseAll(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()

	trades, err := a.engine.CloseAllPositions(cmd.Context(), closeAllAccountID)
	if err != nil {
		return fmt.Errorf("close all positions: %w", err)
	}

	if len(trades) == 0 {
		fmt.Printf("Account %d has no open positions\n", closeAllAccountID)
		return nil
	}
	var total float64
	for _, trade := range trades {
		fmt.Printf("Closed position %d: %s @ %.5f, realized P&L %+.2f\n",
			trade.PositionID, trade.PairSymbol, trade.ClosePrice, trade.RealizedPL)
		total += trade.RealizedPL
	}
	fmt.Printf("Closed %d positions, total realized P&L %+.2f\n", len(trades), total)
	return nil
}
