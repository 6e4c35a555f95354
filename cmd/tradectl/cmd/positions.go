package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var positionsCmd = &cobra.Command{
	Use:   "positions",
	Short: "List an account's open positions with fresh floating P&L",
	RunE:  runPositions,
}

var positionsAccountID int64

func init() {
	rootCmd.AddCommand(positionsCmd)

	positionsCmd.Flags().Int64Var(&positionsAccountID, "account", 0, "account ID (required)")
	positionsCmd.MarkFlagRequired("account")
}

func runPositions(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()

	positions, err := a.engine.EvaluateOpenPositions(cmd.Context(), positionsAccountID)
	if err != nil {
		return fmt.Errorf("evaluate positions: %w", err)
	}

	if len(positions) == 0 {
		fmt.Printf("Account %d has no open positions\n", positionsAccountID)
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tPAIR\tDIR\tVOLUME\tENTRY\tSL\tTP\tLEV\tFLOATING P&L\tSTATUS")
	for _, pos := range positions {
		fmt.Fprintf(w, "%d\t%s\t%s\t%.2f\t%.5f\t%.5f\t%.5f\t%d\t%+.2f\t%s\n",
			pos.ID, pos.PairSymbol, pos.Direction, pos.Volume, pos.EntryPrice,
			pos.StopLoss, pos.TakeProfit, pos.Leverage, pos.FloatingPL, pos.Status)
	}
	return w.Flush()
}
