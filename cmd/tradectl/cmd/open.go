package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"traderiser/internal/domain"
	"traderiser/internal/engine"
)

var openCmd = &cobra.Command{
	Use:   "open",
	Short: "Open a simulated leveraged position",
	Long: `Open a position at a simulated entry price.

The required margin (volume x contract size x entry price / leverage) is
debited from the account wallet.

Example:
  tradectl open --account 1 --pair EURUSD --direction buy --volume 0.01 --sl 1.0950 --tp 1.1100`,
	RunE: runOpen,
}

var (
	openAccountID  int64
	openPair       string
	openDirection  string
	openVolume     float64
	openStopLoss   float64
	openTakeProfit float64
	openLeverage   int
	openTimeframe  string
)

func init() {
	rootCmd.AddCommand(openCmd)

	openCmd.Flags().Int64Var(&openAccountID, "account", 0, "account ID (required)")
	openCmd.Flags().StringVar(&openPair, "pair", "", "pair symbol, e.g. EURUSD (required)")
	openCmd.Flags().StringVar(&openDirection, "direction", "buy", "buy or sell")
	openCmd.Flags().Float64Var(&openVolume, "volume", 0, "volume in lots (required)")
	openCmd.Flags().Float64Var(&openStopLoss, "sl", 0, "stop-loss price (0 = none)")
	openCmd.Flags().Float64Var(&openTakeProfit, "tp", 0, "take-profit price (0 = none)")
	openCmd.Flags().IntVar(&openLeverage, "leverage", 0, "leverage (0 = engine default)")
	openCmd.Flags().StringVar(&openTimeframe, "timeframe", "", "timeframe M1/M5/M15/M30/H1 (default from pair)")
	openCmd.MarkFlagRequired("account")
	openCmd.MarkFlagRequired("pair")
	openCmd.MarkFlagRequired("volume")
}

func runOpen(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()

	pos, err := a.engine.OpenPosition(cmd.Context(), engine.OrderRequest{
		AccountID:  openAccountID,
		PairSymbol: openPair,
		Direction:  domain.Direction(openDirection),
		Volume:     openVolume,
		StopLoss:   openStopLoss,
		TakeProfit: openTakeProfit,
		Leverage:   openLeverage,
		Timeframe:  domain.Timeframe(openTimeframe),
	})
	if err != nil {
		return fmt.Errorf("open position: %w", err)
	}

	fmt.Printf("Opened position %d: %s %s %.2f lots @ %.5f (leverage %d)\n",
		pos.ID, pos.Direction, pos.PairSymbol, pos.Volume, pos.EntryPrice, pos.Leverage)
	return nil
}
