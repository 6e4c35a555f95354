package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"traderiser/internal/domain"
)

var copyCmd = &cobra.Command{
	Use:   "copy",
	Short: "Manage lead traders and copy-trade subscriptions",
}

var copyLeadCmd = &cobra.Command{
	Use:   "lead",
	Short: "Register an account as a lead trader",
	Long: `Register a trading account as a lead trader so its closed trades
propagate to subscribers.

Example:
  tradectl copy lead --account 1 --risk medium --min-allocation 50 --fee 20`,
	RunE: runCopyLead,
}

var copySubscribeCmd = &cobra.Command{
	Use:   "subscribe",
	Short: "Subscribe an account to a lead trader",
	RunE:  runCopySubscribe,
}

var copyPauseCmd = &cobra.Command{
	Use:   "pause [subscription-id]",
	Short: "Pause a subscription",
	Args:  cobra.ExactArgs(1),
	RunE:  runCopyPause,
}

var copyResumeCmd = &cobra.Command{
	Use:   "resume [subscription-id]",
	Short: "Resume a paused subscription",
	Args:  cobra.ExactArgs(1),
	RunE:  runCopyResume,
}

var copyStatsCmd = &cobra.Command{
	Use:   "stats [lead-trader-id]",
	Short: "Show a lead trader's performance stats",
	Args:  cobra.ExactArgs(1),
	RunE:  runCopyStats,
}

var (
	leadAccountID     int64
	leadRisk          string
	leadMinAllocation float64
	leadFeePercent    float64

	subAccountID    int64
	subLeadTraderID int64
	subAllocation   float64
	subMaxDrawdown  float64
)

func init() {
	rootCmd.AddCommand(copyCmd)
	copyCmd.AddCommand(copyLeadCmd)
	copyCmd.AddCommand(copySubscribeCmd)
	copyCmd.AddCommand(copyPauseCmd)
	copyCmd.AddCommand(copyResumeCmd)
	copyCmd.AddCommand(copyStatsCmd)

	copyLeadCmd.Flags().Int64Var(&leadAccountID, "account", 0, "trading account ID (required)")
	copyLeadCmd.Flags().StringVar(&leadRisk, "risk", string(domain.RiskMedium), "risk level: low, medium, or high")
	copyLeadCmd.Flags().Float64Var(&leadMinAllocation, "min-allocation", 50, "minimum subscriber allocation")
	copyLeadCmd.Flags().Float64Var(&leadFeePercent, "fee", 20, "performance fee percent")
	copyLeadCmd.MarkFlagRequired("account")

	copySubscribeCmd.Flags().Int64Var(&subAccountID, "account", 0, "subscriber account ID (required)")
	copySubscribeCmd.Flags().Int64Var(&subLeadTraderID, "lead", 0, "lead trader ID (required)")
	copySubscribeCmd.Flags().Float64Var(&subAllocation, "allocation", 0, "allocated amount (required)")
	copySubscribeCmd.Flags().Float64Var(&subMaxDrawdown, "max-drawdown", 0, "max drawdown percent (0 = default)")
	copySubscribeCmd.MarkFlagRequired("account")
	copySubscribeCmd.MarkFlagRequired("lead")
	copySubscribeCmd.MarkFlagRequired("allocation")
}

func parseID(arg string) (int64, error) {
	var id int64
	if _, err := fmt.Sscanf(arg, "%d", &id); err != nil {
		return 0, fmt.Errorf("invalid ID %q", arg)
	}
	return id, nil
}

func runCopyLead(cmd *cobra.Command, args []string) error {
	switch domain.RiskLevel(leadRisk) {
	case domain.RiskLow, domain.RiskMedium, domain.RiskHigh:
	default:
		return fmt.Errorf("invalid risk level %q", leadRisk)
	}

	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()

	if _, err := a.store.FindAccount(cmd.Context(), leadAccountID); err != nil {
		return fmt.Errorf("lead account: %w", err)
	}

	id, err := a.store.CreateLeadTrader(cmd.Context(), &domain.LeadTrader{
		AccountID:             leadAccountID,
		RiskLevel:             domain.RiskLevel(leadRisk),
		MinAllocation:         leadMinAllocation,
		PerformanceFeePercent: leadFeePercent,
		IsActive:              true,
	})
	if err != nil {
		return fmt.Errorf("register lead trader: %w", err)
	}

	fmt.Printf("Registered lead trader %d (account %d, %s risk, %.0f%% fee)\n",
		id, leadAccountID, leadRisk, leadFeePercent)
	return nil
}

func runCopySubscribe(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()

	sub, err := a.propagator.Subscribe(cmd.Context(), subAccountID, subLeadTraderID, subAllocation, subMaxDrawdown)
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	fmt.Printf("Subscription %d: account %d copies lead trader %d with %.2f allocated (max drawdown %.0f%%)\n",
		sub.ID, sub.AccountID, sub.LeadTraderID, sub.AllocatedAmount, sub.MaxDrawdownPercent)
	return nil
}

func runCopyPause(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}

	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.propagator.Pause(cmd.Context(), id); err != nil {
		return fmt.Errorf("pause subscription: %w", err)
	}
	fmt.Printf("Paused subscription %d\n", id)
	return nil
}

func runCopyResume(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}

	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.propagator.Resume(cmd.Context(), id); err != nil {
		return fmt.Errorf("resume subscription: %w", err)
	}
	fmt.Printf("Resumed subscription %d\n", id)
	return nil
}

func runCopyStats(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}

	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()

	stats, err := a.propagator.Stats(cmd.Context(), id)
	if err != nil {
		return fmt.Errorf("trader stats: %w", err)
	}

	fmt.Printf("Lead trader %d: win rate %.1f%%, average return %+.2f, %d active subscribers\n",
		id, stats.WinRate, stats.AverageReturn, stats.ActiveSubscribers)
	return nil
}
