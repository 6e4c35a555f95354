package cmd

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the periodic position evaluation loop",
	Long: `Run the evaluation loop until interrupted.

Every tick the engine re-quotes all open positions, updates floating P&L,
and closes positions whose stop-loss, take-profit, or margin-call condition
fired. Closed trades from registered lead traders propagate to their
subscribers.

Example:
  tradectl run --interval 10s`,
	RunE: runRun,
}

var runInterval time.Duration

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().DurationVar(&runInterval, "interval", 0, "evaluation interval (default from EVAL_INTERVAL_SECONDS)")
}

func runRun(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()

	interval := runInterval
	if interval <= 0 {
		interval = a.cfg.EvalInterval
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Printf("Evaluating open positions every %s (Ctrl-C to stop)\n", interval)
	return a.engine.RunEvaluationLoop(ctx, interval)
}
