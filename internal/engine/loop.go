package engine

import (
	"context"
	"time"
)

// RunEvaluationLoop re-evaluates all open positions at the given interval
// until ctx is cancelled. Evaluation errors are logged per position and do
// not stop the loop. Returns nil on graceful shutdown.
func (e *Engine) RunEvaluationLoop(ctx context.Context, interval time.Duration) error {
	e.logger.Info(ctx, "Evaluation loop started", map[string]interface{}{"interval": interval.String()})

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.logger.Info(ctx, "Evaluation loop stopped")
			return nil
		case <-ticker.C:
			open, err := e.positions.FindOpenAll(ctx)
			if err != nil {
				e.logger.Error(ctx, err, "Failed to list open positions for evaluation tick")
				continue
			}
			for _, pos := range open {
				if err := e.Evaluate(ctx, pos, 0); err != nil {
					e.logger.Error(ctx, err, "Scheduled evaluation failed",
						map[string]interface{}{"positionID": pos.ID})
				}
			}
		}
	}
}
