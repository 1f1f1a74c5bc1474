package engine

import (
	"context"
	"log/slog"

	"github.com/jfourney/divvy/internal/model"
	"github.com/jfourney/divvy/internal/service"
)

// RetryFailed re-evaluates every Failed processing state for an account,
// returning each to the last status its evidence supports. This is the only
// way out of the Failed status; nothing retries failed states automatically.
func RetryFailed(ctx context.Context, store service.Storage, accountID string) (int, error) {
	states, err := store.FindStatesByStatus(ctx, accountID, model.StatusFailed)
	if err != nil {
		return 0, err
	}

	retried := 0
	for idx := range states {
		state := states[idx]
		if err := state.Retry(); err != nil {
			return retried, err
		}
		if err := store.SaveProcessingState(ctx, &state); err != nil {
			return retried, err
		}
		slog.Info("Retried failed transaction",
			"id", state.ID.String(),
			"status", string(state.Status))
		retried++
	}
	return retried, nil
}
