package worker

import (
	"context"
	"time"

	"paylog/internal/analytics"
	"paylog/internal/log"
)

// DigestWorker periodically computes the spending digest for each
// configured user. The digest is emitted through structured logging;
// notification transports hang off the log pipeline.
type DigestWorker struct {
	engine   *analytics.Engine
	userIDs  []string
	interval time.Duration
	logger   *log.Logger
}

func NewDigestWorker(engine *analytics.Engine, userIDs []string, interval time.Duration, logger *log.Logger) *DigestWorker {
	if interval <= 0 {
		interval = 7 * 24 * time.Hour
	}
	return &DigestWorker{
		engine:   engine,
		userIDs:  userIDs,
		interval: interval,
		logger:   logger.WithComponent(log.ComponentWorker),
	}
}

// Run emits digests on the configured interval until the context ends.
func (w *DigestWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.emitDigests(ctx)
		}
	}
}

func (w *DigestWorker) emitDigests(ctx context.Context) {
	for _, userID := range w.userIDs {
		summary, err := w.engine.WeeklySummary(ctx, userID)
		if err != nil {
			w.logger.ErrorContext(ctx, "Failed to compute weekly digest",
				log.FieldUserID, userID,
				log.FieldError, err)
			continue
		}

		w.logger.InfoContext(ctx, "Weekly digest",
			log.FieldUserID, userID,
			"spent", summary.TotalSpent.String(),
			"received", summary.TotalReceived.String(),
			"daily_average", summary.DailyAverage.String(),
			"daily_burn", summary.Burn.DailyBurn.String(),
			"days_left", summary.Burn.DaysLeft,
			"open_loans", len(summary.OpenLoans))
	}
}
