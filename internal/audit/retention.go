package audit

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// RunRetention purges stored reports older than days. days <= 0 keeps
// everything.
func RunRetention(ctx context.Context, store *Store, days int, now time.Time) (int64, error) {
	if store == nil || days <= 0 {
		return 0, nil
	}

	ctx, span := tracer.Start(ctx, "audit.retention",
		trace.WithAttributes(attribute.Int("retention_days", days)))
	defer span.End()

	cutoff := now.AddDate(0, 0, -days)
	purged, err := store.Purge(ctx, cutoff)
	if err != nil {
		log.Error().Err(err).Int("retention_days", days).Msg("report_retention_failed")
		return 0, err
	}
	if purged > 0 {
		log.Info().
			Int64("purged", purged).
			Time("cutoff", cutoff).
			Msg("report_retention_completed")
	}
	return purged, nil
}

// StartRetentionLoop runs retention every interval in a goroutine.
// Returns a cancel function to stop the loop.
func StartRetentionLoop(ctx context.Context, store *Store, days int, interval time.Duration) func() {
	ctx, cancel := context.WithCancel(ctx)
	if days <= 0 {
		return cancel
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		_, _ = RunRetention(ctx, store, days, time.Now())
		for {
			select {
			case <-ctx.Done():
				return
			case t := <-ticker.C:
				_, _ = RunRetention(ctx, store, days, t)
			}
		}
	}()
	return cancel
}
