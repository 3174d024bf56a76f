package recording

import (
	"context"
	"log/slog"
	"time"

	"github.com/shiftline/shiftline/internal/clock"
)

// StartRetentionTicker runs a background goroutine that periodically prunes
// object-store recordings older than maxAge (§4.7 retention window),
// grounded on the retrieved pack's StartCleanupTicker shape (ticker loop
// gated on a configured max-age, logging what it deleted) but adapted from
// a per-CDR SQL/disk sweep to an S3-object sweep against this domain's
// ObjectStore, and driven by the injected clock.Clock rather than the raw
// time package so the sweep cadence is deterministic in tests. If maxAge is
// zero, no cleanup is performed. The goroutine stops when ctx is cancelled.
func StartRetentionTicker(ctx context.Context, store *ObjectStore, clk clock.Clock, interval, maxAge time.Duration) {
	if maxAge <= 0 {
		return
	}

	go func() {
		ticker := clk.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C():
				cutoff := clk.Now().Add(-maxAge)
				deleted, err := store.PruneExpired(ctx, cutoff)
				if err != nil {
					slog.Error("recording retention cleanup failed", "error", err)
					continue
				}
				if len(deleted) == 0 {
					continue
				}
				slog.Info("recording retention cleanup", "deleted", len(deleted), "max_age", maxAge)
			}
		}
	}()
}
