package dedup

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

const sweepTimeout = 10 * time.Second

// Sweep periodically purges expired markers from the DB store. Runs until the
// context is cancelled.
func Sweep(ctx context.Context, store *DBStore, interval time.Duration, log *logrus.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("stopping dedup sweeper")
			return
		case <-ticker.C:
			runSweep(ctx, store, log)
		}
	}
}

func runSweep(ctx context.Context, store *DBStore, log *logrus.Logger) {
	ctx, cancel := context.WithTimeout(ctx, sweepTimeout)
	defer cancel()

	purged, err := store.PurgeExpired(ctx)
	if err != nil {
		log.WithError(err).Error("failed to purge expired dedup entries")
		return
	}

	if purged > 0 {
		log.WithField("purged", purged).Debug("dedup sweep completed")
	}
}
