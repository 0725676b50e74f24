package dedup

import (
	"context"
	"crypto/sha256"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultTTL is how long an observed (project, event, payload) tuple
// suppresses recomputation.
const DefaultTTL = 60 * time.Second

// Store is the shared marker backend. Implementations own the expiry window;
// a marker past its TTL reads as unseen.
type Store interface {
	Seen(ctx context.Context, key string) (bool, error)
	Mark(ctx context.Context, key string) error
}

// Guard is an advisory de-duplication gate. Two handlers racing before either
// marks the key may both proceed; the downstream tolerance check makes that
// harmless.
type Guard struct {
	store Store
	log   *logrus.Logger
}

func NewGuard(store Store, log *logrus.Logger) *Guard {
	return &Guard{store: store, log: log}
}

// ShouldProcess reports whether the caller should run the rollup for this
// event, marking the tuple as seen when it does. Store failures fail open:
// the guard is an optimization, not a correctness gate.
func (g *Guard) ShouldProcess(ctx context.Context, projectID uint, eventName string, payload []byte) bool {
	key := Key(projectID, eventName, payload)

	seen, err := g.store.Seen(ctx, key)
	if err != nil {
		g.log.WithFields(logrus.Fields{
			"project_id": projectID,
			"event":      eventName,
			"error":      err,
		}).Warn("dedup lookup failed, processing anyway")
		return true
	}
	if seen {
		return false
	}

	if err := g.store.Mark(ctx, key); err != nil {
		g.log.WithFields(logrus.Fields{
			"project_id": projectID,
			"event":      eventName,
			"error":      err,
		}).Warn("failed to mark dedup key")
	}
	return true
}

// Key derives a stable dedup key. Payload bytes come from encoding/json,
// which orders map keys, so equal events hash equally.
func Key(projectID uint, eventName string, payload []byte) string {
	h := sha256.New()
	fmt.Fprintf(h, "%d\x00%s\x00", projectID, eventName)
	h.Write(payload)
	return fmt.Sprintf("%x", h.Sum(nil))
}
