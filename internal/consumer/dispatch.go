package consumer

import (
	"context"
	"time"

	"rollup-service/internal/event"
	"rollup-service/internal/processor"
	"rollup-service/internal/queue"

	"github.com/sirupsen/logrus"
)

// InlineDispatcher runs the rollup on the consuming worker. Recalculation
// failures never bounce the triggering message: the rollup is best-effort and
// a later component change re-converges the aggregates.
type InlineDispatcher struct {
	proc *processor.Processor
	log  *logrus.Logger
}

func NewInlineDispatcher(proc *processor.Processor, log *logrus.Logger) *InlineDispatcher {
	return &InlineDispatcher{proc: proc, log: log}
}

func (d *InlineDispatcher) Dispatch(ctx context.Context, evt event.Event) error {
	if !processor.TriggersRollup(evt) {
		d.log.WithFields(logrus.Fields{
			"event":    evt.Name,
			"event_id": evt.ID,
		}).Debug("event does not affect aggregates, ignoring")
		return nil
	}

	d.proc.HandleInline(ctx, evt)
	return nil
}

// QueuedDispatcher defers the rollup to the delayed job queue so bursts of
// component changes settle into one recomputation.
type QueuedDispatcher struct {
	queue *queue.Queue
	delay time.Duration
	log   *logrus.Logger
}

func NewQueuedDispatcher(q *queue.Queue, delay time.Duration, log *logrus.Logger) *QueuedDispatcher {
	return &QueuedDispatcher{queue: q, delay: delay, log: log}
}

func (d *QueuedDispatcher) Dispatch(ctx context.Context, evt event.Event) error {
	if !processor.TriggersRollup(evt) {
		return nil
	}
	return d.queue.Enqueue(ctx, evt, d.delay)
}
