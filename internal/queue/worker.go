package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"rollup-service/internal/event"
	"rollup-service/internal/processor"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

const jobTimeout = 30 * time.Second

// Worker consumes rollup jobs from the work queue and runs them through the
// processor. A failed job is requeued once; a redelivered failure is terminal
// and gets logged and dropped without crashing the worker. When the broker
// connection drops, consumption resumes once the queue has reconnected.
type Worker struct {
	queue   *Queue
	proc    *processor.Processor
	workers int
	log     *logrus.Logger
}

func NewWorker(queue *Queue, proc *processor.Processor, workers int, log *logrus.Logger) *Worker {
	if workers <= 0 {
		workers = 1
	}
	return &Worker{
		queue:   queue,
		proc:    proc,
		workers: workers,
		log:     log,
	}
}

// Run consumes jobs until the context is cancelled, re-establishing the
// consume loop after every queue reconnect.
func (w *Worker) Run(ctx context.Context) error {
	msgs, err := w.consume()
	if err != nil {
		return err
	}

	w.log.WithField("workers", w.workers).Info("starting rollup job workers")

	for {
		done := w.startWorkers(ctx, msgs)

		select {
		case <-ctx.Done():
			<-done
			w.log.Info("stopping rollup job workers")
			return nil

		case <-done:
			if ctx.Err() != nil {
				return nil
			}

			w.log.Warn("job delivery channel closed, waiting for reconnect")
			select {
			case <-ctx.Done():
				return nil
			case <-w.queue.reconnected:
			}

			msgs, err = w.consume()
			if err != nil {
				return fmt.Errorf("failed to resume consuming jobs: %w", err)
			}
			w.log.Info("job workers resumed after reconnect")
		}
	}
}

func (w *Worker) consume() (<-chan amqp.Delivery, error) {
	w.queue.mu.Lock()
	channel := w.queue.channel
	w.queue.mu.Unlock()

	if channel == nil {
		return nil, fmt.Errorf("channel is not initialized")
	}

	if err := channel.Qos(w.workers*2, 0, false); err != nil {
		return nil, fmt.Errorf("failed to set QoS: %w", err)
	}

	msgs, err := channel.Consume(
		w.queue.cfg.JobQueue,
		"",    // consumer tag
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start consuming jobs: %w", err)
	}

	return msgs, nil
}

// startWorkers launches the worker goroutines and returns a channel closed
// once all of them have exited, either on context cancel or on a closed
// delivery channel.
func (w *Worker) startWorkers(ctx context.Context, msgs <-chan amqp.Delivery) <-chan struct{} {
	var wg sync.WaitGroup
	for i := 0; i < w.workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			w.worker(ctx, msgs, workerID)
		}(i)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	return done
}

func (w *Worker) worker(ctx context.Context, msgs <-chan amqp.Delivery, workerID int) {
	for {
		select {
		case <-ctx.Done():
			return

		case msg, ok := <-msgs:
			if !ok {
				w.log.WithField("worker_id", workerID).Warn("job channel closed")
				return
			}

			w.processJob(ctx, msg, workerID)
		}
	}
}

func (w *Worker) processJob(ctx context.Context, msg amqp.Delivery, workerID int) {
	ctx, cancel := context.WithTimeout(ctx, jobTimeout)
	defer cancel()

	var evt event.Event
	if err := json.Unmarshal(msg.Body, &evt); err != nil {
		w.log.WithFields(logrus.Fields{
			"worker_id": workerID,
			"error":     err,
			"body":      string(msg.Body),
		}).Error("failed to unmarshal job payload")
		_ = msg.Nack(false, false)
		return
	}

	// A redelivery means a previous attempt was already admitted by the
	// guard and failed mid-flight, so the retry must bypass it.
	var res processor.Result
	var err error
	if msg.Redelivered {
		res, err = w.proc.HandleRedelivered(ctx, evt)
	} else {
		res, err = w.proc.Handle(ctx, evt)
	}

	if err != nil {
		if msg.Redelivered {
			w.log.WithFields(logrus.Fields{
				"worker_id":    workerID,
				"project_id":   evt.ProjectID,
				"component_id": evt.EntityID,
				"error":        err,
			}).Error("rollup job failed terminally, dropping")
			_ = msg.Nack(false, false)
			return
		}

		w.log.WithFields(logrus.Fields{
			"worker_id":  workerID,
			"project_id": evt.ProjectID,
			"error":      err,
		}).Warn("rollup job failed, requeueing")
		_ = msg.Nack(false, true)
		return
	}

	w.log.WithFields(logrus.Fields{
		"worker_id":  workerID,
		"project_id": evt.ProjectID,
		"state":      res.State,
	}).Debug("rollup job processed")

	if err := msg.Ack(false); err != nil {
		w.log.WithError(err).Warn("failed to ack job")
	}
}
