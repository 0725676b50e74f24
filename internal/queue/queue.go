package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"rollup-service/internal/config"
	"rollup-service/internal/event"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

const (
	reconnectDelay       = 5 * time.Second
	maxReconnectAttempts = 10
)

// Queue is a delayed job queue over RabbitMQ. Enqueued jobs sit in a wait
// queue with a per-message TTL and dead-letter into the work queue once the
// delay elapses. The delay is a deliberate debounce: near-simultaneous
// component changes settle before a single rollup runs.
type Queue struct {
	cfg config.RabbitConfig
	log *logrus.Logger

	conn    *amqp.Connection
	channel *amqp.Channel
	mu      sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc

	// reconnected signals the worker to resume consumption on a fresh
	// channel after a broker connection loss.
	reconnected chan struct{}
}

func waitQueueName(workQueue string) string {
	return workQueue + "_wait"
}

func New(cfg config.RabbitConfig, log *logrus.Logger) (*Queue, error) {
	ctx, cancel := context.WithCancel(context.Background())

	q := &Queue{
		cfg:         cfg,
		log:         log,
		ctx:         ctx,
		cancel:      cancel,
		reconnected: make(chan struct{}, 1),
	}

	if err := q.connect(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	return q, nil
}

func (q *Queue) connect() error {
	dsn := fmt.Sprintf("amqp://%s:%s@%s:%d%s",
		q.cfg.User, q.cfg.Password, q.cfg.Host, q.cfg.Port, q.cfg.VHost)

	conn, err := amqp.Dial(dsn)
	if err != nil {
		return fmt.Errorf("failed to dial RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to open channel: %w", err)
	}

	if _, err := ch.QueueDeclare(
		q.cfg.JobQueue,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	); err != nil {
		ch.Close()
		conn.Close()
		return fmt.Errorf("failed to declare job queue: %w", err)
	}

	if _, err := ch.QueueDeclare(
		waitQueueName(q.cfg.JobQueue),
		true,
		false,
		false,
		false,
		amqp.Table{
			"x-dead-letter-exchange":    "",
			"x-dead-letter-routing-key": q.cfg.JobQueue,
		},
	); err != nil {
		ch.Close()
		conn.Close()
		return fmt.Errorf("failed to declare wait queue: %w", err)
	}

	q.mu.Lock()
	q.conn = conn
	q.channel = ch
	q.mu.Unlock()

	q.log.WithFields(logrus.Fields{
		"host":  q.cfg.Host,
		"queue": q.cfg.JobQueue,
	}).Info("job queue connected to RabbitMQ")

	go q.monitorConnection()

	return nil
}

func (q *Queue) monitorConnection() {
	q.mu.Lock()
	conn := q.conn
	q.mu.Unlock()

	if conn == nil {
		return
	}

	notifyClose := conn.NotifyClose(make(chan *amqp.Error))

	select {
	case err := <-notifyClose:
		if err != nil {
			q.log.WithError(err).Error("job queue connection closed unexpectedly")
			q.reconnect()
		}
	case <-q.ctx.Done():
		return
	}
}

func (q *Queue) reconnect() {
	q.mu.Lock()
	if q.channel != nil {
		q.channel.Close()
		q.channel = nil
	}
	if q.conn != nil {
		q.conn.Close()
		q.conn = nil
	}
	q.mu.Unlock()

	for attempt := 1; attempt <= maxReconnectAttempts; attempt++ {
		q.log.WithField("attempt", attempt).Info("attempting to reconnect job queue")

		if err := q.connect(); err == nil {
			q.log.Info("job queue reconnected")
			select {
			case q.reconnected <- struct{}{}:
			default:
			}
			return
		}

		delay := reconnectDelay * time.Duration(attempt)
		q.log.WithFields(logrus.Fields{
			"attempt": attempt,
			"delay":   delay,
		}).Warn("job queue reconnection failed, retrying")

		select {
		case <-time.After(delay):
		case <-q.ctx.Done():
			return
		}
	}

	q.log.Error("max reconnection attempts reached, giving up")
}

// Enqueue schedules a rollup job for the event after the given delay. A zero
// delay bypasses the wait queue.
func (q *Queue) Enqueue(ctx context.Context, evt event.Event, delay time.Duration) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("failed to marshal job payload: %w", err)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.channel == nil {
		return fmt.Errorf("channel is not initialized")
	}

	publishing := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	}

	target := q.cfg.JobQueue
	if delay > 0 {
		target = waitQueueName(q.cfg.JobQueue)
		publishing.Expiration = strconv.FormatInt(delay.Milliseconds(), 10)
	}

	return q.channel.PublishWithContext(ctx,
		"", // default exchange
		target,
		false, // mandatory
		false, // immediate
		publishing,
	)
}

func (q *Queue) Close() {
	q.cancel()

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.channel != nil {
		q.channel.Close()
		q.channel = nil
	}

	if q.conn != nil {
		q.conn.Close()
		q.conn = nil
	}

	q.log.Info("job queue closed")
}
