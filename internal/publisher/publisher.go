package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"rollup-service/internal/config"
	"rollup-service/internal/event"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

// Publisher puts domain events onto the project topic exchange. Delivery is
// fire-and-forget: at-least-once, unordered, no consumption guarantee.
type Publisher struct {
	cfg config.RabbitConfig
	log *logrus.Logger

	conn    *amqp.Connection
	channel *amqp.Channel
	mu      sync.Mutex
}

func New(cfg config.RabbitConfig, log *logrus.Logger) (*Publisher, error) {
	p := &Publisher{
		cfg: cfg,
		log: log,
	}

	if err := p.connect(); err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	return p, nil
}

func (p *Publisher) connect() error {
	dsn := fmt.Sprintf("amqp://%s:%s@%s:%d%s",
		p.cfg.User, p.cfg.Password, p.cfg.Host, p.cfg.Port, p.cfg.VHost)

	conn, err := amqp.Dial(dsn)
	if err != nil {
		return fmt.Errorf("failed to dial RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to open channel: %w", err)
	}

	if err := ch.ExchangeDeclare(
		p.cfg.Exchange,
		"topic",
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,   // arguments
	); err != nil {
		ch.Close()
		conn.Close()
		return fmt.Errorf("failed to declare exchange: %w", err)
	}

	p.mu.Lock()
	p.conn = conn
	p.channel = ch
	p.mu.Unlock()

	p.log.WithFields(logrus.Fields{
		"host":     p.cfg.Host,
		"exchange": p.cfg.Exchange,
	}).Info("publisher connected to RabbitMQ")

	return nil
}

// Publish sends the event with its name as routing key. A closed channel
// triggers one reconnect attempt before giving up.
func (p *Publisher) Publish(ctx context.Context, evt event.Event) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := p.publish(ctx, evt.Name, body); err != nil {
		p.log.WithError(err).Warn("publish failed, reconnecting")
		if rerr := p.connect(); rerr != nil {
			return fmt.Errorf("failed to reconnect: %w", rerr)
		}
		return p.publish(ctx, evt.Name, body)
	}

	return nil
}

func (p *Publisher) publish(ctx context.Context, routingKey string, body []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.channel == nil {
		return fmt.Errorf("channel is not initialized")
	}

	return p.channel.PublishWithContext(ctx,
		p.cfg.Exchange,
		routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
		},
	)
}

func (p *Publisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.channel != nil {
		p.channel.Close()
		p.channel = nil
	}

	if p.conn != nil {
		p.conn.Close()
		p.conn = nil
	}

	p.log.Info("publisher closed")
}
