package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"chat-sync/internal/telemetry"
)

var ErrPublisherClosed = errors.New("rabbitmq publisher closed")

// Publisher publishes notices and lifecycle events.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
	PublishJSON(ctx context.Context, routingKey string, message interface{}, headers map[string]string) error
	Close() error
}

// NewPublisher builds a RabbitMQ publisher or a noop publisher when AMQP is
// disabled or unreachable.
func NewPublisher(amqpURL, exchange string) Publisher {
	if amqpURL == "" {
		log.Printf("rabbitmq disabled, using noop: empty amqp url")
		return noopPublisher{reason: "empty amqp url"}
	}

	conn, err := amqp.DialConfig(amqpURL, amqp.Config{
		Heartbeat:  10 * time.Second,
		Properties: amqp.Table{"connection_name": "chat-sync"},
	})
	if err != nil {
		log.Printf("rabbitmq disabled, using noop: %v", err)
		return noopPublisher{reason: err.Error()}
	}

	ch, err := conn.Channel()
	if err != nil {
		log.Printf("rabbitmq disabled, using noop: %v", err)
		_ = conn.Close()
		return noopPublisher{reason: err.Error()}
	}

	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		log.Printf("rabbitmq disabled, using noop: %v", err)
		_ = ch.Close()
		_ = conn.Close()
		return noopPublisher{reason: err.Error()}
	}

	p := &amqpPublisher{conn: conn, ch: ch, exchange: exchange}
	go p.watch(ch.NotifyClose(make(chan *amqp.Error, 1)))
	log.Printf("rabbitmq connected exchange=%s", exchange)
	return p
}

// amqpPublisher serializes publishes: the engine loop and the transport
// goroutines share one channel.
type amqpPublisher struct {
	conn     *amqp.Connection
	exchange string

	mu     sync.Mutex
	ch     *amqp.Channel
	closed bool
}

func (p *amqpPublisher) Publish(ctx context.Context, routingKey string, event any) error {
	return p.PublishJSON(ctx, routingKey, event, nil)
}

func (p *amqpPublisher) PublishJSON(ctx context.Context, routingKey string, message interface{}, headers map[string]string) error {
	body, err := json.Marshal(message)
	if err != nil {
		return err
	}

	amqpHeaders := amqp.Table{}
	for key, value := range headers {
		amqpHeaders[key] = value
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPublisherClosed
	}
	err = p.ch.PublishWithContext(ctx, p.exchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Headers:      amqpHeaders,
		Body:         body,
	})
	if err != nil {
		log.Printf("rabbitmq publish failed routing_key=%s: %v", routingKey, err)
	}
	return err
}

func (p *amqpPublisher) watch(closes <-chan *amqp.Error) {
	if err, ok := <-closes; ok && err != nil {
		log.Printf("rabbitmq channel closed, notices are dropped from now on: %v", err)
	}
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
}

func (p *amqpPublisher) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

type noopPublisher struct {
	reason string
}

func (noopPublisher) Publish(ctx context.Context, routingKey string, event any) error {
	if envelope, ok := event.(telemetry.NoticeEnvelope); ok {
		log.Printf("rabbitmq noop publish routing_key=%s level=%s kind=%s room=%s", routingKey, envelope.Payload.Level, envelope.Payload.Kind, envelope.RoomID)
		return nil
	}
	log.Printf("rabbitmq noop publish routing_key=%s", routingKey)
	return nil
}

func (noopPublisher) PublishJSON(ctx context.Context, routingKey string, message interface{}, headers map[string]string) error {
	return nil
}

func (noopPublisher) Close() error {
	return nil
}

// PublisherMode reports the publisher mode for logging.
func PublisherMode(p Publisher) string {
	switch p.(type) {
	case *amqpPublisher:
		return "amqp"
	case noopPublisher:
		return "noop"
	default:
		return "unknown"
	}
}

// PublisherNoopReason reports why AMQP is disabled, if it is.
func PublisherNoopReason(p Publisher) string {
	if publisher, ok := p.(noopPublisher); ok {
		return publisher.reason
	}
	return ""
}
