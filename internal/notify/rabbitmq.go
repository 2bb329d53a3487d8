package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"filescout/internal/observability"
)

// RabbitMQEmitter publishes notifications to durable queues named by each
// target's destination.
type RabbitMQEmitter struct {
	conn    *amqp091.Connection
	channel *amqp091.Channel
	logger  observability.Logger
	metrics observability.Metrics

	// amqp channels are not safe for concurrent publish.
	mu sync.Mutex
}

func NewRabbitMQEmitter(url string, logger observability.Logger, metrics observability.Metrics) (*RabbitMQEmitter, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		logger.Error("failed to connect to RabbitMQ", "error", err)
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		logger.Error("failed to create channel", "error", err)
		return nil, fmt.Errorf("failed to create channel: %w", err)
	}

	logger.Info("RabbitMQ emitter initialized")

	return &RabbitMQEmitter{
		conn:    conn,
		channel: channel,
		logger:  logger,
		metrics: metrics,
	}, nil
}

func (e *RabbitMQEmitter) Publish(ctx context.Context, n *Notification) error {
	startTime := time.Now()
	defer func() {
		e.metrics.RecordHistogram("notify.publish.duration",
			time.Since(startTime).Seconds(),
			map[string]string{"destination": n.Destination})
	}()

	body, err := json.Marshal(n)
	if err != nil {
		e.metrics.IncrementCounter("notify.publish.error",
			map[string]string{"destination": n.Destination, "error": "marshal_failed"})
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	// Declare queue (idempotent operation)
	_, err = e.channel.QueueDeclare(
		n.Destination, // queue name
		true,          // durable
		false,         // auto-delete
		false,         // exclusive
		false,         // no-wait
		nil,           // arguments
	)
	if err != nil {
		e.logger.Error("failed to declare queue", "error", err, "destination", n.Destination)
		return fmt.Errorf("failed to declare queue: %w", err)
	}

	err = e.channel.PublishWithContext(
		ctx,
		"",            // exchange (empty for direct queue)
		n.Destination, // routing key (queue name)
		false,         // mandatory
		false,         // immediate
		amqp091.Publishing{
			DeliveryMode: amqp091.Persistent,
			ContentType:  "application/json",
			Body:         body,
			Timestamp:    time.Now(),
		},
	)
	if err != nil {
		e.logger.Error("failed to publish notification", "error", err, "destination", n.Destination)
		e.metrics.IncrementCounter("notify.publish.error",
			map[string]string{"destination": n.Destination, "error": "publish_failed"})
		return fmt.Errorf("failed to publish notification: %w", err)
	}

	e.logger.Info("notification published",
		"destination", n.Destination,
		"tenant_id", n.TenantID,
		"file_reference", n.FileReference)
	e.metrics.IncrementCounter("notify.publish.success",
		map[string]string{"destination": n.Destination})

	return nil
}

func (e *RabbitMQEmitter) Close() error {
	if e.channel != nil {
		e.channel.Close()
	}
	if e.conn != nil {
		return e.conn.Close()
	}
	return nil
}

var _ Emitter = (*RabbitMQEmitter)(nil)
