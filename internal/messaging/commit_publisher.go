// Package messaging публикует события о записанных сообщениях в RabbitMQ.
package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"artnote-server/internal/models"
)

// QueueMessageCommitted - очередь событий о записанных сообщениях.
const QueueMessageCommitted = "progress_message_committed"

// Channel - часть *amqp.Channel, нужная издателю.
type Channel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

var _ Channel = (*amqp.Channel)(nil)

// CommitPublisher публикует MessageCommittedEvent в очередь.
type CommitPublisher struct {
	channel   Channel
	queueName string
	logger    *zap.Logger
}

// NewCommitPublisher объявляет очередь и возвращает издателя.
func NewCommitPublisher(ch Channel, logger *zap.Logger) (*CommitPublisher, error) {
	if ch == nil {
		return nil, fmt.Errorf("rabbitmq channel is nil")
	}
	_, err := ch.QueueDeclare(
		QueueMessageCommitted, // name
		true,                  // durable
		false,                 // delete when unused
		false,                 // exclusive
		false,                 // no-wait
		amqp.Table{"x-queue-mode": "lazy"},
	)
	if err != nil {
		return nil, fmt.Errorf("commit publisher: не удалось объявить очередь '%s': %w", QueueMessageCommitted, err)
	}
	logger = logger.Named("CommitPublisher")
	logger.Info("Queue declared", zap.String("queue", QueueMessageCommitted))
	return &CommitPublisher{channel: ch, queueName: QueueMessageCommitted, logger: logger}, nil
}

// PublishMessageCommitted сериализует событие в JSON и публикует его с persistent доставкой.
func (p *CommitPublisher) PublishMessageCommitted(ctx context.Context, event models.MessageCommittedEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal message committed event: %w", err)
	}

	err = p.channel.PublishWithContext(ctx,
		"",          // exchange
		p.queueName, // routing key
		false,       // mandatory
		false,       // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    event.EventID,
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
	if err != nil {
		p.logger.Error("Failed to publish message committed event",
			zap.String("event_id", event.EventID),
			zap.Error(err),
		)
		return fmt.Errorf("failed to publish message committed event: %w", err)
	}

	p.logger.Debug("Message committed event published",
		zap.String("event_id", event.EventID),
		zap.String("record_id", event.RecordID.String()),
	)
	return nil
}

// Close закрывает канал.
func (p *CommitPublisher) Close() error {
	return p.channel.Close()
}

// Connect подключается к RabbitMQ с несколькими попытками.
func Connect(ctx context.Context, url string, logger *zap.Logger) (*amqp.Connection, error) {
	const maxRetries = 5
	retryDelay := 5 * time.Second

	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		conn, err := amqp.Dial(url)
		if err == nil {
			logger.Info("Connected to RabbitMQ", zap.Int("attempt", attempt))
			return conn, nil
		}
		lastErr = err
		logger.Warn("Не удалось подключиться к RabbitMQ",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", maxRetries),
			zap.Duration("retry_delay", retryDelay),
			zap.Error(err),
		)
		if attempt == maxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(retryDelay):
		}
	}
	return nil, fmt.Errorf("failed to connect to rabbitmq after %d attempts: %w", maxRetries, lastErr)
}
