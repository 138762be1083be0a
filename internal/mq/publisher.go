package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// MessageType — тип сообщения в очереди.
type MessageType string

// MessageTypeWake — разбудить воркеры.
const MessageTypeWake MessageType = "scheduler.wake"

// Message — сообщение для публикации.
type Message struct {
	// ID — уникальный идентификатор сообщения.
	ID string `json:"id"`

	// Type — тип сообщения.
	Type MessageType `json:"type"`

	// Payload — полезная нагрузка.
	Payload any `json:"payload,omitempty"`

	// Timestamp — время создания.
	Timestamp time.Time `json:"timestamp"`
}

// WakePayload — payload пробуждения.
type WakePayload struct {
	// Reason — кто и зачем будит (для логов).
	Reason string `json:"reason,omitempty"`
}

// Publisher публикует сообщения в RabbitMQ.
type Publisher struct {
	conn   *Connection
	logger *slog.Logger
}

// NewPublisher создаёт новый Publisher.
func NewPublisher(conn *Connection, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{conn: conn, logger: logger}
}

// NewWakeMessage создаёт сообщение scheduler.wake.
func NewWakeMessage(reason string) *Message {
	return &Message{
		ID:        uuid.New().String(),
		Type:      MessageTypeWake,
		Payload:   WakePayload{Reason: reason},
		Timestamp: time.Now().UTC(),
	}
}

// Publish публикует сообщение в exchange.
func (p *Publisher) Publish(ctx context.Context, exchange Exchange, routingKey string, msg *Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	return p.conn.WithChannel(func(ch *amqp.Channel) error {
		err := ch.PublishWithContext(
			ctx,
			string(exchange), // exchange
			routingKey,       // routing key
			false,            // mandatory
			false,            // immediate
			amqp.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp.Transient, // пробуждение не переживает рестарт брокера
				MessageId:    msg.ID,
				Timestamp:    msg.Timestamp,
				Body:         body,
			},
		)
		if err != nil {
			return fmt.Errorf("publish to %s: %w", exchange, err)
		}

		p.logger.Debug("published message",
			"exchange", exchange,
			"message_id", msg.ID,
			"type", msg.Type,
		)
		return nil
	})
}

// PublishWake будит все экземпляры воркера.
func (p *Publisher) PublishWake(ctx context.Context, reason string) error {
	return p.Publish(ctx, ExchangeWake, "", NewWakeMessage(reason))
}

// EnsureWakeExchange объявляет exchange пробуждений (для издателя без очереди).
func (p *Publisher) EnsureWakeExchange() error {
	return p.conn.WithChannel(declareWakeExchange)
}
