package mq

import (
	"context"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Waker — то, что нужно разбудить (scheduler.Latch).
type Waker interface {
	Set()
}

// NewWakeHandler возвращает Handler, который будит waker на scheduler.wake.
// Сообщения других типов игнорируются (ack без пробуждения).
func NewWakeHandler(waker Waker, logger *slog.Logger) Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(_ context.Context, msg *Message) error {
		if msg.Type != MessageTypeWake {
			logger.Debug("ignoring message", "type", msg.Type, "message_id", msg.ID)
			return nil
		}

		payload, err := ParsePayload[WakePayload](msg)
		if err != nil {
			return fmt.Errorf("parse wake payload: %w", err)
		}

		logger.Debug("wake message", "message_id", msg.ID, "reason", payload.Reason)
		waker.Set()
		return nil
	}
}

// NewWakeConsumer создаёт consumer очереди пробуждений экземпляра.
func NewWakeConsumer(conn *Connection, instance string, waker Waker, logger *slog.Logger) *Consumer {
	queue := WakeQueue(instance)
	return NewConsumer(conn, logger, ConsumerConfig{
		Queue:   queue,
		Handler: NewWakeHandler(waker, logger),
		Setup: func(ch *amqp.Channel) error {
			return SetupWakeTopology(ch, queue)
		},
		Prefetch: 1,
	})
}
