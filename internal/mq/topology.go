package mq

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange — тип для имени обменника.
type Exchange string

// Queue — тип для имени очереди.
type Queue string

// ExchangeWake — fanout exchange пробуждений.
const ExchangeWake Exchange = "jobpoller.wake"

// wakeMessageTTL — сколько живёт непрочитанное пробуждение, мс.
// Старое пробуждение бесполезно: цикл и так проснётся по таймеру.
const wakeMessageTTL = 60_000

// WakeQueue возвращает имя очереди экземпляра.
func WakeQueue(instance string) Queue {
	return Queue(string(ExchangeWake) + "." + instance)
}

// declareWakeExchange объявляет fanout exchange пробуждений.
func declareWakeExchange(ch *amqp.Channel) error {
	err := ch.ExchangeDeclare(
		string(ExchangeWake), // name
		amqp.ExchangeFanout,  // type
		true,                 // durable
		false,                // auto-deleted
		false,                // internal
		false,                // no-wait
		nil,                  // arguments
	)
	if err != nil {
		return fmt.Errorf("declare exchange %s: %w", ExchangeWake, err)
	}
	return nil
}

// SetupWakeTopology объявляет exchange и exclusive очередь экземпляра.
//
// Очередь удаляется вместе с соединением, поэтому после reconnect
// её нужно объявить заново (consumer делает это через ConsumerConfig.Setup).
func SetupWakeTopology(ch *amqp.Channel, queue Queue) error {
	if err := declareWakeExchange(ch); err != nil {
		return err
	}

	_, err := ch.QueueDeclare(
		string(queue), // name
		false,         // durable
		true,          // delete when unused
		true,          // exclusive
		false,         // no-wait
		amqp.Table{"x-message-ttl": int32(wakeMessageTTL)},
	)
	if err != nil {
		return fmt.Errorf("declare queue %s: %w", queue, err)
	}

	err = ch.QueueBind(
		string(queue),        // queue name
		"",                   // routing key (fanout)
		string(ExchangeWake), // exchange
		false,                // no-wait
		nil,                  // arguments
	)
	if err != nil {
		return fmt.Errorf("bind queue %s to %s: %w", queue, ExchangeWake, err)
	}

	return nil
}

// TopologyInfo возвращает описание топологии для логирования.
func TopologyInfo(queue Queue) string {
	return fmt.Sprintf(`
  jobpoller RabbitMQ topology:

    %s (fanout)
    └── %s [exclusive, ttl %ds]
            Consumer: this worker instance
`, ExchangeWake, queue, wakeMessageTTL/1000)
}
