// Package mq — RabbitMQ как дополнительный источник пробуждений воркера.
//
// Структура:
//   - connection.go — соединение с RabbitMQ (reconnect, graceful shutdown)
//   - topology.go   — fanout exchange и очередь экземпляра
//   - publisher.go  — публикация scheduler.wake
//   - consumer.go   — потребление сообщений из очереди
//   - wake.go       — WakeConsumer: сообщение → Latch.Set()
//
// Каждый экземпляр воркера слушает свою exclusive очередь
// jobpoller.wake.<instance>, привязанную к fanout exchange jobpoller.wake,
// поэтому одно сообщение будит все экземпляры. Кто из них заберёт задания,
// решают блокировки строк в БД.
package mq
