// Package cli реализует административную утилиту jobpoller.
//
// # Обзор
//
// Утилита не запускает цикл. Она помогает оператору:
//   - interval — проверить, как воркер поймёт строку интервала пробуждения;
//   - due — посмотреть задания, которые уже пора запускать (без блокировок);
//   - wake — разбудить работающие воркеры через pg_notify или RabbitMQ.
//
// # Output
//
// Форматирование вывода. Поддерживает два режима:
//   - Таблицы (text/tabwriter) — по умолчанию
//   - JSON — с флагом --json
//
// Данные выводятся в stdout, сообщения (Success/Error) — в stderr.
// Это позволяет использовать pipe: jobpoller-cli due --json | jq .
//
// # Commands
//
// Каждая команда создаётся фабричной функцией (NewIntervalCmd и т.д.),
// принимающей замыкания для ленивого создания зависимостей после
// парсинга PersistentFlags. Так команды тестируются без базы и брокера.
package cli
