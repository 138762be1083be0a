// Package telemetry обеспечивает наблюдаемость воркера.
//
// Включает:
//   - logging.go — structured logging через slog
//   - metrics.go — Prometheus метрики цикла
//
// Метрики экспортируются на /metrics (см. cmd/jobpoller).
package telemetry
