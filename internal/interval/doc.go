// Package interval разбирает человекочитаемый интервал пробуждения
// ("10s", "2 min", "1 hour") в time.Duration с точностью до микросекунды.
//
// Разбор никогда не падает наружу: некорректная строка логируется
// предупреждением и заменяется значением по умолчанию (10 секунд).
//
//	sleep := interval.ParseOrDefault(logger, cfg.WakeInterval)
package interval
