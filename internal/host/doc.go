// Package host связывает планировщик с процессом и окружением:
// коды выхода, перезапуск после ошибки, сигналы, гибель хоста, systemd.
package host
