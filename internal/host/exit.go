package host

import (
	"context"
	"errors"

	"github.com/shaiso/jobpoller/internal/scheduler"
)

// Коды выхода процесса.
const (
	ExitOK           = 0 // штатная остановка
	ExitHostShutdown = 1 // хост завершается, выходим без очистки
	ExitFatal        = 2 // ошибка цикла или старта
)

// ExitCode возвращает код выхода для результата Run.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, scheduler.ErrHostShutdown):
		return ExitHostShutdown
	case errors.Is(err, context.Canceled):
		return ExitOK
	default:
		return ExitFatal
	}
}
