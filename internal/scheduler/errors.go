package scheduler

import "errors"

// Ошибки планировщика.
var (
	// ErrHostShutdown — хост завершается, выходим немедленно без очистки.
	ErrHostShutdown = errors.New("host shutdown")

	// ErrCycle — цикл прерван ошибкой хранилища или выполнения задания.
	// Транзакция цикла откачена.
	ErrCycle = errors.New("scheduler cycle failed")

	// ErrExecutorPanic — Executor запаниковал.
	ErrExecutorPanic = errors.New("executor panic")
)
