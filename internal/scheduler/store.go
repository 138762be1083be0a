package scheduler

import (
	"context"

	"github.com/shaiso/jobpoller/internal/domain"
)

// Tx — транзакция одного цикла.
//
// Снимок данных берётся при открытии транзакции. Строки, возвращённые
// DueJobs, остаются за этой транзакцией до Commit или Rollback.
type Tx interface {
	// DueJobs выбирает due задания в порядке next_run ASC,
	// пропуская строки, которые держит другой экземпляр.
	DueJobs(ctx context.Context) ([]domain.DueJob, error)

	// Exec выполняет параметризованный запрос внутри транзакции.
	Exec(ctx context.Context, sql string, args ...any) error

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Store открывает транзакции над таблицей заданий.
type Store interface {
	Begin(ctx context.Context) (Tx, error)
}

// Executor выполняет одно задание внутри транзакции цикла.
//
// Результат и перепланирование задания — забота реализации.
// Возвращённая ошибка откатывает весь цикл.
type Executor interface {
	Execute(ctx context.Context, tx Tx, jobID int64) error
}

// ExecutorFunc позволяет использовать функцию как Executor.
type ExecutorFunc func(ctx context.Context, tx Tx, jobID int64) error

// Execute вызывает f(ctx, tx, jobID).
func (f ExecutorFunc) Execute(ctx context.Context, tx Tx, jobID int64) error {
	return f(ctx, tx, jobID)
}
