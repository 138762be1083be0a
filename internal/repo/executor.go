package repo

import (
	"context"
	"fmt"

	"github.com/shaiso/jobpoller/internal/scheduler"
)

// ProcExecutor выполняет задание вызовом хранимой функции в транзакции цикла:
//
//	SELECT scheduler.execute_job($1)
//
// Что делает функция (включая сдвиг next_run) — её забота.
type ProcExecutor struct {
	query string
}

// NewProcExecutor создаёт ProcExecutor. Пустое имя — scheduler.execute_job.
func NewProcExecutor(function string) (*ProcExecutor, error) {
	if function == "" {
		function = "scheduler.execute_job"
	}
	fn, err := quoteIdent(function)
	if err != nil {
		return nil, fmt.Errorf("execute function: %w", err)
	}
	return &ProcExecutor{query: "SELECT " + fn + "($1)"}, nil
}

// Execute реализует scheduler.Executor.
func (e *ProcExecutor) Execute(ctx context.Context, tx scheduler.Tx, jobID int64) error {
	if err := tx.Exec(ctx, e.query, jobID); err != nil {
		return fmt.Errorf("execute job %d: %w", jobID, err)
	}
	return nil
}
