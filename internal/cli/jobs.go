package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/shaiso/jobpoller/internal/domain"
)

// Способы пробуждения воркеров.
const (
	WakeViaPostgres = "pg"
	WakeViaMQ       = "mq"
)

// ErrUnknownVia — неизвестный способ пробуждения.
var ErrUnknownVia = errors.New("unknown wake transport")

// DueLister читает задания, которые пора запускать.
type DueLister interface {
	ListDue(ctx context.Context, limit int) ([]domain.Job, error)
}

// WakeSender будит работающие воркеры.
type WakeSender interface {
	Wake(ctx context.Context, reason string) error
}

// JobsFn открывает хранилище заданий. closeFn освобождает ресурсы.
type JobsFn func(ctx context.Context) (lister DueLister, closeFn func(), err error)

// WakeFn открывает транспорт пробуждения по имени (pg или mq).
type WakeFn func(ctx context.Context, via string) (sender WakeSender, closeFn func(), err error)

// NewDueCmd создаёт команду due.
func NewDueCmd(jobsFn JobsFn, outputFn func() *Output) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "due",
		Short: "List jobs that are due now (no locking)",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()

			lister, closeFn, err := jobsFn(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			jobs, err := lister.ListDue(cmd.Context(), limit)
			if err != nil {
				return fmt.Errorf("list due jobs: %w", err)
			}

			headers := []string{"JOB_ID", "NEXT_RUN", "LATE"}
			now := time.Now()
			rows := make([][]string, len(jobs))
			for i, j := range jobs {
				rows[i] = []string{
					strconv.FormatInt(j.ID, 10),
					j.NextRun.Format(time.RFC3339),
					now.Sub(j.NextRun).Truncate(time.Second).String(),
				}
			}

			return out.Print(headers, rows, jobs)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum number of jobs (0 — all)")

	return cmd
}

// NewWakeCmd создаёт команду wake.
func NewWakeCmd(wakeFn WakeFn, outputFn func() *Output) *cobra.Command {
	var via string
	var reason string

	cmd := &cobra.Command{
		Use:   "wake",
		Short: "Wake running workers",
		Example: `  jobpoller-cli wake
  jobpoller-cli wake --via mq --reason deploy`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()

			if via != WakeViaPostgres && via != WakeViaMQ {
				return fmt.Errorf("%w: %q (want %s or %s)", ErrUnknownVia, via, WakeViaPostgres, WakeViaMQ)
			}

			sender, closeFn, err := wakeFn(cmd.Context(), via)
			if err != nil {
				return err
			}
			defer closeFn()

			if err := sender.Wake(cmd.Context(), reason); err != nil {
				return fmt.Errorf("wake via %s: %w", via, err)
			}

			out.Success("Wake sent via " + via)
			return nil
		},
	}

	cmd.Flags().StringVar(&via, "via", WakeViaPostgres, "Transport: pg (NOTIFY) or mq (RabbitMQ)")
	cmd.Flags().StringVar(&reason, "reason", "cli", "Reason written to worker logs")

	return cmd
}
