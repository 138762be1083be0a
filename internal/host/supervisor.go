package host

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/shaiso/jobpoller/internal/scheduler"
)

// DefaultRestartDelay — пауза перед перезапуском после ошибки.
const DefaultRestartDelay = 10 * time.Second

// Supervisor перезапускает цикл после ошибки с постоянной паузой.
//
// Штатная остановка и гибель хоста не перезапускаются.
type Supervisor struct {
	// RestartDelay — пауза между запусками. 0 — не перезапускать.
	RestartDelay time.Duration

	// HostShutdown прерывает ожидание перезапуска. Опционально.
	HostShutdown <-chan struct{}

	Logger *slog.Logger
}

// Run вызывает run, пока тот завершается ошибкой.
//
// Возвращает nil, если run завершился штатно или ctx отменён во время паузы,
// ErrHostShutdown — если хост завершается. Ошибка run возвращается как есть,
// если перезапуск выключен или ctx отменён во время цикла.
func (s *Supervisor) Run(ctx context.Context, run func(ctx context.Context) error) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if s.RestartDelay <= 0 {
		return run(ctx)
	}

	waitCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if s.HostShutdown != nil {
		go func() {
			select {
			case <-s.HostShutdown:
				cancel()
			case <-waitCtx.Done():
			}
		}()
	}

	attempt := 0
	op := func() error {
		attempt++
		err := run(ctx)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, scheduler.ErrHostShutdown):
			return backoff.Permanent(err)
		case ctx.Err() != nil:
			// Остановка во время цикла: перезапускать некого.
			return backoff.Permanent(err)
		}
		return err
	}

	bo := backoff.WithContext(backoff.NewConstantBackOff(s.RestartDelay), waitCtx)
	err := backoff.RetryNotify(op, bo, func(err error, delay time.Duration) {
		logger.Error("scheduler failed, restarting",
			"attempt", attempt,
			"delay", delay,
			"error", err,
		)
	})

	switch {
	case err == nil:
		return nil
	case errors.Is(err, scheduler.ErrHostShutdown):
		return err
	case s.hostDown():
		return scheduler.ErrHostShutdown
	case ctx.Err() != nil && errors.Is(err, ctx.Err()):
		// Остановили во время паузы перед перезапуском.
		return nil
	}
	return err
}

func (s *Supervisor) hostDown() bool {
	if s.HostShutdown == nil {
		return false
	}
	select {
	case <-s.HostShutdown:
		return true
	default:
		return false
	}
}
