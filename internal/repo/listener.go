package repo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Waker — то, что нужно разбудить (scheduler.Latch).
type Waker interface {
	Set()
}

// WakeListener слушает LISTEN-канал и будит цикл на каждое уведомление.
//
// Держит одно соединение пула. При обрыве переподключается
// с экспоненциальной задержкой (максимум 30 секунд).
type WakeListener struct {
	pool    *pgxpool.Pool
	channel string
	waker   Waker
	logger  *slog.Logger
}

// NewWakeListener создаёт WakeListener.
func NewWakeListener(pool *pgxpool.Pool, channel string, waker Waker, logger *slog.Logger) *WakeListener {
	if logger == nil {
		logger = slog.Default()
	}
	return &WakeListener{
		pool:    pool,
		channel: channel,
		waker:   waker,
		logger:  logger,
	}
}

// Run слушает канал до отмены ctx.
func (l *WakeListener) Run(ctx context.Context) error {
	listenSQL, err := l.listenSQL()
	if err != nil {
		return err
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxInterval = 30 * time.Second
	bo.MaxElapsedTime = 0 // пытаемся, пока нас не остановят

	operation := func() error {
		err := l.listen(ctx, listenSQL, bo)
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		return err
	}

	notify := func(err error, delay time.Duration) {
		l.logger.Warn("wake listener lost connection, reconnecting",
			"channel", l.channel,
			"delay", delay,
			"error", err,
		)
	}

	err = backoff.RetryNotify(operation, backoff.WithContext(bo, ctx), notify)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

func (l *WakeListener) listenSQL() (string, error) {
	if l.channel == "" {
		return "", fmt.Errorf("%w: empty notify channel", ErrInvalidIdentifier)
	}
	return "LISTEN " + pgx.Identifier{l.channel}.Sanitize(), nil
}

// listen держит одно соединение и ждёт уведомлений.
func (l *WakeListener) listen(ctx context.Context, listenSQL string, bo backoff.BackOff) error {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire: %w", err)
	}
	defer func() {
		// Соединение в состоянии LISTEN не должно вернуться в пул
		l.closeConn(conn.Conn().Close)
		conn.Release()
	}()

	if _, err := conn.Exec(ctx, listenSQL); err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	l.logger.Info("listening for wake notifications", "channel", l.channel)
	bo.Reset()

	// Пока соединения не было, уведомления могли потеряться
	l.waker.Set()

	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			return fmt.Errorf("wait for notification: %w", err)
		}
		l.logger.Debug("wake notification", "channel", n.Channel, "payload", n.Payload)
		l.waker.Set()
	}
}

// closeConn закрывает соединение LISTEN; ошибка закрытия не фатальна.
func (l *WakeListener) closeConn(closeFn func(context.Context) error) {
	if err := closeFn(context.Background()); err != nil {
		l.logger.Debug("close listen connection", "channel", l.channel, "error", err)
	}
}
