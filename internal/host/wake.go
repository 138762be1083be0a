package host

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
)

// Waker — то, что будит цикл (scheduler.Latch).
type Waker interface {
	Set()
}

// WakeOnSignal взводит waker на каждый WakeSignals до отмены ctx.
func WakeOnSignal(ctx context.Context, waker Waker, logger *slog.Logger) {
	if len(WakeSignals) == 0 {
		return
	}
	if logger == nil {
		logger = slog.Default()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, WakeSignals...)
	defer signal.Stop(sigCh)

	for {
		select {
		case <-ctx.Done():
			return
		case sig := <-sigCh:
			logger.Debug("wake signal", "signal", sig.String())
			waker.Set()
		}
	}
}
