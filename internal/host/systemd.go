package host

import (
	"context"
	"log/slog"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
)

// Notifier сообщает systemd о состоянии сервиса (Type=notify).
// Без NOTIFY_SOCKET все вызовы ничего не делают.
type Notifier struct {
	logger *slog.Logger
}

// NewNotifier создаёт Notifier.
func NewNotifier(logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{logger: logger}
}

// Ready — цикл запущен.
func (n *Notifier) Ready() {
	n.notify(daemon.SdNotifyReady)
}

// Stopping — штатная остановка.
func (n *Notifier) Stopping() {
	n.notify(daemon.SdNotifyStopping)
}

// RunWatchdog пингует watchdog с половиной WatchdogSec до отмены ctx.
// Если watchdog не включён, сразу возвращается.
func (n *Notifier) RunWatchdog(ctx context.Context) {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		n.logger.Warn("systemd watchdog config", "error", err)
		return
	}
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n.notify(daemon.SdNotifyWatchdog)
		}
	}
}

func (n *Notifier) notify(state string) {
	sent, err := daemon.SdNotify(false, state)
	if err != nil {
		n.logger.Warn("systemd notify failed", "state", state, "error", err)
		return
	}
	if sent {
		n.logger.Debug("systemd notified", "state", state)
	}
}
