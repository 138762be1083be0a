package host

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"time"
)

// DefaultParentPoll — период проверки родительского процесса.
const DefaultParentPoll = time.Second

// ShutdownWatcher сообщает о гибели хоста: сигнал HostShutdownSignals
// или (опционально) смерть родительского процесса.
type ShutdownWatcher struct {
	logger      *slog.Logger
	watchParent bool
	parentPoll  time.Duration

	done chan struct{}
	once sync.Once

	getppid func() int
}

// ShutdownConfig — конфигурация ShutdownWatcher.
type ShutdownConfig struct {
	// WatchParent — считать смену родителя (reparent к init) гибелью хоста.
	WatchParent bool

	// ParentPoll — период проверки родителя. По умолчанию DefaultParentPoll.
	ParentPoll time.Duration

	Logger *slog.Logger
}

// NewShutdownWatcher создаёт ShutdownWatcher.
func NewShutdownWatcher(cfg ShutdownConfig) *ShutdownWatcher {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.ParentPoll <= 0 {
		cfg.ParentPoll = DefaultParentPoll
	}
	return &ShutdownWatcher{
		logger:      cfg.Logger,
		watchParent: cfg.WatchParent,
		parentPoll:  cfg.ParentPoll,
		done:        make(chan struct{}),
		getppid:     os.Getppid,
	}
}

// Done закрывается один раз, когда хост завершается.
func (w *ShutdownWatcher) Done() <-chan struct{} {
	return w.done
}

// Shutdown отмечает гибель хоста. Повторные вызовы ничего не делают.
func (w *ShutdownWatcher) Shutdown(reason string) {
	w.once.Do(func() {
		w.logger.Warn("host shutdown", "reason", reason)
		close(w.done)
	})
}

// Start начинает слежение и возвращает stop. Время жизни не связано
// с контекстом штатной остановки: SIGQUIT во время дренажа цикла
// должен оставаться гибелью хоста, а не дампом горутин.
func (w *ShutdownWatcher) Start() (stop func()) {
	sigCh := make(chan os.Signal, 1)
	if len(HostShutdownSignals) > 0 {
		signal.Notify(sigCh, HostShutdownSignals...)
	}
	parent := w.getppid()

	ctx, cancel := context.WithCancel(context.Background())
	exited := make(chan struct{})
	go func() {
		defer close(exited)
		w.watch(ctx, sigCh, parent)
	}()

	return func() {
		cancel()
		<-exited
		signal.Stop(sigCh)
	}
}

// Run следит за источниками до отмены ctx или до гибели хоста.
func (w *ShutdownWatcher) Run(ctx context.Context) {
	stop := w.Start()
	defer stop()

	select {
	case <-ctx.Done():
	case <-w.done:
	}
}

func (w *ShutdownWatcher) watch(ctx context.Context, sigCh <-chan os.Signal, parent int) {
	var tick <-chan time.Time
	if w.watchParent {
		ticker := time.NewTicker(w.parentPoll)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case sig := <-sigCh:
			w.Shutdown("signal " + sig.String())
			return
		case <-tick:
			if ppid := w.getppid(); ppid != parent {
				w.logger.Warn("parent process exited", "parent", parent, "ppid", ppid)
				w.Shutdown("parent exited")
				return
			}
		}
	}
}
