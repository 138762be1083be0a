package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shaiso/jobpoller/internal/domain"
	"github.com/shaiso/jobpoller/internal/interval"
	"github.com/shaiso/jobpoller/internal/telemetry"
)

// Scheduler — цикл, забирающий due задания и передающий их Executor.
//
// Один Scheduler — один последовательный цикл: циклы никогда
// не перекрываются. Несколько экземпляров (процессов) могут работать
// с одной таблицей, взаимное исключение даёт Store.
type Scheduler struct {
	store        Store
	executor     Executor
	latch        *Latch
	hostShutdown <-chan struct{}
	interval     time.Duration
	logger       *slog.Logger
	metrics      *telemetry.Metrics

	// Флаг завершения: выставляется асинхронно, читается циклом.
	terminating atomic.Bool
	stopCh      chan struct{}
	stopOnce    sync.Once

	state atomic.Int32
}

// Config — конфигурация Scheduler.
type Config struct {
	Store    Store
	Executor Executor

	// Latch — внешнее пробуждение (опционально; если nil — создаётся свой).
	Latch *Latch

	// HostShutdown закрывается, когда хост умирает. nil — никогда.
	HostShutdown <-chan struct{}

	// Interval — WakeInterval (default: 10s).
	Interval time.Duration

	Logger  *slog.Logger
	Metrics *telemetry.Metrics // опционально
}

// CycleResult — итог одного цикла.
type CycleResult struct {
	// Selected — id, выбранные в цикле, в порядке выполнения.
	Selected []int64

	// Dispatched — сколько заданий закоммичено. 0, если цикл откачен.
	Dispatched int
}

// New создаёт новый Scheduler.
func New(cfg Config) *Scheduler {
	iv := cfg.Interval
	if iv <= 0 {
		iv = interval.Default
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	latch := cfg.Latch
	if latch == nil {
		latch = NewLatch()
	}

	return &Scheduler{
		store:        cfg.Store,
		executor:     cfg.Executor,
		latch:        latch,
		hostShutdown: cfg.HostShutdown,
		interval:     iv,
		logger:       logger,
		metrics:      cfg.Metrics,
		stopCh:       make(chan struct{}),
	}
}

// Latch возвращает latch цикла: Set() будит Scheduler.
func (s *Scheduler) Latch() *Latch {
	return s.latch
}

// Interval возвращает WakeInterval.
func (s *Scheduler) Interval() time.Duration {
	return s.interval
}

// State возвращает текущее состояние цикла.
func (s *Scheduler) State() State {
	return State(s.state.Load())
}

// Terminate просит цикл остановиться.
//
// Текущий цикл (транзакция) доводится до конца, после него Run
// возвращает nil. Безопасно вызывать из любой горутины и несколько раз.
func (s *Scheduler) Terminate() {
	s.terminating.Store(true)
	s.state.CompareAndSwap(int32(StateRunning), int32(StateStopping))
	s.stopOnce.Do(func() { close(s.stopCh) })
}

// Run крутит цикл до остановки.
//
// Возвращает:
//   - nil — штатная остановка (Terminate или отмена ctx);
//   - ErrHostShutdown — хост умер, выходим сразу;
//   - ошибку, оборачивающую ErrCycle, — цикл упал, транзакция откачена.
//
// Отмена ctx равносильна Terminate: транзакция текущего цикла
// не прерывается.
func (s *Scheduler) Run(ctx context.Context) error {
	if !s.terminating.Load() {
		s.state.Store(int32(StateRunning))
	}

	stop := context.AfterFunc(ctx, s.Terminate)
	defer stop()

	// Цикл не должен обрываться на середине транзакции
	cycleCtx := context.WithoutCancel(ctx)

	s.logger.Info("scheduler started", "wake_interval", s.interval)

	for !s.terminating.Load() {
		reason := s.wait()
		s.metrics.ObserveWakeup(reason.String())

		if reason == WakeHostShutdown {
			return s.abort()
		}

		s.latch.Reset()

		if reason == WakeTerminate {
			break
		}

		res, err := s.RunCycle(cycleCtx)
		if err != nil {
			s.state.Store(int32(StateStopped))
			s.logger.Error("scheduler cycle failed",
				"selected", res.Selected,
				"error", err,
			)
			return err
		}

		if res.Dispatched == 0 {
			// Пустой опрос — не крутимся вхолостую
			if s.sleep() == WakeHostShutdown {
				return s.abort()
			}
		}
	}

	s.state.Store(int32(StateStopping))
	s.logger.Info("scheduler stopping")
	s.state.Store(int32(StateStopped))
	s.logger.Info("scheduler stopped")
	return nil
}

// RunCycle выполняет один цикл: выборка due заданий, выполнение, commit.
//
// Ошибка выборки или любого Execute откатывает весь цикл.
func (s *Scheduler) RunCycle(ctx context.Context) (CycleResult, error) {
	var res CycleResult
	start := time.Now()

	tx, err := s.store.Begin(ctx)
	if err != nil {
		s.metrics.ObserveCycle(telemetry.CycleFailed, 0, time.Since(start))
		return res, fmt.Errorf("%w: begin: %w", ErrCycle, err)
	}

	jobs, err := tx.DueJobs(ctx)
	if err != nil {
		s.rollback(ctx, tx)
		s.metrics.ObserveCycle(telemetry.CycleFailed, 0, time.Since(start))
		return res, fmt.Errorf("%w: select due jobs: %w", ErrCycle, err)
	}
	res.Selected = domain.IDs(jobs)

	if len(jobs) > 0 {
		s.logger.Debug("found due jobs", "count", len(jobs), "jobs", res.Selected)
	}

	for _, job := range jobs {
		if err := s.execute(ctx, tx, job.ID); err != nil {
			s.rollback(ctx, tx)
			s.metrics.ObserveCycle(telemetry.CycleFailed, 0, time.Since(start))
			return res, fmt.Errorf("%w: execute job %d: %w", ErrCycle, job.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		s.metrics.ObserveCycle(telemetry.CycleFailed, 0, time.Since(start))
		return res, fmt.Errorf("%w: commit: %w", ErrCycle, err)
	}

	res.Dispatched = len(jobs)
	s.metrics.ObserveCycle(telemetry.CycleOK, res.Dispatched, time.Since(start))

	if res.Dispatched > 0 {
		s.logger.Info("scheduler cycle completed",
			"dispatched", res.Dispatched,
			"took", time.Since(start),
		)
	}

	return res, nil
}

// execute вызывает Executor, превращая панику в ошибку.
func (s *Scheduler) execute(ctx context.Context, tx Tx, jobID int64) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrExecutorPanic, r)
		}
	}()

	telemetry.WithJobID(s.logger, jobID).Debug("dispatching job")
	return s.executor.Execute(ctx, tx, jobID)
}

func (s *Scheduler) rollback(ctx context.Context, tx Tx) {
	if err := tx.Rollback(ctx); err != nil {
		s.logger.Warn("rollback failed", "error", err)
	}
}

// wait — единственная точка ожидания цикла.
func (s *Scheduler) wait() WakeReason {
	timer := time.NewTimer(s.interval)
	defer timer.Stop()

	var reason WakeReason
	select {
	case <-s.hostShutdown:
		return WakeHostShutdown
	case <-s.stopCh:
		reason = WakeTerminate
	case <-s.latch.C():
		reason = WakeLatch
	case <-timer.C:
		reason = WakeTimeout
	}

	// Гибель хоста важнее остальных причин
	if s.hostDown() {
		return WakeHostShutdown
	}
	return reason
}

// sleep — пауза после пустого опроса. Latch её не прерывает.
func (s *Scheduler) sleep() WakeReason {
	timer := time.NewTimer(s.interval)
	defer timer.Stop()

	select {
	case <-s.hostShutdown:
		return WakeHostShutdown
	case <-s.stopCh:
		return WakeTerminate
	case <-timer.C:
		return WakeTimeout
	}
}

func (s *Scheduler) hostDown() bool {
	select {
	case <-s.hostShutdown:
		return true
	default:
		return false
	}
}

func (s *Scheduler) abort() error {
	s.state.Store(int32(StateStopped))
	s.logger.Warn("host shutdown, exiting immediately")
	return ErrHostShutdown
}
