package scheduler

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/jobpoller/internal/domain"
)

var testNow = time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)

func past(d time.Duration) time.Time   { return testNow.Add(-d) }
func future(d time.Duration) time.Time { return testNow.Add(d) }

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

func newTestScheduler(store Store, exec Executor, iv time.Duration) *Scheduler {
	return New(Config{
		Store:    store,
		Executor: exec,
		Interval: iv,
		Logger:   quietLogger(),
	})
}

// runAsync запускает Run в горутине и возвращает канал с результатом.
func runAsync(ctx context.Context, s *Scheduler) <-chan error {
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	return done
}

func waitResult(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop")
		return nil
	}
}

// --- RunCycle ---

func TestRunCycle_OnlyEnabledDueJobs(t *testing.T) {
	store := newMemStore(testNow,
		domain.Job{ID: 1, Enabled: true, NextRun: past(time.Minute)},
		domain.Job{ID: 2, Enabled: false, NextRun: past(time.Minute)},
		domain.Job{ID: 3, Enabled: true, NextRun: future(time.Minute)},
	)
	exec := &recordingExecutor{}
	s := newTestScheduler(store, exec, time.Hour)

	res, err := s.RunCycle(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []int64{1}, res.Selected)
	assert.Equal(t, 1, res.Dispatched)
	assert.Equal(t, []int64{1}, exec.Calls())
	assert.Equal(t, []int64{1}, store.Committed())
	assert.Empty(t, store.LockedRows())
}

func TestRunCycle_DueAtExactlyNow(t *testing.T) {
	store := newMemStore(testNow, domain.Job{ID: 9, Enabled: true, NextRun: testNow})
	exec := &recordingExecutor{}

	res, err := newTestScheduler(store, exec, time.Hour).RunCycle(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []int64{9}, res.Selected)
}

func TestRunCycle_OrderByNextRun(t *testing.T) {
	store := newMemStore(testNow,
		domain.Job{ID: 10, Enabled: true, NextRun: past(time.Second)},
		domain.Job{ID: 11, Enabled: true, NextRun: past(time.Hour)},
		domain.Job{ID: 12, Enabled: true, NextRun: past(time.Minute)},
		domain.Job{ID: 13, Enabled: true, NextRun: past(24 * time.Hour)},
	)
	exec := &recordingExecutor{}

	res, err := newTestScheduler(store, exec, time.Hour).RunCycle(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []int64{13, 11, 12, 10}, exec.Calls())
	assert.Equal(t, exec.Calls(), res.Selected)
}

func TestRunCycle_NoJobs(t *testing.T) {
	store := newMemStore(testNow, domain.Job{ID: 1, Enabled: true, NextRun: future(time.Hour)})
	exec := &recordingExecutor{}

	res, err := newTestScheduler(store, exec, time.Hour).RunCycle(context.Background())

	require.NoError(t, err)
	assert.Empty(t, res.Selected)
	assert.Zero(t, res.Dispatched)
	assert.Empty(t, exec.Calls())
	assert.Equal(t, 1, store.commits)
}

func TestRunCycle_ConcurrentInstancesNeverShareJob(t *testing.T) {
	store := newMemStore(testNow, domain.Job{ID: 5, Enabled: true, NextRun: past(time.Second)})
	ctx := context.Background()

	// Обе транзакции открыты одновременно, ни одна ещё не закоммичена
	tx1, err := store.Begin(ctx)
	require.NoError(t, err)
	tx2, err := store.Begin(ctx)
	require.NoError(t, err)

	jobs1, err := tx1.DueJobs(ctx)
	require.NoError(t, err)
	jobs2, err := tx2.DueJobs(ctx)
	require.NoError(t, err)

	assert.Equal(t, []int64{5}, domain.IDs(jobs1))
	assert.Empty(t, jobs2)

	require.NoError(t, tx1.Commit(ctx))
	require.NoError(t, tx2.Commit(ctx))
}

func TestRunCycle_ConcurrentSchedulersDispatchOnce(t *testing.T) {
	jobs := make([]domain.Job, 0, 50)
	for i := int64(1); i <= 50; i++ {
		jobs = append(jobs, domain.Job{ID: i, Enabled: true, NextRun: past(time.Duration(i) * time.Second)})
	}
	store := newMemStore(testNow, jobs...)

	// Executor сдвигает next_run в будущее — как настоящая функция выполнения
	exec := &recordingExecutor{advance: time.Hour}
	a := newTestScheduler(store, exec, time.Hour)
	b := newTestScheduler(store, exec, time.Hour)

	errs := make(chan error, 2)
	for _, s := range []*Scheduler{a, b} {
		go func(s *Scheduler) {
			_, err := s.RunCycle(context.Background())
			errs <- err
		}(s)
	}
	require.NoError(t, <-errs)
	require.NoError(t, <-errs)

	seen := make(map[int64]int)
	for _, id := range store.Committed() {
		seen[id]++
	}
	for id, n := range seen {
		assert.Equal(t, 1, n, "job %d dispatched more than once", id)
	}
	assert.Len(t, seen, 50)
}

func TestRunCycle_FailureRollsBackWholeCycle(t *testing.T) {
	boom := errors.New("execute_job failed")
	store := newMemStore(testNow,
		domain.Job{ID: 3, Enabled: true, NextRun: past(time.Hour)},
		domain.Job{ID: 7, Enabled: true, NextRun: past(time.Minute)},
	)
	exec := &recordingExecutor{failOn: map[int64]error{7: boom}, advance: time.Hour}

	res, err := newTestScheduler(store, exec, time.Hour).RunCycle(context.Background())

	require.ErrorIs(t, err, ErrCycle)
	require.ErrorIs(t, err, boom)
	assert.Equal(t, []int64{3, 7}, res.Selected)
	assert.Zero(t, res.Dispatched)
	assert.Equal(t, []int64{3, 7}, exec.Calls())
	assert.Empty(t, store.Committed())
	assert.Empty(t, store.LockedRows())
	assert.Equal(t, 1, store.rollbacks)
	// next_run задания 3 не сдвинут: его выполнение откачено вместе с циклом
	assert.Equal(t, past(time.Hour), store.NextRun(3))
}

func TestRunCycle_FailureOnSecondOfThree(t *testing.T) {
	boom := errors.New("boom")
	store := newMemStore(testNow,
		domain.Job{ID: 1, Enabled: true, NextRun: past(3 * time.Minute)},
		domain.Job{ID: 2, Enabled: true, NextRun: past(2 * time.Minute)},
		domain.Job{ID: 3, Enabled: true, NextRun: past(time.Minute)},
	)
	exec := &recordingExecutor{failOn: map[int64]error{2: boom}}

	_, err := newTestScheduler(store, exec, time.Hour).RunCycle(context.Background())

	require.ErrorIs(t, err, boom)
	assert.Equal(t, []int64{1, 2}, exec.Calls(), "job 3 must not be dispatched after a failure")
	assert.Empty(t, store.Committed())

	// Следующий цикл видит все три задания снова
	exec.failOn = nil
	res, err := newTestScheduler(store, exec, time.Hour).RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3}, res.Selected)
}

func TestRunCycle_ExecutorPanicRollsBack(t *testing.T) {
	store := newMemStore(testNow, domain.Job{ID: 1, Enabled: true, NextRun: past(time.Second)})
	exec := ExecutorFunc(func(context.Context, Tx, int64) error { panic("bad job") })

	_, err := newTestScheduler(store, exec, time.Hour).RunCycle(context.Background())

	require.ErrorIs(t, err, ErrExecutorPanic)
	require.ErrorIs(t, err, ErrCycle)
	assert.Equal(t, 1, store.rollbacks)
	assert.Empty(t, store.LockedRows())
}

func TestRunCycle_StoreErrors(t *testing.T) {
	t.Run("begin", func(t *testing.T) {
		store := newMemStore(testNow)
		store.beginErr = errors.New("connection refused")
		_, err := newTestScheduler(store, &recordingExecutor{}, time.Hour).RunCycle(context.Background())
		require.ErrorIs(t, err, ErrCycle)
		require.ErrorIs(t, err, store.beginErr)
	})

	t.Run("select", func(t *testing.T) {
		store := newMemStore(testNow)
		store.dueErr = errors.New("relation does not exist")
		_, err := newTestScheduler(store, &recordingExecutor{}, time.Hour).RunCycle(context.Background())
		require.ErrorIs(t, err, store.dueErr)
		assert.Equal(t, 1, store.rollbacks)
	})

	t.Run("commit", func(t *testing.T) {
		store := newMemStore(testNow, domain.Job{ID: 1, Enabled: true, NextRun: past(time.Second)})
		store.commitErr = errors.New("serialization failure")
		res, err := newTestScheduler(store, &recordingExecutor{}, time.Hour).RunCycle(context.Background())
		require.ErrorIs(t, err, store.commitErr)
		assert.Zero(t, res.Dispatched)
		assert.Empty(t, store.Committed())
	})
}

// --- Run ---

func TestRun_LatchWakesCycle(t *testing.T) {
	store := newMemStore(testNow, domain.Job{ID: 1, Enabled: true, NextRun: past(time.Second)})
	exec := &recordingExecutor{advance: time.Hour}
	s := newTestScheduler(store, exec, time.Hour)

	done := runAsync(context.Background(), s)
	s.Latch().Set()

	require.Eventually(t, func() bool { return len(store.Committed()) == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, StateRunning, s.State())

	s.Terminate()
	require.NoError(t, waitResult(t, done))
	assert.Equal(t, StateStopped, s.State())
	assert.False(t, s.Latch().IsSet())
}

func TestRun_TimerWakesCycle(t *testing.T) {
	store := newMemStore(testNow, domain.Job{ID: 1, Enabled: true, NextRun: past(time.Second)})
	exec := &recordingExecutor{advance: time.Hour}
	s := newTestScheduler(store, exec, 20*time.Millisecond)

	done := runAsync(context.Background(), s)

	require.Eventually(t, func() bool { return len(store.Committed()) == 1 }, 2*time.Second, 5*time.Millisecond)

	s.Terminate()
	require.NoError(t, waitResult(t, done))
}

func TestRun_NoExtraSleepWhenJobsFound(t *testing.T) {
	store := newMemStore(testNow,
		domain.Job{ID: 1, Enabled: true, NextRun: past(time.Second)},
	)
	exec := &recordingExecutor{advance: time.Hour}
	s := newTestScheduler(store, exec, time.Hour)

	done := runAsync(context.Background(), s)

	s.Latch().Set()
	require.Eventually(t, func() bool { return store.Begins() == 1 && len(store.Committed()) == 1 }, 2*time.Second, 5*time.Millisecond)

	// Задания были — следующий latch запускает цикл сразу, без паузы в час
	require.Eventually(t, func() bool {
		s.Latch().Set()
		return store.Begins() >= 2
	}, 2*time.Second, 10*time.Millisecond)

	s.Terminate()
	require.NoError(t, waitResult(t, done))
}

func TestRun_EmptyPollSleepsIgnoringLatch(t *testing.T) {
	const iv = 300 * time.Millisecond
	store := newMemStore(testNow)
	s := newTestScheduler(store, &recordingExecutor{}, iv)

	firstCycle := make(chan time.Time, 1)
	store.onBegin = func(n int) {
		if n == 1 {
			firstCycle <- time.Now()
		}
	}

	done := runAsync(context.Background(), s)
	s.Latch().Set()

	var first time.Time
	select {
	case first = <-firstCycle:
	case <-time.After(2 * time.Second):
		t.Fatal("first cycle did not start")
	}

	// Во время паузы после пустого опроса latch не будит цикл
	s.Latch().Set()
	time.Sleep(iv / 3)
	assert.Equal(t, 1, store.Begins())

	// После паузы установленный latch срабатывает
	require.Eventually(t, func() bool { return store.Begins() >= 2 }, 2*time.Second, 5*time.Millisecond)
	assert.GreaterOrEqual(t, time.Since(first), iv)

	s.Terminate()
	require.NoError(t, waitResult(t, done))
}

func TestRun_TerminateDuringWait(t *testing.T) {
	store := newMemStore(testNow)
	s := newTestScheduler(store, &recordingExecutor{}, time.Hour)

	done := runAsync(context.Background(), s)
	time.Sleep(20 * time.Millisecond)
	s.Terminate()

	require.NoError(t, waitResult(t, done))
	assert.Equal(t, StateStopped, s.State())
	assert.Zero(t, store.Begins(), "termination during wait must not open a transaction")
}

func TestRun_TerminateIsIdempotent(t *testing.T) {
	s := newTestScheduler(newMemStore(testNow), &recordingExecutor{}, time.Hour)
	s.Terminate()
	s.Terminate()

	require.NoError(t, s.Run(context.Background()))
	assert.Equal(t, StateStopped, s.State())
}

func TestRun_ContextCancelStopsGracefully(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := newTestScheduler(newMemStore(testNow), &recordingExecutor{}, time.Hour)

	done := runAsync(ctx, s)
	cancel()

	require.NoError(t, waitResult(t, done))
	assert.Equal(t, StateStopped, s.State())
}

func TestRun_TerminateLetsCycleFinish(t *testing.T) {
	store := newMemStore(testNow, domain.Job{ID: 1, Enabled: true, NextRun: past(time.Second)})

	entered := make(chan struct{})
	release := make(chan struct{})
	exec := &recordingExecutor{advance: time.Hour}
	exec.hook = func(int64) {
		close(entered)
		<-release
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := newTestScheduler(store, exec, time.Hour)
	done := runAsync(ctx, s)
	s.Latch().Set()

	<-entered
	cancel()
	require.Eventually(t, func() bool { return s.State() == StateStopping }, time.Second, 5*time.Millisecond)
	close(release)

	require.NoError(t, waitResult(t, done))
	assert.Equal(t, []int64{1}, store.Committed(), "in-flight cycle must commit")
	assert.Equal(t, StateStopped, s.State())
}

func TestRun_HostShutdownAbortsImmediately(t *testing.T) {
	hostDown := make(chan struct{})
	store := newMemStore(testNow, domain.Job{ID: 1, Enabled: true, NextRun: past(time.Second)})
	s := New(Config{
		Store:        store,
		Executor:     &recordingExecutor{},
		HostShutdown: hostDown,
		Interval:     time.Hour,
		Logger:       quietLogger(),
	})

	// Latch и гибель хоста одновременно: побеждает гибель хоста
	s.Latch().Set()
	close(hostDown)

	err := s.Run(context.Background())

	require.ErrorIs(t, err, ErrHostShutdown)
	assert.Zero(t, store.Begins())
	assert.Equal(t, StateStopped, s.State())
}

func TestRun_HostShutdownDuringEmptySleep(t *testing.T) {
	hostDown := make(chan struct{})
	store := newMemStore(testNow)
	store.onBegin = func(int) { close(hostDown) }
	s := New(Config{
		Store:        store,
		Executor:     &recordingExecutor{},
		HostShutdown: hostDown,
		Interval:     time.Hour,
		Logger:       quietLogger(),
	})

	done := runAsync(context.Background(), s)
	s.Latch().Set()

	require.ErrorIs(t, waitResult(t, done), ErrHostShutdown)
	assert.Equal(t, 1, store.Begins())
}

func TestRun_CycleErrorIsFatal(t *testing.T) {
	boom := errors.New("boom")
	store := newMemStore(testNow, domain.Job{ID: 4, Enabled: true, NextRun: past(time.Second)})
	s := newTestScheduler(store, &recordingExecutor{failOn: map[int64]error{4: boom}}, time.Hour)

	done := runAsync(context.Background(), s)
	s.Latch().Set()

	err := waitResult(t, done)
	require.ErrorIs(t, err, ErrCycle)
	require.ErrorIs(t, err, boom)
	assert.Equal(t, StateStopped, s.State())

	// Повторный Run (рестарт хостом) снова в RUNNING
	store.mu.Lock()
	store.rows[4].job.Enabled = false
	store.mu.Unlock()

	done = runAsync(context.Background(), s)
	require.Eventually(t, func() bool { return s.State() == StateRunning }, time.Second, 5*time.Millisecond)
	s.Terminate()
	require.NoError(t, waitResult(t, done))
}

func TestNew_Defaults(t *testing.T) {
	s := New(Config{Store: newMemStore(testNow), Executor: &recordingExecutor{}})
	assert.Equal(t, 10*time.Second, s.Interval())
	assert.NotNil(t, s.Latch())
	assert.Equal(t, StateRunning, s.State())
}

// --- Latch ---

func TestLatch_SetCoalesces(t *testing.T) {
	l := NewLatch()
	assert.False(t, l.IsSet())

	l.Set()
	l.Set()
	l.Set()
	assert.True(t, l.IsSet())

	<-l.C()
	assert.False(t, l.IsSet())

	select {
	case <-l.C():
		t.Fatal("latch fired twice")
	default:
	}
}

func TestLatch_Reset(t *testing.T) {
	l := NewLatch()
	l.Set()
	l.Reset()
	assert.False(t, l.IsSet())

	// Reset сброшенного latch — no-op
	l.Reset()
	assert.False(t, l.IsSet())
}

func TestWakeReason_String(t *testing.T) {
	assert.Equal(t, "latch", WakeLatch.String())
	assert.Equal(t, "timeout", WakeTimeout.String())
	assert.Equal(t, "host_shutdown", WakeHostShutdown.String())
	assert.Equal(t, "terminate", WakeTerminate.String())
	assert.Equal(t, "STOPPING", StateStopping.String())
}
