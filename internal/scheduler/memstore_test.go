package scheduler

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/shaiso/jobpoller/internal/domain"
)

// memStore — таблица заданий в памяти с блокировками строк в духе
// FOR UPDATE SKIP LOCKED и журналом эффектов, который применяется на commit.
type memStore struct {
	mu   sync.Mutex
	rows map[int64]*memRow
	now  time.Time

	// committed — выполнения заданий из закоммиченных циклов.
	committed []int64

	begins    int
	commits   int
	rollbacks int

	beginErr  error
	dueErr    error
	commitErr error
	onBegin   func(n int)
}

type memRow struct {
	job   domain.Job
	owner *memTx
}

func newMemStore(now time.Time, jobs ...domain.Job) *memStore {
	s := &memStore{rows: make(map[int64]*memRow), now: now}
	for _, j := range jobs {
		s.rows[j.ID] = &memRow{job: j}
	}
	return s
}

func (s *memStore) Begin(_ context.Context) (Tx, error) {
	s.mu.Lock()
	s.begins++
	n := s.begins
	hook := s.onBegin
	err := s.beginErr
	s.mu.Unlock()

	if hook != nil {
		hook(n)
	}
	if err != nil {
		return nil, err
	}
	return &memTx{store: s, reschedule: make(map[int64]time.Time)}, nil
}

func (s *memStore) Committed() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int64(nil), s.committed...)
}

func (s *memStore) Begins() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.begins
}

func (s *memStore) LockedRows() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []int64
	for id, r := range s.rows {
		if r.owner != nil {
			ids = append(ids, id)
		}
	}
	return ids
}

func (s *memStore) NextRun(id int64) time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rows[id].job.NextRun
}

var errTxDone = errors.New("tx already closed")

type memTx struct {
	store *memStore
	done  bool

	locked     []int64
	pending    []int64
	reschedule map[int64]time.Time
	stmts      []string
}

func (t *memTx) DueJobs(_ context.Context) ([]domain.DueJob, error) {
	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if t.done {
		return nil, errTxDone
	}
	if s.dueErr != nil {
		return nil, s.dueErr
	}

	var due []*memRow
	for _, r := range s.rows {
		if !r.job.IsDue(s.now) {
			continue
		}
		// SKIP LOCKED: чужие строки пропускаем, не ждём
		if r.owner != nil && r.owner != t {
			continue
		}
		due = append(due, r)
	}

	sort.Slice(due, func(i, j int) bool {
		if due[i].job.NextRun.Equal(due[j].job.NextRun) {
			return due[i].job.ID < due[j].job.ID
		}
		return due[i].job.NextRun.Before(due[j].job.NextRun)
	})

	jobs := make([]domain.DueJob, 0, len(due))
	for _, r := range due {
		if r.owner == nil {
			r.owner = t
			t.locked = append(t.locked, r.job.ID)
		}
		jobs = append(jobs, domain.DueJob{ID: r.job.ID, NextRun: r.job.NextRun})
	}
	return jobs, nil
}

func (t *memTx) Exec(_ context.Context, sql string, _ ...any) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	if t.done {
		return errTxDone
	}
	t.stmts = append(t.stmts, sql)
	return nil
}

// dispatch записывает выполнение задания в журнал транзакции.
func (t *memTx) dispatch(id int64, next time.Time) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	t.pending = append(t.pending, id)
	if !next.IsZero() {
		t.reschedule[id] = next
	}
}

func (t *memTx) Commit(_ context.Context) error {
	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if t.done {
		return errTxDone
	}
	t.done = true

	if s.commitErr != nil {
		t.releaseLocked()
		s.rollbacks++
		return s.commitErr
	}

	for id, next := range t.reschedule {
		s.rows[id].job.NextRun = next
	}
	s.committed = append(s.committed, t.pending...)
	s.commits++
	t.releaseLocked()
	return nil
}

func (t *memTx) Rollback(_ context.Context) error {
	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if t.done {
		return errTxDone
	}
	t.done = true
	s.rollbacks++
	t.releaseLocked()
	return nil
}

// releaseLocked вызывается под s.mu.
func (t *memTx) releaseLocked() {
	for _, id := range t.locked {
		if r, ok := t.store.rows[id]; ok && r.owner == t {
			r.owner = nil
		}
	}
	t.locked = nil
}

// recordingExecutor запоминает вызовы и умеет падать на заданном id.
type recordingExecutor struct {
	mu      sync.Mutex
	calls   []int64
	failOn  map[int64]error
	advance time.Duration
	hook    func(id int64)
}

func (e *recordingExecutor) Execute(ctx context.Context, tx Tx, jobID int64) error {
	e.mu.Lock()
	e.calls = append(e.calls, jobID)
	err := e.failOn[jobID]
	advance := e.advance
	hook := e.hook
	e.mu.Unlock()

	if hook != nil {
		hook(jobID)
	}
	if err != nil {
		return err
	}

	if err := tx.Exec(ctx, "SELECT scheduler.execute_job($1)", jobID); err != nil {
		return err
	}

	mt := tx.(*memTx)
	var next time.Time
	if advance > 0 {
		next = mt.store.now.Add(advance)
	}
	mt.dispatch(jobID, next)
	return nil
}

func (e *recordingExecutor) Calls() []int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]int64(nil), e.calls...)
}
