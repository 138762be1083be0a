package repo

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/jobpoller/internal/domain"
	"github.com/shaiso/jobpoller/internal/scheduler"
)

// JobRepo — репозиторий таблицы заданий. Реализует scheduler.Store.
//
// Таблица должна иметь колонки job_id, enabled, next_run;
// режим lease дополнительно требует locked_by text и locked_until timestamptz.
type JobRepo struct {
	pool *pgxpool.Pool

	table     string // уже экранированное имя
	mode      domain.ClaimMode
	leaseTTL  time.Duration
	batchSize int
	owner     string
}

// JobRepoConfig — конфигурация JobRepo.
type JobRepoConfig struct {
	Table     string           // default: scheduler.jobs
	ClaimMode domain.ClaimMode // default: skip_locked
	LeaseTTL  time.Duration    // default: 5m, только для lease
	BatchSize int              // 0 — без ограничения

	// Owner — идентификатор экземпляра для locked_by (default: случайный UUID).
	Owner string
}

// NewJobRepo создаёт новый JobRepo.
func NewJobRepo(pool *pgxpool.Pool, cfg JobRepoConfig) (*JobRepo, error) {
	tableName := cfg.Table
	if tableName == "" {
		tableName = "scheduler.jobs"
	}
	table, err := quoteIdent(tableName)
	if err != nil {
		return nil, fmt.Errorf("table: %w", err)
	}

	mode := cfg.ClaimMode
	if mode == "" {
		mode = domain.ClaimSkipLocked
	}
	if mode != domain.ClaimSkipLocked && mode != domain.ClaimLease {
		return nil, fmt.Errorf("%w: %q", ErrInvalidClaimMode, mode)
	}

	leaseTTL := cfg.LeaseTTL
	if leaseTTL <= 0 {
		leaseTTL = 5 * time.Minute
	}

	owner := cfg.Owner
	if owner == "" {
		owner = uuid.New().String()
	}

	return &JobRepo{
		pool:      pool,
		table:     table,
		mode:      mode,
		leaseTTL:  leaseTTL,
		batchSize: max(cfg.BatchSize, 0),
		owner:     owner,
	}, nil
}

// Owner возвращает идентификатор экземпляра.
func (r *JobRepo) Owner() string {
	return r.owner
}

// Begin открывает транзакцию цикла (READ COMMITTED).
//
// REPEATABLE READ здесь не подходит: FOR UPDATE по строке, которую другой
// экземпляр успел изменить после снимка, падает с ошибкой сериализации.
func (r *JobRepo) Begin(ctx context.Context) (scheduler.Tx, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	return &jobTx{repo: r, tx: tx}, nil
}

// ListDue возвращает due задания без блокировок (только для просмотра).
func (r *JobRepo) ListDue(ctx context.Context, limit int) ([]domain.Job, error) {
	query := `
		SELECT job_id, enabled, next_run
		FROM ` + r.table + `
		WHERE enabled AND next_run <= now()
		ORDER BY next_run ASC, job_id ASC
	`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list due jobs: %w", err)
	}
	defer rows.Close()

	var jobs []domain.Job
	for rows.Next() {
		var j domain.Job
		if err := rows.Scan(&j.ID, &j.Enabled, &j.NextRun); err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// Notify отправляет pg_notify в канал пробуждения.
func (r *JobRepo) Notify(ctx context.Context, channel, payload string) error {
	if _, err := r.pool.Exec(ctx, `SELECT pg_notify($1, $2)`, channel, payload); err != nil {
		return fmt.Errorf("notify %s: %w", channel, err)
	}
	return nil
}

func (r *JobRepo) skipLockedQuery() string {
	query := `
		SELECT job_id, next_run
		FROM ` + r.table + `
		WHERE enabled AND next_run <= now()
		ORDER BY next_run ASC`
	if r.batchSize > 0 {
		query += fmt.Sprintf(`
		LIMIT %d`, r.batchSize)
	}
	return query + `
		FOR UPDATE SKIP LOCKED`
}

// leaseQuery ставит аренду одним UPDATE вне транзакции цикла:
// аренда видна остальным экземплярам до начала выполнения,
// а строки, занятые чужим циклом, пропускаются без ожидания.
func (r *JobRepo) leaseQuery() string {
	limit := ""
	if r.batchSize > 0 {
		limit = fmt.Sprintf("LIMIT %d", r.batchSize)
	}
	return `
		UPDATE ` + r.table + ` AS j
		SET locked_by = $1,
		    locked_until = now() + make_interval(secs => $2)
		WHERE j.job_id IN (
			SELECT job_id
			FROM ` + r.table + `
			WHERE enabled AND next_run <= now()
			  AND (locked_until IS NULL OR locked_until < now())
			ORDER BY next_run ASC
			` + limit + `
			FOR UPDATE SKIP LOCKED
		)
		RETURNING j.job_id, j.next_run
	`
}

// releaseQuery снимает аренду этого экземпляра в транзакции цикла.
// При откате цикла аренда остаётся и истекает сама.
func (r *JobRepo) releaseQuery() string {
	return `
		UPDATE ` + r.table + `
		SET locked_by = NULL, locked_until = NULL
		WHERE locked_by = $1 AND job_id = ANY($2)
	`
}

// jobTx — транзакция цикла поверх pgx.Tx.
type jobTx struct {
	repo *JobRepo
	tx   pgx.Tx

	// leased — задания, арендованные в этом цикле (режим lease).
	leased []int64
}

// DueJobs выбирает и блокирует due задания.
func (t *jobTx) DueJobs(ctx context.Context) ([]domain.DueJob, error) {
	var (
		rows pgx.Rows
		err  error
	)
	switch t.repo.mode {
	case domain.ClaimLease:
		// Через пул, а не t.tx: аренда фиксируется сразу
		rows, err = t.repo.pool.Query(ctx, t.repo.leaseQuery(), t.repo.owner, t.repo.leaseTTL.Seconds())
	default:
		rows, err = t.tx.Query(ctx, t.repo.skipLockedQuery())
	}
	if err != nil {
		return nil, fmt.Errorf("claim due jobs: %w", err)
	}

	jobs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.DueJob, error) {
		var j domain.DueJob
		err := row.Scan(&j.ID, &j.NextRun)
		return j, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan due jobs: %w", err)
	}

	if t.repo.mode == domain.ClaimLease {
		// RETURNING не сохраняет порядок подзапроса
		sort.SliceStable(jobs, func(i, k int) bool {
			if jobs[i].NextRun.Equal(jobs[k].NextRun) {
				return jobs[i].ID < jobs[k].ID
			}
			return jobs[i].NextRun.Before(jobs[k].NextRun)
		})
		t.leased = append(t.leased, domain.IDs(jobs)...)
	}

	return jobs, nil
}

// Exec выполняет запрос внутри транзакции.
func (t *jobTx) Exec(ctx context.Context, sql string, args ...any) error {
	_, err := t.tx.Exec(ctx, sql, args...)
	return err
}

// Commit снимает аренды цикла и фиксирует транзакцию.
func (t *jobTx) Commit(ctx context.Context) error {
	if len(t.leased) > 0 {
		if _, err := t.tx.Exec(ctx, t.repo.releaseQuery(), t.repo.owner, t.leased); err != nil {
			_ = t.tx.Rollback(ctx)
			return fmt.Errorf("release leases: %w", err)
		}
	}
	return t.tx.Commit(ctx)
}

func (t *jobTx) Rollback(ctx context.Context) error {
	return t.tx.Rollback(ctx)
}
