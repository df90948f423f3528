// File: internal/infra/db/postgres/job_repo.go
package postgres

import (
	"context"
	"errors"
	"time"

	"collab-realtime/internal/domain"
	"collab-realtime/internal/domain/model"
	"collab-realtime/internal/domain/ports/repository"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

var _ repository.JobRepository = (*jobRepo)(nil)

type jobRepo struct {
	pool *pgxpool.Pool
}

func NewJobRepo(pool *pgxpool.Pool) *jobRepo {
	return &jobRepo{pool: pool}
}

const jobColumns = `id, query, session_id, conversation_id, execution_mode, status, result, last_error, submitted_at, updated_at`

func (r *jobRepo) Save(ctx context.Context, job *model.Job) error {
	job.UpdatedAt = time.Now()

	const q = `
INSERT INTO jobs (id, query, session_id, conversation_id, execution_mode, status, result, last_error, submitted_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (id) DO UPDATE SET
  status = EXCLUDED.status,
  result = EXCLUDED.result,
  last_error = EXCLUDED.last_error,
  updated_at = EXCLUDED.updated_at;`

	_, err := r.pool.Exec(ctx, q,
		job.ID, job.Query, job.SessionID, job.ConversationID, job.ExecutionMode,
		job.Status, job.Result, job.LastError, job.SubmittedAt, job.UpdatedAt)
	return err
}

func (r *jobRepo) FindByID(ctx context.Context, id string) (*model.Job, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id)
	return scanJob(row)
}

// FetchAndMarkRunning claims the oldest queued job so concurrent runner
// workers never double-claim.
func (r *jobRepo) FetchAndMarkRunning(ctx context.Context) (*model.Job, error) {
	var job *model.Job

	err := r.pool.BeginFunc(ctx, func(tx pgx.Tx) error {
		const fetchQuery = `
SELECT ` + jobColumns + `
FROM jobs
WHERE status = 'queued'
ORDER BY submitted_at
LIMIT 1
FOR UPDATE SKIP LOCKED;`

		fetched, err := scanJob(tx.QueryRow(ctx, fetchQuery))
		if err != nil {
			return err
		}
		fetched.Status = model.JobStatusRunning
		fetched.UpdatedAt = time.Now()
		if _, err := tx.Exec(ctx,
			`UPDATE jobs SET status = $2, updated_at = $3 WHERE id = $1`,
			fetched.ID, fetched.Status, fetched.UpdatedAt); err != nil {
			return err
		}
		job = fetched
		return nil
	})
	if err != nil {
		return nil, err
	}
	return job, nil
}

func (r *jobRepo) ListOngoingByConversation(ctx context.Context, conversationID string) ([]*model.Job, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+jobColumns+` FROM jobs
		 WHERE conversation_id = $1 AND status IN ('submitted', 'queued', 'running')
		 ORDER BY submitted_at`, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanJobs(rows)
}

func (r *jobRepo) ListHistory(ctx context.Context, limit int) ([]*model.Job, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	// Job ids are ULIDs, so ordering by id is submission order.
	rows, err := r.pool.Query(ctx,
		`SELECT `+jobColumns+` FROM jobs ORDER BY id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanJobs(rows)
}

func (r *jobRepo) MarkCancelled(ctx context.Context, id string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
UPDATE jobs SET status = 'cancelled', updated_at = now()
WHERE id = $1 AND status IN ('submitted', 'queued', 'running')`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func scanJob(row pgx.Row) (*model.Job, error) {
	var j model.Job
	var status string
	err := row.Scan(&j.ID, &j.Query, &j.SessionID, &j.ConversationID, &j.ExecutionMode,
		&status, &j.Result, &j.LastError, &j.SubmittedAt, &j.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	j.Status = model.JobStatus(status)
	return &j, nil
}

func scanJobs(rows pgx.Rows) ([]*model.Job, error) {
	var jobs []*model.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}
