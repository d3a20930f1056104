package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"invest-research-backend/internal/domain"
	"invest-research-backend/internal/domain/model"
	"invest-research-backend/internal/domain/ports/repository"
)

var _ repository.AnalysisJobRepository = (*analysisJobRepo)(nil)

type analysisJobRepo struct {
	pool *pgxpool.Pool
	tm   repository.TransactionManager
}

func NewAnalysisJobRepo(pool *pgxpool.Pool, tm repository.TransactionManager) *analysisJobRepo {
	return &analysisJobRepo{pool: pool, tm: tm}
}

func (r *analysisJobRepo) Save(ctx context.Context, qx repository.Tx, job *model.AnalysisJob) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}
	job.UpdatedAt = time.Now()

	const q = `
INSERT INTO analysis_jobs (id, status, user_id, subject_type, subject_id, prompt, result, last_error, retries, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
ON CONFLICT (id) DO UPDATE SET
  status = EXCLUDED.status,
  result = EXCLUDED.result,
  last_error = EXCLUDED.last_error,
  retries = EXCLUDED.retries,
  updated_at = EXCLUDED.updated_at;`

	_, err := execSQL(ctx, r.pool, qx, q,
		job.ID, string(job.Status), job.UserID, string(job.SubjectType), job.SubjectID,
		job.Prompt, job.Result, job.LastError, job.Retries, job.CreatedAt, job.UpdatedAt)
	return err
}

func (r *analysisJobRepo) FindByID(ctx context.Context, qx repository.Tx, id string) (*model.AnalysisJob, error) {
	const q = `
SELECT id, status, user_id, subject_type, subject_id, prompt, result, last_error, retries, created_at, updated_at
  FROM analysis_jobs WHERE id = $1;`
	row, err := pickRow(ctx, r.pool, qx, q, id)
	if err != nil {
		return nil, err
	}
	return scanAnalysisJob(row)
}

func (r *analysisJobRepo) FetchAndMarkProcessing(ctx context.Context) (*model.AnalysisJob, error) {
	var job *model.AnalysisJob

	err := r.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		const fetchQuery = `
SELECT id, status, user_id, subject_type, subject_id, prompt, result, last_error, retries, created_at, updated_at
  FROM analysis_jobs
 WHERE status = 'pending'
 ORDER BY created_at
 LIMIT 1
 FOR UPDATE SKIP LOCKED;`

		row, err := pickRow(ctx, r.pool, tx, fetchQuery)
		if err != nil {
			return err
		}
		fetched, err := scanAnalysisJob(row)
		if err != nil {
			return err
		}

		// Mark the job as processing so no other worker picks it up.
		fetched.Status = model.AnalysisJobStatusProcessing
		if err := r.Save(ctx, tx, fetched); err != nil {
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

func scanAnalysisJob(row pgx.Row) (*model.AnalysisJob, error) {
	var (
		j           model.AnalysisJob
		status      string
		subjectType string
	)
	err := row.Scan(&j.ID, &status, &j.UserID, &subjectType, &j.SubjectID,
		&j.Prompt, &j.Result, &j.LastError, &j.Retries, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	j.Status = model.AnalysisJobStatus(status)
	j.SubjectType = model.SessionType(subjectType)
	return &j, nil
}
