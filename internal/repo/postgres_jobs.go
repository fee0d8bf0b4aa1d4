package repo

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"

	"github.com/LeventeLantos/outreach-scheduler/internal/model"
)

const jobColumns = `id::text, provider, user_id::text, schedule_id::text, content_id::text,
	status, error, response, created_at, updated_at`

func (s *PostgresStore) CreateJob(ctx context.Context, job *model.PublishJob) error {
	return s.pool.QueryRow(ctx, `
		INSERT INTO publish_jobs (provider, user_id, schedule_id, content_id, status, error, response)
		VALUES ($1, $2::uuid, $3::uuid, $4::uuid, $5, $6, $7)
		RETURNING id::text, created_at, updated_at
	`,
		job.Provider,
		job.OwnerID,
		job.ScheduleID,
		job.ContentID,
		string(job.Status),
		job.Error,
		jsonArg(job.Response),
	).Scan(&job.ID, &job.CreatedAt, &job.UpdatedAt)
}

// FinishJob moves a queued job to its terminal status. A job is updated at
// most once.
func (s *PostgresStore) FinishJob(ctx context.Context, id string, status model.JobStatus, errMsg *string, response json.RawMessage) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE publish_jobs
		SET status = $2,
		    error = $3,
		    response = COALESCE($4::jsonb, response),
		    updated_at = now()
		WHERE id = $1::uuid
		  AND status = 'queued'
	`, id, string(status), errMsg, jsonArg(response))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrConflict
	}
	return nil
}

func (s *PostgresStore) GetJob(ctx context.Context, ownerID, id string) (*model.PublishJob, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+jobColumns+`
		FROM publish_jobs
		WHERE id = $1::uuid
		  AND user_id = $2::uuid
	`, id, ownerID)
	if err != nil {
		return nil, err
	}
	job, err := pgx.CollectExactlyOneRow(rows, scanJob)
	if err != nil {
		return nil, notFound(err)
	}
	return &job, nil
}

func (s *PostgresStore) ListJobs(ctx context.Context, ownerID string, limit, offset int) ([]model.PublishJob, error) {
	limit, offset = normalizePage(limit, offset)

	rows, err := s.pool.Query(ctx, `
		SELECT `+jobColumns+`
		FROM publish_jobs
		WHERE user_id = $1::uuid
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, ownerID, limit, offset)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, scanJob)
}

func scanJob(row pgx.CollectableRow) (model.PublishJob, error) {
	var j model.PublishJob
	var status string
	var response []byte
	err := row.Scan(
		&j.ID,
		&j.Provider,
		&j.OwnerID,
		&j.ScheduleID,
		&j.ContentID,
		&status,
		&j.Error,
		&response,
		&j.CreatedAt,
		&j.UpdatedAt,
	)
	j.Status = model.JobStatus(status)
	j.Response = response
	return j, err
}
