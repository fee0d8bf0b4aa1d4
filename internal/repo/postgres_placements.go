package repo

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/LeventeLantos/outreach-scheduler/internal/model"
)

func (s *PostgresStore) ClaimDue(ctx context.Context, ownerID string, now time.Time, limit int) ([]model.Placement, error) {
	if limit <= 0 {
		return nil, errors.New("limit must be > 0")
	}

	args := []any{now, limit}
	ownerFilter := ""
	if ownerID != "" {
		ownerFilter = "AND user_id = $3::uuid"
		args = append(args, ownerID)
	}

	rows, err := s.pool.Query(ctx, `
		UPDATE content_schedule
		SET status = 'processing', updated_at = now()
		WHERE id IN (
			SELECT id
			FROM content_schedule
			WHERE status = 'scheduled'
			  AND scheduled_for <= $1
			  `+ownerFilter+`
			ORDER BY scheduled_for ASC
			FOR UPDATE SKIP LOCKED
			LIMIT $2
		)
		AND status = 'scheduled'
		RETURNING id::text, user_id::text, content_id::text, channel,
		          connected_account_id::text, scheduled_for, status, updated_at
	`, args...)
	if err != nil {
		return nil, err
	}

	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Placement, error) {
		var p model.Placement
		var status string
		err := row.Scan(
			&p.ID,
			&p.OwnerID,
			&p.ContentID,
			&p.Channel,
			&p.ConnectedAccountID,
			&p.ScheduledFor,
			&status,
			&p.UpdatedAt,
		)
		p.Status = model.PlacementStatus(status)
		return p, err
	})
	if err != nil {
		return nil, err
	}

	// RETURNING does not preserve the subquery order.
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ScheduledFor.Before(out[j].ScheduledFor)
	})
	return out, nil
}

func (s *PostgresStore) MarkCompleted(ctx context.Context, id string, result json.RawMessage) error {
	return s.finishPlacement(ctx, id, model.PlacementCompleted, result)
}

func (s *PostgresStore) MarkFailed(ctx context.Context, id string, result json.RawMessage) error {
	return s.finishPlacement(ctx, id, model.PlacementFailed, result)
}

func (s *PostgresStore) finishPlacement(ctx context.Context, id string, status model.PlacementStatus, result json.RawMessage) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE content_schedule
		SET status = $2,
		    publish_result = $3,
		    updated_at = now()
		WHERE id = $1::uuid
		  AND status = 'processing'
	`, id, string(status), jsonArg(result))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrConflict
	}
	return nil
}

func (s *PostgresStore) FailStale(ctx context.Context, olderThan time.Time, errMsg string, result json.RawMessage) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		WITH reaped AS (
			UPDATE content_schedule
			SET status = 'failed',
			    publish_result = $2,
			    updated_at = now()
			WHERE status = 'processing'
			  AND updated_at < $1
			RETURNING id
		), jobs AS (
			UPDATE publish_jobs
			SET status = 'failed',
			    error = $3,
			    response = $2,
			    updated_at = now()
			WHERE status = 'queued'
			  AND schedule_id IN (SELECT id FROM reaped)
		)
		SELECT id::text FROM reaped ORDER BY id
	`, olderThan, jsonArg(result), errMsg)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func (s *PostgresStore) GetContent(ctx context.Context, ownerID, id string) (*model.Content, error) {
	var c model.Content
	err := s.pool.QueryRow(ctx, `
		SELECT id::text, user_id::text, title, COALESCE(body, '')
		FROM content_items
		WHERE id = $1::uuid
		  AND user_id = $2::uuid
	`, id, ownerID).Scan(&c.ID, &c.OwnerID, &c.Title, &c.Body)
	if err != nil {
		return nil, notFound(err)
	}
	return &c, nil
}

func (s *PostgresStore) GetAccount(ctx context.Context, ownerID, id string) (*model.ConnectedAccount, error) {
	var a model.ConnectedAccount
	var status string
	err := s.pool.QueryRow(ctx, `
		SELECT id::text, user_id::text, provider, status, account_name, scopes
		FROM connected_accounts
		WHERE id = $1::uuid
		  AND user_id = $2::uuid
	`, id, ownerID).Scan(&a.ID, &a.OwnerID, &a.Provider, &status, &a.AccountName, &a.Scopes)
	if err != nil {
		return nil, notFound(err)
	}
	a.Status = model.AccountStatus(status)
	return &a, nil
}
