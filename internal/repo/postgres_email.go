package repo

import (
	"context"
	"errors"
	"time"

	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v5"

	"github.com/LeventeLantos/outreach-scheduler/internal/model"
)

const campaignColumns = `id::text, user_id::text, name, subject, html_content, text_content,
	from_email, from_name, status, scheduled_for, sent_at, statistics, updated_at`

func scanCampaign(row pgx.CollectableRow) (model.EmailCampaign, error) {
	var c model.EmailCampaign
	var status string
	var stats []byte
	if err := row.Scan(
		&c.ID,
		&c.OwnerID,
		&c.Name,
		&c.Subject,
		&c.HTMLContent,
		&c.TextContent,
		&c.FromEmail,
		&c.FromName,
		&status,
		&c.ScheduledFor,
		&c.SentAt,
		&stats,
		&c.UpdatedAt,
	); err != nil {
		return c, err
	}
	c.Status = model.CampaignStatus(status)
	if len(stats) > 0 {
		if err := json.Unmarshal(stats, &c.Statistics); err != nil {
			return c, err
		}
	}
	return c, nil
}

func (s *PostgresStore) ClaimDueCampaigns(ctx context.Context, now time.Time, limit int) ([]model.EmailCampaign, error) {
	if limit <= 0 {
		return nil, errors.New("limit must be > 0")
	}

	rows, err := s.pool.Query(ctx, `
		UPDATE email_campaigns
		SET status = 'sending', updated_at = now()
		WHERE id IN (
			SELECT id
			FROM email_campaigns
			WHERE status = 'scheduled'
			  AND scheduled_for <= $1
			ORDER BY scheduled_for ASC
			FOR UPDATE SKIP LOCKED
			LIMIT $2
		)
		AND status = 'scheduled'
		RETURNING `+campaignColumns, now, limit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, scanCampaign)
}

func (s *PostgresStore) GetCampaign(ctx context.Context, ownerID, id string) (*model.EmailCampaign, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+campaignColumns+`
		FROM email_campaigns
		WHERE id = $1::uuid
		  AND user_id = $2::uuid
	`, id, ownerID)
	if err != nil {
		return nil, err
	}
	c, err := pgx.CollectExactlyOneRow(rows, scanCampaign)
	if err != nil {
		return nil, notFound(err)
	}
	return &c, nil
}

func (s *PostgresStore) BeginSend(ctx context.Context, ownerID, id string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE email_campaigns
		SET status = 'sending', updated_at = now()
		WHERE id = $1::uuid
		  AND user_id = $2::uuid
		  AND status IN ('draft', 'scheduled')
	`, id, ownerID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrConflict
	}
	return nil
}

func (s *PostgresStore) MarkCampaignSent(ctx context.Context, id string, stats model.CampaignStatistics, sentAt time.Time) error {
	b, err := json.Marshal(stats)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE email_campaigns
		SET status = 'sent',
		    statistics = $2,
		    sent_at = $3,
		    updated_at = now()
		WHERE id = $1::uuid
		  AND status = 'sending'
	`, id, string(b), sentAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrConflict
	}
	return nil
}

// RequeueStaleCampaigns returns sending campaigns with no recipient progress
// since olderThan to scheduled.
func (s *PostgresStore) RequeueStaleCampaigns(ctx context.Context, olderThan time.Time) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		UPDATE email_campaigns c
		SET status = 'scheduled',
		    scheduled_for = COALESCE(c.scheduled_for, now()),
		    updated_at = now()
		WHERE c.status = 'sending'
		  AND c.updated_at < $1
		  AND NOT EXISTS (
		      SELECT 1 FROM email_recipients r
		      WHERE r.campaign_id = c.id
		        AND r.updated_at >= $1
		  )
		RETURNING c.id::text
	`, olderThan)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func (s *PostgresStore) ListVariants(ctx context.Context, campaignID string) ([]model.CampaignVariant, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id::text, campaign_id::text, variant_key, subject, html_content, text_content
		FROM email_campaign_variants
		WHERE campaign_id = $1::uuid
	`, campaignID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.CampaignVariant, error) {
		var v model.CampaignVariant
		err := row.Scan(&v.ID, &v.CampaignID, &v.VariantKey, &v.Subject, &v.HTMLContent, &v.TextContent)
		return v, err
	})
}

func (s *PostgresStore) ListRecipients(ctx context.Context, campaignID string, statuses ...model.RecipientStatus) ([]model.EmailRecipient, error) {
	names := make([]string, len(statuses))
	for i, st := range statuses {
		names[i] = string(st)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id::text, campaign_id::text, user_id::text, email, name, status,
		       variant_key, sent_at, error, provider_message_id
		FROM email_recipients
		WHERE campaign_id = $1::uuid
		  AND (cardinality($2::text[]) = 0 OR status = ANY($2::text[]))
		ORDER BY created_at ASC, id ASC
	`, campaignID, names)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.EmailRecipient, error) {
		var r model.EmailRecipient
		var status string
		err := row.Scan(
			&r.ID,
			&r.CampaignID,
			&r.OwnerID,
			&r.Email,
			&r.Name,
			&status,
			&r.VariantKey,
			&r.SentAt,
			&r.Error,
			&r.ProviderMessageID,
		)
		r.Status = model.RecipientStatus(status)
		return r, err
	})
}

func (s *PostgresStore) MarkRecipientSent(ctx context.Context, id, providerMessageID string, sentAt time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE email_recipients
		SET status = 'sent',
		    provider_message_id = $2,
		    sent_at = $3,
		    error = NULL,
		    updated_at = now()
		WHERE id = $1::uuid
		  AND status IN ('queued', 'processing')
	`, id, providerMessageID, sentAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrConflict
	}
	return nil
}

func (s *PostgresStore) MarkRecipientFailed(ctx context.Context, id, errMsg string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE email_recipients
		SET status = 'failed',
		    error = $2,
		    updated_at = now()
		WHERE id = $1::uuid
		  AND status IN ('queued', 'processing')
	`, id, errMsg)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrConflict
	}
	return nil
}

func (s *PostgresStore) CountRecipients(ctx context.Context, campaignID string) (map[model.RecipientStatus]int, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT status, COUNT(*)
		FROM email_recipients
		WHERE campaign_id = $1::uuid
		GROUP BY status
	`, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[model.RecipientStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		out[model.RecipientStatus(status)] = n
	}
	return out, rows.Err()
}

func (s *PostgresStore) RecordEvent(ctx context.Context, ev *model.EmailEvent) error {
	return s.pool.QueryRow(ctx, `
		INSERT INTO email_events (campaign_id, recipient_id, user_id, event_type, payload)
		VALUES ($1::uuid, $2::uuid, $3::uuid, $4, $5)
		RETURNING id::text, created_at
	`,
		ev.CampaignID,
		ev.RecipientID,
		ev.OwnerID,
		string(ev.Type),
		jsonArg(ev.Payload),
	).Scan(&ev.ID, &ev.CreatedAt)
}
