package repo

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/LeventeLantos/outreach-scheduler/internal/model"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrConflict means a guarded update matched no row because the row had
	// already left the expected status.
	ErrConflict = errors.New("row is not in the expected status")
)

type PlacementRepository interface {
	// ClaimDue atomically moves up to limit due rows from scheduled to
	// processing and returns them ordered by scheduled_for. An empty ownerID
	// claims across all owners.
	ClaimDue(ctx context.Context, ownerID string, now time.Time, limit int) ([]model.Placement, error)
	MarkCompleted(ctx context.Context, id string, result json.RawMessage) error
	MarkFailed(ctx context.Context, id string, result json.RawMessage) error
	// FailStale fails rows stuck in processing since before olderThan,
	// together with their queued publish jobs, and returns the row ids.
	FailStale(ctx context.Context, olderThan time.Time, errMsg string, result json.RawMessage) ([]string, error)
}

type ContentRepository interface {
	GetContent(ctx context.Context, ownerID, id string) (*model.Content, error)
}

type AccountRepository interface {
	GetAccount(ctx context.Context, ownerID, id string) (*model.ConnectedAccount, error)
}

type JobRepository interface {
	CreateJob(ctx context.Context, job *model.PublishJob) error
	FinishJob(ctx context.Context, id string, status model.JobStatus, errMsg *string, response json.RawMessage) error
	GetJob(ctx context.Context, ownerID, id string) (*model.PublishJob, error)
	ListJobs(ctx context.Context, ownerID string, limit, offset int) ([]model.PublishJob, error)
}

type CampaignRepository interface {
	// ClaimDueCampaigns atomically moves up to limit due campaigns from
	// scheduled to sending.
	ClaimDueCampaigns(ctx context.Context, now time.Time, limit int) ([]model.EmailCampaign, error)
	GetCampaign(ctx context.Context, ownerID, id string) (*model.EmailCampaign, error)
	// BeginSend moves an owner's draft or scheduled campaign to sending.
	BeginSend(ctx context.Context, ownerID, id string) error
	MarkCampaignSent(ctx context.Context, id string, stats model.CampaignStatistics, sentAt time.Time) error
	RequeueStaleCampaigns(ctx context.Context, olderThan time.Time) ([]string, error)
	ListVariants(ctx context.Context, campaignID string) ([]model.CampaignVariant, error)
}

type RecipientRepository interface {
	ListRecipients(ctx context.Context, campaignID string, statuses ...model.RecipientStatus) ([]model.EmailRecipient, error)
	MarkRecipientSent(ctx context.Context, id, providerMessageID string, sentAt time.Time) error
	MarkRecipientFailed(ctx context.Context, id, errMsg string) error
	CountRecipients(ctx context.Context, campaignID string) (map[model.RecipientStatus]int, error)
}

type EventRepository interface {
	RecordEvent(ctx context.Context, ev *model.EmailEvent) error
}

// Statistics derives campaign aggregates from recipient counts.
func Statistics(counts map[model.RecipientStatus]int) model.CampaignStatistics {
	sent := counts[model.RecipientSent]
	failed := counts[model.RecipientFailed]
	return model.CampaignStatistics{Sent: sent, Failed: failed, Total: sent + failed}
}

func normalizePage(limit, offset int) (int, int) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
