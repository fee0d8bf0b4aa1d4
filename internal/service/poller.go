package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/LeventeLantos/outreach-scheduler/internal/apperrors"
	"github.com/LeventeLantos/outreach-scheduler/internal/cache"
	"github.com/LeventeLantos/outreach-scheduler/internal/metrics"
	"github.com/LeventeLantos/outreach-scheduler/internal/model"
	"github.com/LeventeLantos/outreach-scheduler/internal/publish"
	"github.com/LeventeLantos/outreach-scheduler/internal/repo"
)

const DefaultPollBatch = 25

const (
	msgContentNotFound = "Content not found"
	msgNoAccount       = "No connected account"
	msgCancelled       = "sweep cancelled before dispatch"
)

// PublisherLookup resolves a provider name to its publisher.
type PublisherLookup interface {
	Lookup(provider string) (publish.Publisher, error)
}

type PollerDeps struct {
	Placements repo.PlacementRepository
	Contents   repo.ContentRepository
	Accounts   repo.AccountRepository
	Jobs       repo.JobRepository
	Publishers PublisherLookup
	Receipts   cache.ReceiptCache
	Logger     zerolog.Logger
}

// Poller publishes due placements. Each Sweep claims at most batchSize rows
// and creates exactly one publish job per claimed row.
type Poller struct {
	placements repo.PlacementRepository
	contents   repo.ContentRepository
	accounts   repo.AccountRepository
	jobs       repo.JobRepository
	publishers PublisherLookup
	receipts   cache.ReceiptCache
	log        zerolog.Logger

	batchSize int
	now       func() time.Time
}

func NewPoller(deps PollerDeps, batchSize int) *Poller {
	if batchSize <= 0 {
		batchSize = DefaultPollBatch
	}
	receipts := deps.Receipts
	if receipts == nil {
		receipts = cache.Noop{}
	}
	return &Poller{
		placements: deps.Placements,
		contents:   deps.Contents,
		accounts:   deps.Accounts,
		jobs:       deps.Jobs,
		publishers: deps.Publishers,
		receipts:   receipts,
		log:        deps.Logger.With().Str("component", "poller").Logger(),
		batchSize:  batchSize,
		now:        time.Now,
	}
}

type SweepSummary struct {
	Processed int           `json:"processed"`
	Successes int           `json:"successes"`
	Failures  int           `json:"failures"`
	Details   []SweepDetail `json:"details"`
}

type SweepDetail struct {
	ID      string                `json:"id"`
	Status  model.PlacementStatus `json:"status"`
	Message string                `json:"message,omitempty"`
}

// Sweep processes due placements of ownerID, or of every owner when ownerID
// is empty. Only the claim itself can fail the sweep; per-row problems end
// up in the summary.
func (p *Poller) Sweep(ctx context.Context, ownerID string) (*SweepSummary, error) {
	start := time.Now()
	defer metrics.ObserveSweep("placements", start)

	claimed, err := p.placements.ClaimDue(ctx, ownerID, p.now(), p.batchSize)
	if err != nil {
		return nil, fmt.Errorf("claim due placements: %w", err)
	}

	summary := &SweepSummary{Details: make([]SweepDetail, 0, len(claimed))}
	for _, pl := range claimed {
		var d SweepDetail
		if ctx.Err() != nil {
			d = p.failUnattempted(context.WithoutCancel(ctx), pl, nil, msgCancelled)
		} else {
			d = p.process(ctx, pl)
		}

		summary.Processed++
		if d.Status == model.PlacementCompleted {
			summary.Successes++
		} else {
			summary.Failures++
		}
		metrics.PlacementsTotal.WithLabelValues(string(d.Status)).Inc()
		summary.Details = append(summary.Details, d)
	}

	if summary.Processed > 0 {
		p.log.Info().
			Str("owner_id", ownerID).
			Int("processed", summary.Processed).
			Int("successes", summary.Successes).
			Int("failures", summary.Failures).
			Dur("took", time.Since(start)).
			Msg("placement sweep finished")
	}
	return summary, nil
}

// process drives one claimed row to a terminal status. Reads and the
// provider call honour ctx. Writes run detached, so a started row always
// ends with its job and placement in the same terminal status.
func (p *Poller) process(ctx context.Context, pl model.Placement) SweepDetail {
	log := p.log.With().Str("placement_id", pl.ID).Logger()
	bg := context.WithoutCancel(ctx)

	text, err := p.ResolveContent(ctx, pl)
	if err != nil {
		log.Warn().Err(err).Msg("content resolution failed")
		return p.failUnattempted(bg, pl, nil, apperrors.Message(err))
	}

	account, err := p.resolveAccount(ctx, pl)
	if err != nil {
		log.Warn().Err(err).Msg("account resolution failed")
		return p.failUnattempted(bg, pl, nil, apperrors.Message(err))
	}
	provider := account.Provider

	publisher, err := p.publishers.Lookup(provider)
	if err != nil {
		log.Warn().Str("provider", provider).Msg("provider not supported")
		return p.failUnattempted(bg, pl, &provider, apperrors.Message(err))
	}

	job := &model.PublishJob{
		Provider:   &provider,
		OwnerID:    pl.OwnerID,
		ScheduleID: &pl.ID,
		ContentID:  &pl.ContentID,
		Status:     model.JobQueued,
	}
	if err := p.jobs.CreateJob(bg, job); err != nil {
		log.Error().Err(err).Msg("failed to record publish job")
		msg := "failed to record publish job"
		p.finishPlacement(bg, pl.ID, model.PlacementFailed, errorResult(msg))
		return SweepDetail{ID: pl.ID, Status: model.PlacementFailed, Message: msg}
	}

	res, pubErr := publisher.Publish(ctx, text)
	if pubErr != nil {
		msg := apperrors.Message(pubErr)
		log.Warn().Str("provider", provider).Str("job_id", job.ID).Str("error", msg).Msg("publish failed")

		result := errorResult(msg)
		p.finishJob(bg, job.ID, model.JobFailed, &msg, result)
		p.finishPlacement(bg, pl.ID, model.PlacementFailed, result)
		return SweepDetail{ID: pl.ID, Status: model.PlacementFailed, Message: msg}
	}

	result, err := json.Marshal(res)
	if err != nil {
		result = nil
	}
	p.finishJob(bg, job.ID, model.JobCompleted, nil, result)
	p.finishPlacement(bg, pl.ID, model.PlacementCompleted, result)

	receipt := cache.Receipt{Provider: provider, PostID: res.PostID, URL: res.URL, PublishedAt: res.PublishedAt}
	if err := p.receipts.StoreReceipt(bg, job.ID, receipt); err != nil {
		log.Warn().Err(err).Str("job_id", job.ID).Msg("failed to cache publish receipt")
	}

	log.Info().Str("provider", provider).Str("job_id", job.ID).Str("url", res.URL).Msg("placement published")
	return SweepDetail{ID: pl.ID, Status: model.PlacementCompleted}
}

// ResolveContent returns the text to publish for pl, scoped to its owner.
// Without intervening writes it returns the same text on every call.
func (p *Poller) ResolveContent(ctx context.Context, pl model.Placement) (string, error) {
	content, err := p.contents.GetContent(ctx, pl.OwnerID, pl.ContentID)
	if errors.Is(err, repo.ErrNotFound) {
		return "", apperrors.NotFound(msgContentNotFound)
	}
	if err != nil {
		return "", apperrors.Wrap(apperrors.KindInternal, "Content lookup failed", err)
	}
	if content.Body == "" {
		return "", apperrors.NotFound(msgContentNotFound)
	}
	return content.Body, nil
}

func (p *Poller) resolveAccount(ctx context.Context, pl model.Placement) (*model.ConnectedAccount, error) {
	if pl.ConnectedAccountID == nil || *pl.ConnectedAccountID == "" {
		return nil, apperrors.NotFound(msgNoAccount)
	}
	account, err := p.accounts.GetAccount(ctx, pl.OwnerID, *pl.ConnectedAccountID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, apperrors.NotFound(msgNoAccount)
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, "Account lookup failed", err)
	}
	if account.Status == model.AccountDisconnected {
		return nil, apperrors.NotFound(msgNoAccount)
	}
	return account, nil
}

// failUnattempted records a job that never reached a provider and fails the
// placement with the same message.
func (p *Poller) failUnattempted(ctx context.Context, pl model.Placement, provider *string, msg string) SweepDetail {
	job := &model.PublishJob{
		Provider:   provider,
		OwnerID:    pl.OwnerID,
		ScheduleID: &pl.ID,
		ContentID:  &pl.ContentID,
		Status:     model.JobFailed,
		Error:      &msg,
	}
	if err := p.jobs.CreateJob(ctx, job); err != nil {
		p.log.Error().Err(err).Str("placement_id", pl.ID).Msg("failed to record failed publish job")
	}
	p.finishPlacement(ctx, pl.ID, model.PlacementFailed, errorResult(msg))
	return SweepDetail{ID: pl.ID, Status: model.PlacementFailed, Message: msg}
}

func (p *Poller) finishJob(ctx context.Context, id string, status model.JobStatus, errMsg *string, response json.RawMessage) {
	if err := p.jobs.FinishJob(ctx, id, status, errMsg, response); err != nil {
		p.log.Error().Err(err).Str("job_id", id).Str("status", string(status)).Msg("failed to finish publish job")
	}
}

func (p *Poller) finishPlacement(ctx context.Context, id string, status model.PlacementStatus, result json.RawMessage) {
	var err error
	if status == model.PlacementCompleted {
		err = p.placements.MarkCompleted(ctx, id, result)
	} else {
		err = p.placements.MarkFailed(ctx, id, result)
	}
	if err != nil {
		p.log.Error().Err(err).Str("placement_id", id).Str("status", string(status)).Msg("failed to finish placement")
	}
}

func errorResult(msg string) json.RawMessage {
	b, _ := json.Marshal(map[string]string{"error": msg})
	return b
}
