package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/LeventeLantos/outreach-scheduler/internal/apperrors"
	"github.com/LeventeLantos/outreach-scheduler/internal/cache"
	"github.com/LeventeLantos/outreach-scheduler/internal/model"
	"github.com/LeventeLantos/outreach-scheduler/internal/publish"
	"github.com/LeventeLantos/outreach-scheduler/internal/repo"
)

// Jobs serves publish job history and receipts, and publishes text on
// demand with the same job bookkeeping the poller uses.
type Jobs struct {
	jobs       repo.JobRepository
	publishers PublisherLookup
	receipts   cache.ReceiptCache
	log        zerolog.Logger
}

func NewJobs(jobs repo.JobRepository, publishers PublisherLookup, receipts cache.ReceiptCache, logger zerolog.Logger) *Jobs {
	if receipts == nil {
		receipts = cache.Noop{}
	}
	return &Jobs{
		jobs:       jobs,
		publishers: publishers,
		receipts:   receipts,
		log:        logger.With().Str("component", "jobs").Logger(),
	}
}

func (j *Jobs) List(ctx context.Context, ownerID string, limit, offset int) ([]model.PublishJob, error) {
	out, err := j.jobs.ListJobs(ctx, ownerID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	if out == nil {
		out = []model.PublishJob{}
	}
	return out, nil
}

// Receipt returns the cached publish receipt of a completed job, falling
// back to the job's stored response on a cache miss.
func (j *Jobs) Receipt(ctx context.Context, ownerID, jobID string) (*cache.Receipt, error) {
	job, err := j.jobs.GetJob(ctx, ownerID, jobID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, apperrors.NotFound("Publish job not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	if job.Status != model.JobCompleted {
		return nil, apperrors.NotFound("Publish job has no receipt")
	}

	receipt, err := j.receipts.GetReceipt(ctx, jobID)
	if err == nil {
		return receipt, nil
	}
	if !errors.Is(err, cache.ErrMiss) {
		j.log.Warn().Err(err).Str("job_id", jobID).Msg("receipt cache read failed")
	}

	var res publish.Result
	if err := json.Unmarshal(job.Response, &res); err != nil {
		return nil, apperrors.NotFound("Publish job has no receipt")
	}
	provider := res.Platform
	if job.Provider != nil {
		provider = *job.Provider
	}
	return &cache.Receipt{Provider: provider, PostID: res.PostID, URL: res.URL, PublishedAt: res.PublishedAt}, nil
}

// Publish posts text through provider right away. The attempt is recorded
// as a publish job with no placement.
func (j *Jobs) Publish(ctx context.Context, ownerID, provider, text string) (*publish.Result, error) {
	if strings.TrimSpace(text) == "" {
		return nil, apperrors.Validation("text is required")
	}
	publisher, err := j.publishers.Lookup(provider)
	if err != nil {
		return nil, err
	}

	job := &model.PublishJob{Provider: &provider, OwnerID: ownerID, Status: model.JobQueued}
	if err := j.jobs.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	res, pubErr := publisher.Publish(ctx, text)
	// The job must reach a terminal status even if the caller went away.
	ctx = context.WithoutCancel(ctx)
	if pubErr != nil {
		msg := apperrors.Message(pubErr)
		if err := j.jobs.FinishJob(ctx, job.ID, model.JobFailed, &msg, errorResult(msg)); err != nil {
			j.log.Error().Err(err).Str("job_id", job.ID).Msg("failed to finish publish job")
		}
		return nil, pubErr
	}

	body, _ := json.Marshal(res)
	if err := j.jobs.FinishJob(ctx, job.ID, model.JobCompleted, nil, body); err != nil {
		j.log.Error().Err(err).Str("job_id", job.ID).Msg("failed to finish publish job")
	}
	receipt := cache.Receipt{Provider: provider, PostID: res.PostID, URL: res.URL, PublishedAt: res.PublishedAt}
	if err := j.receipts.StoreReceipt(ctx, job.ID, receipt); err != nil {
		j.log.Warn().Err(err).Str("job_id", job.ID).Msg("failed to cache publish receipt")
	}
	return res, nil
}
