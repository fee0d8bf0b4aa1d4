package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/LeventeLantos/outreach-scheduler/internal/metrics"
	"github.com/LeventeLantos/outreach-scheduler/internal/repo"
)

const (
	DefaultStaleAfter = 15 * time.Minute
	msgTimedOut       = "processing timed out"
)

// Reaper recovers rows left in an in-flight status by a crashed or
// cancelled worker. Placements are failed; campaigns go back to scheduled.
type Reaper struct {
	placements repo.PlacementRepository
	campaigns  repo.CampaignRepository
	staleAfter time.Duration
	log        zerolog.Logger
	now        func() time.Time
}

func NewReaper(placements repo.PlacementRepository, campaigns repo.CampaignRepository, staleAfter time.Duration, logger zerolog.Logger) *Reaper {
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	return &Reaper{
		placements: placements,
		campaigns:  campaigns,
		staleAfter: staleAfter,
		log:        logger.With().Str("component", "reaper").Logger(),
		now:        time.Now,
	}
}

type ReapSummary struct {
	PlacementsFailed  []string `json:"placements_failed"`
	CampaignsRequeued []string `json:"campaigns_requeued"`
}

func (r *Reaper) Reap(ctx context.Context) (*ReapSummary, error) {
	defer metrics.ObserveSweep("reaper", time.Now())
	cutoff := r.now().Add(-r.staleAfter)

	failed, err := r.placements.FailStale(ctx, cutoff, msgTimedOut, errorResult(msgTimedOut))
	if err != nil {
		return nil, fmt.Errorf("fail stale placements: %w", err)
	}
	requeued, err := r.campaigns.RequeueStaleCampaigns(ctx, cutoff)
	if err != nil {
		return nil, fmt.Errorf("requeue stale campaigns: %w", err)
	}

	metrics.ReapedTotal.WithLabelValues("content_schedule").Add(float64(len(failed)))
	metrics.ReapedTotal.WithLabelValues("email_campaigns").Add(float64(len(requeued)))
	if len(failed) > 0 || len(requeued) > 0 {
		r.log.Warn().
			Strs("placements", failed).
			Strs("campaigns", requeued).
			Time("cutoff", cutoff).
			Msg("reaped stale rows")
	}
	return &ReapSummary{PlacementsFailed: failed, CampaignsRequeued: requeued}, nil
}
