package service

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/LeventeLantos/outreach-scheduler/internal/apperrors"
	"github.com/LeventeLantos/outreach-scheduler/internal/metrics"
	"github.com/LeventeLantos/outreach-scheduler/internal/model"
	"github.com/LeventeLantos/outreach-scheduler/internal/repo"
)

const (
	DefaultCampaignBatch = 5
	DefaultSendBatch     = 50
)

type CampaignDeps struct {
	Campaigns  repo.CampaignRepository
	Recipients repo.RecipientRepository
	Deliverer  *Deliverer
	Logger     zerolog.Logger
}

// CampaignSweeper sends scheduled campaigns whose time has come.
type CampaignSweeper struct {
	campaigns  repo.CampaignRepository
	recipients repo.RecipientRepository
	deliverer  *Deliverer
	log        zerolog.Logger
	batchSize  int
	now        func() time.Time
}

func NewCampaignSweeper(deps CampaignDeps, batchSize int) *CampaignSweeper {
	if batchSize <= 0 {
		batchSize = DefaultCampaignBatch
	}
	return &CampaignSweeper{
		campaigns:  deps.Campaigns,
		recipients: deps.Recipients,
		deliverer:  deps.Deliverer,
		log:        deps.Logger.With().Str("component", "campaign_sweeper").Logger(),
		batchSize:  batchSize,
		now:        time.Now,
	}
}

type CampaignSweepSummary struct {
	CampaignsProcessed int              `json:"campaigns_processed"`
	EmailsSent         int              `json:"emails_sent"`
	EmailsFailed       int              `json:"emails_failed"`
	Details            []CampaignDetail `json:"details"`
}

type CampaignDetail struct {
	CampaignID string `json:"campaign_id"`
	Sent       int    `json:"sent"`
	Failed     int    `json:"failed"`
	Total      int    `json:"total"`
}

// Sweep sends up to batchSize due campaigns, one recipient at a time.
// Campaigns are claimed one by one so a claim is never older than the send
// it guards. Once claimed, a campaign is sent to completion even if ctx is
// cancelled; cancellation stops further claims.
func (s *CampaignSweeper) Sweep(ctx context.Context) (*CampaignSweepSummary, error) {
	start := time.Now()
	defer metrics.ObserveSweep("campaigns", start)

	summary := &CampaignSweepSummary{Details: make([]CampaignDetail, 0, s.batchSize)}
	for i := range s.batchSize {
		if ctx.Err() != nil {
			break
		}
		claimed, err := s.campaigns.ClaimDueCampaigns(ctx, s.now(), 1)
		if err != nil {
			if i > 0 {
				s.log.Error().Err(err).Msg("claim due campaign failed")
				break
			}
			return nil, fmt.Errorf("claim due campaigns: %w", err)
		}
		if len(claimed) == 0 {
			break
		}

		c := &claimed[0]
		detail, err := s.sendCampaign(context.WithoutCancel(ctx), c)
		if err != nil {
			// The campaign stays in sending and is picked up by the reaper.
			s.log.Error().Err(err).Str("campaign_id", c.ID).Msg("campaign sweep failed")
			continue
		}
		summary.CampaignsProcessed++
		summary.EmailsSent += detail.Sent
		summary.EmailsFailed += detail.Failed
		summary.Details = append(summary.Details, detail)
	}

	if summary.CampaignsProcessed > 0 {
		s.log.Info().
			Int("campaigns", summary.CampaignsProcessed).
			Int("sent", summary.EmailsSent).
			Int("failed", summary.EmailsFailed).
			Dur("took", time.Since(start)).
			Msg("campaign sweep finished")
	}
	return summary, nil
}

func (s *CampaignSweeper) sendCampaign(ctx context.Context, c *model.EmailCampaign) (CampaignDetail, error) {
	detail := CampaignDetail{CampaignID: c.ID}

	recipients, err := s.recipients.ListRecipients(ctx, c.ID, model.RecipientQueued, model.RecipientProcessing)
	if err != nil {
		return detail, fmt.Errorf("list recipients: %w", err)
	}

	if len(recipients) > 0 {
		variants, err := s.campaigns.ListVariants(ctx, c.ID)
		if err != nil {
			return detail, fmt.Errorf("list variants: %w", err)
		}
		detail.Sent, detail.Failed = s.deliverer.ProcessBatch(ctx, c, variantIndex(variants), recipients)
		detail.Total = detail.Sent + detail.Failed
	}

	if err := finishCampaign(ctx, s.campaigns, s.recipients, c.ID, s.now()); err != nil {
		return detail, err
	}
	return detail, nil
}

// CampaignSender sends a single campaign on request, in parallel batches.
type CampaignSender struct {
	campaigns  repo.CampaignRepository
	recipients repo.RecipientRepository
	deliverer  *Deliverer
	log        zerolog.Logger
	batchSize  int
	now        func() time.Time
}

func NewCampaignSender(deps CampaignDeps, batchSize int) *CampaignSender {
	if batchSize <= 0 {
		batchSize = DefaultSendBatch
	}
	return &CampaignSender{
		campaigns:  deps.Campaigns,
		recipients: deps.Recipients,
		deliverer:  deps.Deliverer,
		log:        deps.Logger.With().Str("component", "campaign_sender").Logger(),
		batchSize:  batchSize,
		now:        time.Now,
	}
}

type SendSummary struct {
	CampaignID string `json:"campaign_id"`
	Test       bool   `json:"test,omitempty"`
	MessageID  string `json:"message_id,omitempty"`
	Sent       int    `json:"sent"`
	Failed     int    `json:"failed"`
	Total      int    `json:"total"`
}

// Send delivers campaignID to its queued recipients. With a non-empty
// testEmail only one marked message goes to that address and the campaign
// is left untouched. Once started, a send runs to completion even if ctx is
// cancelled.
func (s *CampaignSender) Send(ctx context.Context, ownerID, campaignID, testEmail string) (*SendSummary, error) {
	c, err := s.campaigns.GetCampaign(ctx, ownerID, campaignID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, apperrors.NotFound("Campaign not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get campaign: %w", err)
	}

	if testEmail != "" {
		id, err := s.deliverer.SendTest(ctx, c, testEmail)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.KindProvider, "Test email failed", err)
		}
		return &SendSummary{CampaignID: c.ID, Test: true, MessageID: id, Sent: 1, Total: 1}, nil
	}

	switch err := s.campaigns.BeginSend(ctx, ownerID, campaignID); {
	case errors.Is(err, repo.ErrConflict):
		return nil, apperrors.Conflict("Campaign is already sending or sent")
	case errors.Is(err, repo.ErrNotFound):
		return nil, apperrors.NotFound("Campaign not found")
	case err != nil:
		return nil, fmt.Errorf("begin send: %w", err)
	}

	ctx = context.WithoutCancel(ctx)

	recipients, err := s.recipients.ListRecipients(ctx, c.ID, model.RecipientQueued)
	if err != nil {
		return nil, fmt.Errorf("list recipients: %w", err)
	}
	variants, err := s.campaigns.ListVariants(ctx, c.ID)
	if err != nil {
		return nil, fmt.Errorf("list variants: %w", err)
	}
	index := variantIndex(variants)

	var sent, failed atomic.Int64
	for startIdx := 0; startIdx < len(recipients); startIdx += s.batchSize {
		batch := recipients[startIdx:min(startIdx+s.batchSize, len(recipients))]

		var g errgroup.Group
		for _, r := range batch {
			g.Go(func() error {
				if s.deliverer.Deliver(ctx, c, index, r) {
					sent.Add(1)
				} else {
					failed.Add(1)
				}
				return nil
			})
		}
		_ = g.Wait()

		s.log.Debug().
			Str("campaign_id", c.ID).
			Int("batch_start", startIdx).
			Int("batch_size", len(batch)).
			Msg("campaign batch sent")
	}

	if err := finishCampaign(ctx, s.campaigns, s.recipients, c.ID, s.now()); err != nil {
		return nil, err
	}

	out := &SendSummary{CampaignID: c.ID, Sent: int(sent.Load()), Failed: int(failed.Load())}
	out.Total = out.Sent + out.Failed
	s.log.Info().
		Str("campaign_id", c.ID).
		Int("sent", out.Sent).
		Int("failed", out.Failed).
		Msg("campaign sent")
	return out, nil
}

// finishCampaign stores statistics derived from the recipient rows and marks
// the campaign sent.
func finishCampaign(ctx context.Context, campaigns repo.CampaignRepository, recipients repo.RecipientRepository, id string, at time.Time) error {
	counts, err := recipients.CountRecipients(ctx, id)
	if err != nil {
		return fmt.Errorf("count recipients: %w", err)
	}
	if err := campaigns.MarkCampaignSent(ctx, id, repo.Statistics(counts), at); err != nil {
		return fmt.Errorf("mark campaign sent: %w", err)
	}
	return nil
}
