package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/LeventeLantos/outreach-scheduler/internal/client"
	"github.com/LeventeLantos/outreach-scheduler/internal/metrics"
	"github.com/LeventeLantos/outreach-scheduler/internal/model"
	"github.com/LeventeLantos/outreach-scheduler/internal/repo"
)

const testSubjectPrefix = "[TEST] "

type EmailSender interface {
	Send(ctx context.Context, msg client.EmailMessage) (string, error)
}

// Deliverer sends campaign emails one recipient at a time and records each
// outcome on the recipient row plus one email event.
type Deliverer struct {
	client      EmailSender
	recipients  repo.RecipientRepository
	events      repo.EventRepository
	limiter     *rate.Limiter
	defaultFrom string
	log         zerolog.Logger
	now         func() time.Time
}

// NewDeliverer paces sends at ratePerSecond; a non-positive rate disables
// pacing.
func NewDeliverer(c EmailSender, recipients repo.RecipientRepository, events repo.EventRepository, defaultFrom string, ratePerSecond float64, logger zerolog.Logger) *Deliverer {
	limit := rate.Inf
	burst := 1
	if ratePerSecond > 0 {
		limit = rate.Limit(ratePerSecond)
		burst = max(1, int(ratePerSecond))
	}
	return &Deliverer{
		client:      c,
		recipients:  recipients,
		events:      events,
		limiter:     rate.NewLimiter(limit, burst),
		defaultFrom: defaultFrom,
		log:         logger.With().Str("component", "deliverer").Logger(),
		now:         time.Now,
	}
}

// Deliver sends one campaign email to r and reports whether it went out.
// Recording errors are logged, they never change the outcome.
func (d *Deliverer) Deliver(ctx context.Context, c *model.EmailCampaign, variants map[string]model.CampaignVariant, r model.EmailRecipient) bool {
	msg := d.compose(c, variants, r)

	id, err := d.send(ctx, msg)
	if err != nil {
		d.onFailed(ctx, c, r, err)
		return false
	}
	d.onSent(ctx, c, r, id)
	return true
}

// ProcessBatch delivers to recipients in order.
func (d *Deliverer) ProcessBatch(ctx context.Context, c *model.EmailCampaign, variants map[string]model.CampaignVariant, recipients []model.EmailRecipient) (sent, failed int) {
	for _, r := range recipients {
		if d.Deliver(ctx, c, variants, r) {
			sent++
		} else {
			failed++
		}
	}
	return sent, failed
}

// SendTest sends the campaign's base content to a single address with a
// marked subject. No recipient rows or events are touched.
func (d *Deliverer) SendTest(ctx context.Context, c *model.EmailCampaign, to string) (string, error) {
	msg := d.compose(c, nil, model.EmailRecipient{Email: to})
	msg.Subject = testSubjectPrefix + msg.Subject
	return d.send(ctx, msg)
}

func (d *Deliverer) send(ctx context.Context, msg client.EmailMessage) (string, error) {
	if err := d.limiter.Wait(ctx); err != nil {
		return "", err
	}
	id, err := d.client.Send(ctx, msg)
	metrics.EmailsTotal.WithLabelValues(metrics.Outcome(err == nil)).Inc()
	return id, err
}

func (d *Deliverer) onSent(ctx context.Context, c *model.EmailCampaign, r model.EmailRecipient, messageID string) {
	if err := d.recipients.MarkRecipientSent(ctx, r.ID, messageID, d.now()); err != nil {
		d.log.Error().Err(err).Str("recipient_id", r.ID).Msg("failed to mark recipient sent")
	}
	d.record(ctx, c, r, model.EmailEventSent, map[string]string{
		"email":               r.Email,
		"provider_message_id": messageID,
	})
}

func (d *Deliverer) onFailed(ctx context.Context, c *model.EmailCampaign, r model.EmailRecipient, sendErr error) {
	d.log.Warn().Err(sendErr).Str("campaign_id", c.ID).Str("recipient_id", r.ID).Msg("email send failed")

	if err := d.recipients.MarkRecipientFailed(ctx, r.ID, sendErr.Error()); err != nil {
		d.log.Error().Err(err).Str("recipient_id", r.ID).Msg("failed to mark recipient failed")
	}
	d.record(ctx, c, r, model.EmailEventFailed, map[string]string{
		"email": r.Email,
		"error": sendErr.Error(),
	})
}

func (d *Deliverer) record(ctx context.Context, c *model.EmailCampaign, r model.EmailRecipient, typ model.EmailEventType, payload map[string]string) {
	body, _ := json.Marshal(payload)
	recipientID := r.ID
	ev := &model.EmailEvent{
		CampaignID:  c.ID,
		RecipientID: &recipientID,
		OwnerID:     c.OwnerID,
		Type:        typ,
		Payload:     body,
	}
	if err := d.events.RecordEvent(ctx, ev); err != nil {
		d.log.Error().Err(err).Str("recipient_id", r.ID).Str("event", string(typ)).Msg("failed to record email event")
	}
}

func (d *Deliverer) compose(c *model.EmailCampaign, variants map[string]model.CampaignVariant, r model.EmailRecipient) client.EmailMessage {
	subject, html, text := c.Subject, c.HTMLContent, c.TextContent
	if r.VariantKey != nil {
		if v, ok := variants[*r.VariantKey]; ok {
			if v.Subject != "" {
				subject = v.Subject
			}
			if v.HTMLContent != "" {
				html = v.HTMLContent
			}
			if v.TextContent != "" {
				text = v.TextContent
			}
		}
	}

	tags := strings.NewReplacer("{{name}}", r.Name, "{{email}}", r.Email)
	return client.EmailMessage{
		From:    d.from(c),
		To:      []string{r.Email},
		Subject: tags.Replace(subject),
		HTML:    tags.Replace(html),
		Text:    tags.Replace(text),
	}
}

func (d *Deliverer) from(c *model.EmailCampaign) string {
	if c.FromEmail == "" {
		return d.defaultFrom
	}
	if c.FromName == "" {
		return c.FromEmail
	}
	return fmt.Sprintf("%s <%s>", c.FromName, c.FromEmail)
}

// variantIndex keys a campaign's variants by variant_key.
func variantIndex(variants []model.CampaignVariant) map[string]model.CampaignVariant {
	out := make(map[string]model.CampaignVariant, len(variants))
	for _, v := range variants {
		out[v.VariantKey] = v
	}
	return out
}
