package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/LeventeLantos/outreach-scheduler/internal/client"
	"github.com/LeventeLantos/outreach-scheduler/internal/model"
	"github.com/LeventeLantos/outreach-scheduler/internal/publish"
	"github.com/LeventeLantos/outreach-scheduler/internal/repo"
	"github.com/LeventeLantos/outreach-scheduler/internal/service"
)

const owner = "8d0c4a52-5a3e-4c49-9c0e-3f7a1d9b2c11"

type fakePublisher struct {
	provider string
	err      error

	mu    sync.Mutex
	texts []string
}

func (f *fakePublisher) Provider() string { return f.provider }

func (f *fakePublisher) Publish(_ context.Context, text string) (*publish.Result, error) {
	f.mu.Lock()
	f.texts = append(f.texts, text)
	n := len(f.texts)
	f.mu.Unlock()

	if f.err != nil {
		return nil, f.err
	}
	id := strings.Repeat("1", n)
	return &publish.Result{
		Success:     true,
		Platform:    f.provider,
		PostID:      id,
		URL:         "https://example.test/" + id,
		PublishedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}, nil
}

func (f *fakePublisher) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.texts...)
}

// seedPlacement adds content, a connected account and a due placement.
func seedPlacement(store *repo.MemoryStore, provider, body string) string {
	contentID := store.AddContent(model.Content{OwnerID: owner, Title: "t", Body: body})
	accountID := store.AddAccount(model.ConnectedAccount{OwnerID: owner, Provider: provider, Status: model.AccountConnected})
	return store.AddPlacement(model.Placement{
		OwnerID:            owner,
		ContentID:          contentID,
		Channel:            provider,
		ConnectedAccountID: &accountID,
		ScheduledFor:       time.Now().Add(-time.Minute),
	})
}

func newPoller(store *repo.MemoryStore, batch int, publishers ...publish.Publisher) *service.Poller {
	return service.NewPoller(service.PollerDeps{
		Placements: store,
		Contents:   store,
		Accounts:   store,
		Jobs:       store,
		Publishers: publish.NewRegistry(publishers...),
		Logger:     zerolog.Nop(),
	}, batch)
}

type fakeMailer struct {
	failFor map[string]bool
	delay   time.Duration

	inFlight    atomic.Int64
	maxInFlight atomic.Int64

	mu   sync.Mutex
	sent []client.EmailMessage
}

func (f *fakeMailer) Send(_ context.Context, msg client.EmailMessage) (string, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		cur := f.maxInFlight.Load()
		if n <= cur || f.maxInFlight.CompareAndSwap(cur, n) {
			break
		}
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	f.mu.Lock()
	f.sent = append(f.sent, msg)
	count := len(f.sent)
	f.mu.Unlock()

	if f.failFor[msg.To[0]] {
		return "", errors.New("unexpected status code: 422 body=\"invalid recipient\"")
	}
	return "msg-" + strings.Repeat("x", count), nil
}

// hookMailer runs onFirst before its first send.
type hookMailer struct {
	fakeMailer
	onFirst func()
	once    sync.Once
}

func (h *hookMailer) Send(ctx context.Context, msg client.EmailMessage) (string, error) {
	h.once.Do(h.onFirst)
	return h.fakeMailer.Send(ctx, msg)
}

func (f *fakeMailer) messages() []client.EmailMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]client.EmailMessage(nil), f.sent...)
}

func campaignDeps(store *repo.MemoryStore, mailer service.EmailSender) service.CampaignDeps {
	return service.CampaignDeps{
		Campaigns:  store,
		Recipients: store,
		Deliverer:  service.NewDeliverer(mailer, store, store, "Outreach <noreply@example.test>", 0, zerolog.Nop()),
		Logger:     zerolog.Nop(),
	}
}

func dueCampaign(store *repo.MemoryStore) string {
	past := time.Now().Add(-time.Minute)
	return store.AddCampaign(model.EmailCampaign{
		OwnerID:      owner,
		Name:         "launch",
		Subject:      "Hello {{name}}",
		HTMLContent:  "<p>Hi {{name}}, this is {{email}}</p>",
		TextContent:  "Hi {{name}}",
		Status:       model.CampaignScheduled,
		ScheduledFor: &past,
	})
}

func ptr[T any](v T) *T { return &v }

// ctxStore rejects writes once ctx is done, the way a pool-backed store
// does.
type ctxStore struct {
	*repo.MemoryStore
}

func (s ctxStore) CreateJob(ctx context.Context, job *model.PublishJob) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.MemoryStore.CreateJob(ctx, job)
}

func (s ctxStore) FinishJob(ctx context.Context, id string, status model.JobStatus, errMsg *string, response json.RawMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.MemoryStore.FinishJob(ctx, id, status, errMsg, response)
}

func (s ctxStore) MarkCompleted(ctx context.Context, id string, result json.RawMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.MemoryStore.MarkCompleted(ctx, id, result)
}

func (s ctxStore) MarkFailed(ctx context.Context, id string, result json.RawMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.MemoryStore.MarkFailed(ctx, id, result)
}

func (s ctxStore) MarkRecipientSent(ctx context.Context, id, providerMessageID string, sentAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.MemoryStore.MarkRecipientSent(ctx, id, providerMessageID, sentAt)
}

func (s ctxStore) MarkRecipientFailed(ctx context.Context, id, errMsg string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.MemoryStore.MarkRecipientFailed(ctx, id, errMsg)
}

func (s ctxStore) MarkCampaignSent(ctx context.Context, id string, stats model.CampaignStatistics, sentAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.MemoryStore.MarkCampaignSent(ctx, id, stats, sentAt)
}

// cancellingPublisher cancels the sweep while its call is in flight and
// fails the way an aborted HTTP request does.
type cancellingPublisher struct {
	cancel context.CancelFunc
}

func (c *cancellingPublisher) Provider() string { return publish.ProviderTwitter }

func (c *cancellingPublisher) Publish(ctx context.Context, _ string) (*publish.Result, error) {
	c.cancel()
	<-ctx.Done()
	return nil, &publish.ProviderError{Provider: publish.ProviderTwitter, StatusCode: http.StatusBadGateway, Body: ctx.Err().Error()}
}
