package repo

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/LeventeLantos/outreach-scheduler/internal/model"
)

// MemoryStore is an in-process implementation of every repository
// interface. Claims hold the store lock, so concurrent callers never
// receive the same row.
type MemoryStore struct {
	mu sync.Mutex

	placements map[string]*model.Placement
	contents   map[string]*model.Content
	accounts   map[string]*model.ConnectedAccount
	jobs       map[string]*model.PublishJob
	jobOrder   []string

	campaigns  map[string]*model.EmailCampaign
	variants   map[string][]model.CampaignVariant
	recipients map[string]*model.EmailRecipient
	recipOrder []string
	recipTouch map[string]time.Time
	events     []model.EmailEvent

	now func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		placements: make(map[string]*model.Placement),
		contents:   make(map[string]*model.Content),
		accounts:   make(map[string]*model.ConnectedAccount),
		jobs:       make(map[string]*model.PublishJob),
		campaigns:  make(map[string]*model.EmailCampaign),
		variants:   make(map[string][]model.CampaignVariant),
		recipients: make(map[string]*model.EmailRecipient),
		recipTouch: make(map[string]time.Time),
		now:        time.Now,
	}
}

// SetClock overrides the time source used for updated_at stamps.
func (m *MemoryStore) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

func newID(id string) string {
	if id != "" {
		return id
	}
	return uuid.NewString()
}

func (m *MemoryStore) AddPlacement(p model.Placement) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	p.ID = newID(p.ID)
	if p.Status == "" {
		p.Status = model.PlacementScheduled
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = m.now()
	}
	m.placements[p.ID] = &p
	return p.ID
}

func (m *MemoryStore) AddContent(c model.Content) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	c.ID = newID(c.ID)
	m.contents[c.ID] = &c
	return c.ID
}

func (m *MemoryStore) AddAccount(a model.ConnectedAccount) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	a.ID = newID(a.ID)
	m.accounts[a.ID] = &a
	return a.ID
}

func (m *MemoryStore) AddCampaign(c model.EmailCampaign) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	c.ID = newID(c.ID)
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = m.now()
	}
	m.campaigns[c.ID] = &c
	return c.ID
}

func (m *MemoryStore) AddVariant(v model.CampaignVariant) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v.ID = newID(v.ID)
	m.variants[v.CampaignID] = append(m.variants[v.CampaignID], v)
}

func (m *MemoryStore) AddRecipient(r model.EmailRecipient) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	r.ID = newID(r.ID)
	if r.Status == "" {
		r.Status = model.RecipientQueued
	}
	m.recipients[r.ID] = &r
	m.recipOrder = append(m.recipOrder, r.ID)
	return r.ID
}

func (m *MemoryStore) Placement(id string) (model.Placement, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.placements[id]
	if !ok {
		return model.Placement{}, false
	}
	return *p, true
}

// Jobs returns every publish job in creation order.
func (m *MemoryStore) Jobs() []model.PublishJob {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.PublishJob, 0, len(m.jobOrder))
	for _, id := range m.jobOrder {
		out = append(out, *m.jobs[id])
	}
	return out
}

func (m *MemoryStore) Campaign(id string) (model.EmailCampaign, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[id]
	if !ok {
		return model.EmailCampaign{}, false
	}
	return *c, true
}

func (m *MemoryStore) Recipient(id string) (model.EmailRecipient, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.recipients[id]
	if !ok {
		return model.EmailRecipient{}, false
	}
	return *r, true
}

func (m *MemoryStore) Events(campaignID string) []model.EmailEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.EmailEvent
	for _, ev := range m.events {
		if ev.CampaignID == campaignID {
			out = append(out, ev)
		}
	}
	return out
}

// --- placements ---

func (m *MemoryStore) ClaimDue(_ context.Context, ownerID string, now time.Time, limit int) ([]model.Placement, error) {
	if limit <= 0 {
		return nil, errors.New("limit must be > 0")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var due []*model.Placement
	for _, p := range m.placements {
		if p.Status != model.PlacementScheduled || p.ScheduledFor.After(now) {
			continue
		}
		if ownerID != "" && p.OwnerID != ownerID {
			continue
		}
		due = append(due, p)
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].ScheduledFor.Equal(due[j].ScheduledFor) {
			return due[i].ID < due[j].ID
		}
		return due[i].ScheduledFor.Before(due[j].ScheduledFor)
	})
	if len(due) > limit {
		due = due[:limit]
	}

	out := make([]model.Placement, 0, len(due))
	stamp := m.now()
	for _, p := range due {
		p.Status = model.PlacementProcessing
		p.UpdatedAt = stamp
		out = append(out, *p)
	}
	return out, nil
}

func (m *MemoryStore) MarkCompleted(_ context.Context, id string, result json.RawMessage) error {
	return m.finishPlacement(id, model.PlacementCompleted, result)
}

func (m *MemoryStore) MarkFailed(_ context.Context, id string, result json.RawMessage) error {
	return m.finishPlacement(id, model.PlacementFailed, result)
}

func (m *MemoryStore) finishPlacement(id string, status model.PlacementStatus, result json.RawMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.placements[id]
	if !ok {
		return ErrNotFound
	}
	if !p.Status.CanTransitionTo(status) {
		return ErrConflict
	}
	p.Status = status
	p.PublishResult = append(json.RawMessage(nil), result...)
	p.UpdatedAt = m.now()
	return nil
}

func (m *MemoryStore) FailStale(_ context.Context, olderThan time.Time, errMsg string, result json.RawMessage) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stamp := m.now()
	reaped := make(map[string]bool)
	var ids []string
	for _, p := range m.placements {
		if p.Status == model.PlacementProcessing && p.UpdatedAt.Before(olderThan) {
			p.Status = model.PlacementFailed
			p.PublishResult = append(json.RawMessage(nil), result...)
			p.UpdatedAt = stamp
			reaped[p.ID] = true
			ids = append(ids, p.ID)
		}
	}
	for _, j := range m.jobs {
		if j.Status != model.JobQueued || j.ScheduleID == nil || !reaped[*j.ScheduleID] {
			continue
		}
		msg := errMsg
		j.Status = model.JobFailed
		j.Error = &msg
		j.Response = append(json.RawMessage(nil), result...)
		j.UpdatedAt = stamp
	}
	sort.Strings(ids)
	return ids, nil
}

func (m *MemoryStore) GetContent(_ context.Context, ownerID, id string) (*model.Content, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.contents[id]
	if !ok || c.OwnerID != ownerID {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *MemoryStore) GetAccount(_ context.Context, ownerID, id string) (*model.ConnectedAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[id]
	if !ok || a.OwnerID != ownerID {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}

// --- jobs ---

func (m *MemoryStore) CreateJob(_ context.Context, job *model.PublishJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job.ID = newID(job.ID)
	job.CreatedAt = m.now()
	job.UpdatedAt = job.CreatedAt
	cp := *job
	m.jobs[job.ID] = &cp
	m.jobOrder = append(m.jobOrder, job.ID)
	return nil
}

func (m *MemoryStore) FinishJob(_ context.Context, id string, status model.JobStatus, errMsg *string, response json.RawMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return ErrNotFound
	}
	if !j.Status.CanTransitionTo(status) {
		return ErrConflict
	}
	j.Status = status
	j.Error = errMsg
	if len(response) > 0 {
		j.Response = append(json.RawMessage(nil), response...)
	}
	j.UpdatedAt = m.now()
	return nil
}

func (m *MemoryStore) GetJob(_ context.Context, ownerID, id string) (*model.PublishJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok || j.OwnerID != ownerID {
		return nil, ErrNotFound
	}
	cp := *j
	return &cp, nil
}

func (m *MemoryStore) ListJobs(_ context.Context, ownerID string, limit, offset int) ([]model.PublishJob, error) {
	limit, offset = normalizePage(limit, offset)
	m.mu.Lock()
	defer m.mu.Unlock()

	var mine []model.PublishJob
	for i := len(m.jobOrder) - 1; i >= 0; i-- {
		j := m.jobs[m.jobOrder[i]]
		if j.OwnerID == ownerID {
			mine = append(mine, *j)
		}
	}
	if offset >= len(mine) {
		return nil, nil
	}
	end := min(offset+limit, len(mine))
	return mine[offset:end], nil
}

// --- campaigns ---

func (m *MemoryStore) ClaimDueCampaigns(_ context.Context, now time.Time, limit int) ([]model.EmailCampaign, error) {
	if limit <= 0 {
		return nil, errors.New("limit must be > 0")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var due []*model.EmailCampaign
	for _, c := range m.campaigns {
		if c.Status == model.CampaignScheduled && c.ScheduledFor != nil && !c.ScheduledFor.After(now) {
			due = append(due, c)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].ScheduledFor.Equal(*due[j].ScheduledFor) {
			return due[i].ID < due[j].ID
		}
		return due[i].ScheduledFor.Before(*due[j].ScheduledFor)
	})
	if len(due) > limit {
		due = due[:limit]
	}

	out := make([]model.EmailCampaign, 0, len(due))
	stamp := m.now()
	for _, c := range due {
		c.Status = model.CampaignSending
		c.UpdatedAt = stamp
		out = append(out, *c)
	}
	return out, nil
}

func (m *MemoryStore) GetCampaign(_ context.Context, ownerID, id string) (*model.EmailCampaign, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[id]
	if !ok || c.OwnerID != ownerID {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *MemoryStore) BeginSend(_ context.Context, ownerID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[id]
	if !ok || c.OwnerID != ownerID {
		return ErrNotFound
	}
	if c.Status != model.CampaignDraft && c.Status != model.CampaignScheduled {
		return ErrConflict
	}
	c.Status = model.CampaignSending
	c.UpdatedAt = m.now()
	return nil
}

func (m *MemoryStore) MarkCampaignSent(_ context.Context, id string, stats model.CampaignStatistics, sentAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[id]
	if !ok {
		return ErrNotFound
	}
	if c.Status != model.CampaignSending {
		return ErrConflict
	}
	c.Status = model.CampaignSent
	c.Statistics = stats
	at := sentAt
	c.SentAt = &at
	c.UpdatedAt = m.now()
	return nil
}

func (m *MemoryStore) RequeueStaleCampaigns(_ context.Context, olderThan time.Time) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var ids []string
	for _, c := range m.campaigns {
		if c.Status != model.CampaignSending || !c.UpdatedAt.Before(olderThan) {
			continue
		}
		if m.recentRecipientProgress(c.ID, olderThan) {
			continue
		}
		stamp := m.now()
		c.Status = model.CampaignScheduled
		if c.ScheduledFor == nil {
			c.ScheduledFor = &stamp
		}
		c.UpdatedAt = stamp
		ids = append(ids, c.ID)
	}
	sort.Strings(ids)
	return ids, nil
}

func (m *MemoryStore) recentRecipientProgress(campaignID string, since time.Time) bool {
	for id, at := range m.recipTouch {
		if m.recipients[id].CampaignID == campaignID && !at.Before(since) {
			return true
		}
	}
	return false
}

func (m *MemoryStore) ListVariants(_ context.Context, campaignID string) ([]model.CampaignVariant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.CampaignVariant(nil), m.variants[campaignID]...), nil
}

// --- recipients ---

func (m *MemoryStore) ListRecipients(_ context.Context, campaignID string, statuses ...model.RecipientStatus) ([]model.EmailRecipient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []model.EmailRecipient
	for _, id := range m.recipOrder {
		r := m.recipients[id]
		if r.CampaignID != campaignID {
			continue
		}
		if len(statuses) > 0 && !containsStatus(statuses, r.Status) {
			continue
		}
		out = append(out, *r)
	}
	return out, nil
}

func containsStatus(list []model.RecipientStatus, s model.RecipientStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func (m *MemoryStore) MarkRecipientSent(_ context.Context, id, providerMessageID string, sentAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.recipients[id]
	if !ok {
		return ErrNotFound
	}
	if !r.Status.CanTransitionTo(model.RecipientSent) {
		return ErrConflict
	}
	r.Status = model.RecipientSent
	r.ProviderMessageID = &providerMessageID
	at := sentAt
	r.SentAt = &at
	r.Error = nil
	m.recipTouch[id] = m.now()
	return nil
}

func (m *MemoryStore) MarkRecipientFailed(_ context.Context, id, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.recipients[id]
	if !ok {
		return ErrNotFound
	}
	if !r.Status.CanTransitionTo(model.RecipientFailed) {
		return ErrConflict
	}
	r.Status = model.RecipientFailed
	r.Error = &errMsg
	m.recipTouch[id] = m.now()
	return nil
}

func (m *MemoryStore) CountRecipients(_ context.Context, campaignID string) (map[model.RecipientStatus]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[model.RecipientStatus]int)
	for _, r := range m.recipients {
		if r.CampaignID == campaignID {
			out[r.Status]++
		}
	}
	return out, nil
}

func (m *MemoryStore) RecordEvent(_ context.Context, ev *model.EmailEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev.ID = newID(ev.ID)
	ev.CreatedAt = m.now()
	m.events = append(m.events, *ev)
	return nil
}

var (
	_ PlacementRepository = (*MemoryStore)(nil)
	_ ContentRepository   = (*MemoryStore)(nil)
	_ AccountRepository   = (*MemoryStore)(nil)
	_ JobRepository       = (*MemoryStore)(nil)
	_ CampaignRepository  = (*MemoryStore)(nil)
	_ RecipientRepository = (*MemoryStore)(nil)
	_ EventRepository     = (*MemoryStore)(nil)

	_ PlacementRepository = (*PostgresStore)(nil)
	_ ContentRepository   = (*PostgresStore)(nil)
	_ AccountRepository   = (*PostgresStore)(nil)
	_ JobRepository       = (*PostgresStore)(nil)
	_ CampaignRepository  = (*PostgresStore)(nil)
	_ RecipientRepository = (*PostgresStore)(nil)
	_ EventRepository     = (*PostgresStore)(nil)
)
