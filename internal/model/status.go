package model

// PlacementStatus is the lifecycle state of a content_schedule row.
//
//	scheduled -> processing -> completed | failed
type PlacementStatus string

const (
	PlacementScheduled  PlacementStatus = "scheduled"
	PlacementProcessing PlacementStatus = "processing"
	PlacementCompleted  PlacementStatus = "completed"
	PlacementFailed     PlacementStatus = "failed"
)

func (s PlacementStatus) Valid() bool {
	switch s {
	case PlacementScheduled, PlacementProcessing, PlacementCompleted, PlacementFailed:
		return true
	}
	return false
}

func (s PlacementStatus) Terminal() bool {
	return s == PlacementCompleted || s == PlacementFailed
}

// CanTransitionTo reports whether moving from s to next is a forward step.
func (s PlacementStatus) CanTransitionTo(next PlacementStatus) bool {
	switch s {
	case PlacementScheduled:
		return next == PlacementProcessing
	case PlacementProcessing:
		return next == PlacementCompleted || next == PlacementFailed
	}
	return false
}

// JobStatus is the lifecycle state of a publish_jobs row.
type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

func (s JobStatus) Valid() bool {
	switch s {
	case JobQueued, JobCompleted, JobFailed:
		return true
	}
	return false
}

func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	return s == JobQueued && next.Terminal()
}

// AccountStatus of a connected_accounts row. Only "disconnected" blocks
// dispatch; other values written by the connect flow are accepted.
type AccountStatus string

const (
	AccountConnected    AccountStatus = "connected"
	AccountDisconnected AccountStatus = "disconnected"
)

// CampaignStatus is the lifecycle state of an email_campaigns row.
//
//	draft -> scheduled -> sending -> sent
//
// A campaign stuck in sending is returned to scheduled by the reaper.
type CampaignStatus string

const (
	CampaignDraft     CampaignStatus = "draft"
	CampaignScheduled CampaignStatus = "scheduled"
	CampaignSending   CampaignStatus = "sending"
	CampaignSent      CampaignStatus = "sent"
)

func (s CampaignStatus) Valid() bool {
	switch s {
	case CampaignDraft, CampaignScheduled, CampaignSending, CampaignSent:
		return true
	}
	return false
}

func (s CampaignStatus) CanTransitionTo(next CampaignStatus) bool {
	switch s {
	case CampaignDraft:
		return next == CampaignScheduled || next == CampaignSending
	case CampaignScheduled:
		return next == CampaignSending
	case CampaignSending:
		return next == CampaignSent || next == CampaignScheduled
	}
	return false
}

// RecipientStatus is the lifecycle state of an email_recipients row.
type RecipientStatus string

const (
	RecipientQueued     RecipientStatus = "queued"
	RecipientProcessing RecipientStatus = "processing"
	RecipientSent       RecipientStatus = "sent"
	RecipientFailed     RecipientStatus = "failed"
)

func (s RecipientStatus) Valid() bool {
	switch s {
	case RecipientQueued, RecipientProcessing, RecipientSent, RecipientFailed:
		return true
	}
	return false
}

func (s RecipientStatus) Terminal() bool {
	return s == RecipientSent || s == RecipientFailed
}

func (s RecipientStatus) CanTransitionTo(next RecipientStatus) bool {
	switch s {
	case RecipientQueued:
		return next == RecipientProcessing || next.Terminal()
	case RecipientProcessing:
		return next.Terminal()
	}
	return false
}

// EmailEventType is the kind of an email_events row.
type EmailEventType string

const (
	EmailEventSent   EmailEventType = "sent"
	EmailEventFailed EmailEventType = "failed"
)
