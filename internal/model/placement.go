package model

import (
	"encoding/json"
	"time"
)

// Placement is a request to publish a piece of content through a connected
// account at a given time (content_schedule).
type Placement struct {
	ID                 string          `json:"id"`
	OwnerID            string          `json:"user_id"`
	ContentID          string          `json:"content_id"`
	Channel            string          `json:"channel"`
	ConnectedAccountID *string         `json:"connected_account_id,omitempty"`
	ScheduledFor       time.Time       `json:"scheduled_for"`
	Status             PlacementStatus `json:"status"`
	PublishResult      json.RawMessage `json:"publish_result,omitempty"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

type Content struct {
	ID      string `json:"id"`
	OwnerID string `json:"user_id"`
	Title   string `json:"title"`
	Body    string `json:"body"`
}

type ConnectedAccount struct {
	ID          string        `json:"id"`
	OwnerID     string        `json:"user_id"`
	Provider    string        `json:"provider"`
	Status      AccountStatus `json:"status"`
	AccountName string        `json:"account_name"`
	Scopes      []string      `json:"scopes"`
}

// PublishJob is the audit record of one attempt to call a provider.
type PublishJob struct {
	ID         string          `json:"id"`
	Provider   *string         `json:"provider"`
	OwnerID    string          `json:"user_id"`
	ScheduleID *string         `json:"schedule_id,omitempty"`
	ContentID  *string         `json:"content_id,omitempty"`
	Status     JobStatus       `json:"status"`
	Error      *string         `json:"error"`
	Response   json.RawMessage `json:"response,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}
