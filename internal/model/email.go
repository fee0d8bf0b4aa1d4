package model

import (
	"encoding/json"
	"time"
)

type EmailCampaign struct {
	ID           string             `json:"id"`
	OwnerID      string             `json:"user_id"`
	Name         string             `json:"name"`
	Subject      string             `json:"subject"`
	HTMLContent  string             `json:"html_content"`
	TextContent  string             `json:"text_content"`
	FromEmail    string             `json:"from_email,omitempty"`
	FromName     string             `json:"from_name,omitempty"`
	Status       CampaignStatus     `json:"status"`
	ScheduledFor *time.Time         `json:"scheduled_for,omitempty"`
	SentAt       *time.Time         `json:"sent_at,omitempty"`
	Statistics   CampaignStatistics `json:"statistics"`
	UpdatedAt    time.Time          `json:"updated_at"`
}

// CampaignStatistics is the aggregate stored on the campaign once all of its
// recipients have been attempted. Total is Sent + Failed.
type CampaignStatistics struct {
	Sent   int `json:"sent"`
	Failed int `json:"failed"`
	Total  int `json:"total"`
}

// CampaignVariant overrides campaign content for recipients whose
// variant_key matches. Empty fields do not override.
type CampaignVariant struct {
	ID          string `json:"id"`
	CampaignID  string `json:"campaign_id"`
	VariantKey  string `json:"variant_key"`
	Subject     string `json:"subject,omitempty"`
	HTMLContent string `json:"html_content,omitempty"`
	TextContent string `json:"text_content,omitempty"`
}

type EmailRecipient struct {
	ID                string          `json:"id"`
	CampaignID        string          `json:"campaign_id"`
	OwnerID           string          `json:"user_id"`
	Email             string          `json:"email"`
	Name              string          `json:"name"`
	Status            RecipientStatus `json:"status"`
	VariantKey        *string         `json:"variant_key,omitempty"`
	SentAt            *time.Time      `json:"sent_at,omitempty"`
	Error             *string         `json:"error,omitempty"`
	ProviderMessageID *string         `json:"provider_message_id,omitempty"`
}

type EmailEvent struct {
	ID          string          `json:"id"`
	CampaignID  string          `json:"campaign_id"`
	RecipientID *string         `json:"recipient_id,omitempty"`
	OwnerID     string          `json:"user_id"`
	Type        EmailEventType  `json:"event_type"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}
