// Package publish turns post text into a provider API call and normalizes
// the outcome. Callers only see Publisher, so new providers plug in through
// the Registry without changes to the poller.
package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

const ProviderTwitter = "twitter"

type Publisher interface {
	Provider() string
	Publish(ctx context.Context, text string) (*Result, error)
}

// Result is the normalized success shape of a publish call.
type Result struct {
	Success     bool            `json:"success"`
	Platform    string          `json:"platform"`
	PostID      string          `json:"postId"`
	URL         string          `json:"url"`
	Response    json.RawMessage `json:"response,omitempty"`
	PublishedAt time.Time       `json:"publishedAt"`
}

// ProviderError is a failed provider call. StatusCode is passed through to
// API callers and Body is the provider's error text, verbatim.
type ProviderError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *ProviderError) Error() string {
	if e.Body != "" {
		return e.Body
	}
	return fmt.Sprintf("%s returned status %d", e.Provider, e.StatusCode)
}
