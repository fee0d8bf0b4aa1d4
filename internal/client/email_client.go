package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"
)

const DefaultEmailURL = "https://api.resend.com/emails"

// EmailClient talks to a Resend-compatible transactional email API.
type EmailClient struct {
	url    string
	apiKey string
	client *http.Client
}

func NewEmailClient(url, apiKey string, timeout time.Duration) *EmailClient {
	if url == "" {
		url = DefaultEmailURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &EmailClient{
		url:    url,
		apiKey: apiKey,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

type EmailMessage struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html,omitempty"`
	Text    string   `json:"text,omitempty"`
}

type emailResponse struct {
	ID string `json:"id"`
}

// Send returns the provider's message id.
func (c *EmailClient) Send(ctx context.Context, msg EmailMessage) (string, error) {
	if len(msg.To) == 0 {
		return "", errors.New("email has no recipients")
	}

	reqBody, err := json.Marshal(msg)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(reqBody))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var er emailResponse
	if err := json.Unmarshal(body, &er); err != nil {
		return "", fmt.Errorf("failed to decode json: %w body=%q", err, string(body))
	}
	if er.ID == "" {
		return "", fmt.Errorf("missing id in response body=%q", string(body))
	}

	return er.ID, nil
}
