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

const DefaultTwitterURL = "https://api.twitter.com/2/tweets"

// Authorizer produces an Authorization header value for one request.
type Authorizer interface {
	Authorization(method, rawURL string) (string, error)
}

type TwitterClient struct {
	url    string
	auth   Authorizer
	client *http.Client
}

func NewTwitterClient(url string, auth Authorizer, timeout time.Duration) *TwitterClient {
	if url == "" {
		url = DefaultTwitterURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &TwitterClient{
		url:  url,
		auth: auth,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

type tweetRequest struct {
	Text string `json:"text"`
}

type tweetResponse struct {
	Data struct {
		ID   string `json:"id"`
		Text string `json:"text"`
	} `json:"data"`
}

// Tweet is a created post plus the raw provider body.
type Tweet struct {
	ID  string
	Raw []byte
}

func (c *TwitterClient) CreateTweet(ctx context.Context, text string) (*Tweet, error) {
	if text == "" {
		return nil, errors.New("tweet text must not be empty")
	}

	reqBody, err := json.Marshal(tweetRequest{Text: text})
	if err != nil {
		return nil, err
	}

	authHeader, err := c.auth.Authorization(http.MethodPost, c.url)
	if err != nil {
		return nil, fmt.Errorf("sign request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(reqBody))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", authHeader)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var tr tweetResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return nil, fmt.Errorf("failed to decode json: %w body=%q", err, string(body))
	}
	if tr.Data.ID == "" {
		return nil, fmt.Errorf("missing data.id in response body=%q", string(body))
	}

	return &Tweet{ID: tr.Data.ID, Raw: body}, nil
}
