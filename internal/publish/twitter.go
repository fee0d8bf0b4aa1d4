package publish

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/LeventeLantos/outreach-scheduler/internal/apperrors"
	"github.com/LeventeLantos/outreach-scheduler/internal/client"
)

const twitterStatusURL = "https://twitter.com/i/web/status/"

type tweetCreator interface {
	CreateTweet(ctx context.Context, text string) (*client.Tweet, error)
}

type Twitter struct {
	client tweetCreator
	now    func() time.Time
}

func NewTwitter(c tweetCreator) *Twitter {
	return &Twitter{client: c, now: time.Now}
}

func (t *Twitter) Provider() string {
	return ProviderTwitter
}

func (t *Twitter) Publish(ctx context.Context, text string) (*Result, error) {
	if text == "" {
		return nil, apperrors.Validation("text is required")
	}

	tweet, err := t.client.CreateTweet(ctx, text)
	if err != nil {
		var se *client.StatusError
		if errors.As(err, &se) {
			return nil, &ProviderError{Provider: ProviderTwitter, StatusCode: se.StatusCode, Body: se.Body}
		}
		return nil, &ProviderError{Provider: ProviderTwitter, StatusCode: http.StatusBadGateway, Body: err.Error()}
	}

	return &Result{
		Success:     true,
		Platform:    ProviderTwitter,
		PostID:      tweet.ID,
		URL:         twitterStatusURL + tweet.ID,
		Response:    tweet.Raw,
		PublishedAt: t.now().UTC(),
	}, nil
}
