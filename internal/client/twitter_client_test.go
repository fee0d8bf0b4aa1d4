package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

type staticAuth struct {
	header string
	err    error
	method string
	url    string
}

func (a *staticAuth) Authorization(method, rawURL string) (string, error) {
	a.method = method
	a.url = rawURL
	return a.header, a.err
}

func TestTwitterClient_CreateTweet_Success(t *testing.T) {
	t.Parallel()

	type gotReq struct {
		Method        string
		ContentType   string
		Authorization string
		Body          []byte
	}

	var captured gotReq

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured.Method = r.Method
		captured.ContentType = r.Header.Get("Content-Type")
		captured.Authorization = r.Header.Get("Authorization")

		b, _ := ioReadAll(r)
		captured.Body = b

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"data":{"id":"1445880548472328192","text":"Hello world"}}`))
	}))
	defer srv.Close()

	auth := &staticAuth{header: `OAuth oauth_consumer_key="k"`}
	c := NewTwitterClient(srv.URL, auth, time.Second)

	tweet, err := c.CreateTweet(context.Background(), "Hello world")
	if err != nil {
		t.Fatalf("CreateTweet() error: %v", err)
	}
	if tweet.ID != "1445880548472328192" {
		t.Fatalf("expected id %q, got %q", "1445880548472328192", tweet.ID)
	}
	if !strings.Contains(string(tweet.Raw), `"data"`) {
		t.Fatalf("expected raw body to be kept, got %q", string(tweet.Raw))
	}

	if captured.Method != http.MethodPost {
		t.Fatalf("expected method POST, got %q", captured.Method)
	}
	if captured.ContentType != "application/json" {
		t.Fatalf("expected Content-Type application/json, got %q", captured.ContentType)
	}
	if captured.Authorization != auth.header {
		t.Fatalf("expected Authorization %q, got %q", auth.header, captured.Authorization)
	}
	if auth.method != http.MethodPost || auth.url != srv.URL {
		t.Fatalf("signer called with %s %s", auth.method, auth.url)
	}

	var req tweetRequest
	if err := json.Unmarshal(captured.Body, &req); err != nil {
		t.Fatalf("failed to decode request json: %v body=%q", err, string(captured.Body))
	}
	if req.Text != "Hello world" {
		t.Fatalf("expected text %q, got %q", "Hello world", req.Text)
	}
}

func TestTwitterClient_CreateTweet_ErrorStatusPassthrough(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"detail":"You are not allowed to create a Tweet with duplicate content."}`))
	}))
	defer srv.Close()

	c := NewTwitterClient(srv.URL, &staticAuth{header: "OAuth x"}, time.Second)

	_, err := c.CreateTweet(context.Background(), "dup")
	if err == nil {
		t.Fatalf("expected error, got nil")
	}

	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("expected *StatusError, got %T", err)
	}
	if se.StatusCode != http.StatusForbidden {
		t.Fatalf("expected status 403, got %d", se.StatusCode)
	}
	if !strings.Contains(se.Body, "duplicate content") {
		t.Fatalf("expected provider body, got %q", se.Body)
	}
}

func TestTwitterClient_CreateTweet_EmptyTextNeverCallsProvider(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	c := NewTwitterClient(srv.URL, &staticAuth{header: "OAuth x"}, time.Second)

	if _, err := c.CreateTweet(context.Background(), ""); err == nil {
		t.Fatalf("expected error, got nil")
	}
	if calls.Load() != 0 {
		t.Fatalf("expected no provider call, got %d", calls.Load())
	}
}

func TestTwitterClient_CreateTweet_SignerErrorNeverCallsProvider(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	c := NewTwitterClient(srv.URL, &staticAuth{err: errors.New("boom")}, time.Second)

	_, err := c.CreateTweet(context.Background(), "hi")
	if err == nil || !strings.Contains(err.Error(), "sign request") {
		t.Fatalf("expected sign error, got %v", err)
	}
	if calls.Load() != 0 {
		t.Fatalf("expected no provider call, got %d", calls.Load())
	}
}

func TestTwitterClient_CreateTweet_MissingID(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"data":{}}`))
	}))
	defer srv.Close()

	c := NewTwitterClient(srv.URL, &staticAuth{header: "OAuth x"}, time.Second)

	_, err := c.CreateTweet(context.Background(), "hi")
	if err == nil || !strings.Contains(err.Error(), "missing data.id") {
		t.Fatalf("expected missing id error, got %v", err)
	}
}

func TestTwitterClient_CreateTweet_ContextCanceled(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	c := NewTwitterClient(srv.URL, &staticAuth{header: "OAuth x"}, time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := c.CreateTweet(ctx, "hi")
	if err == nil {
		t.Fatalf("expected error, got nil")
	}
	if !strings.Contains(strings.ToLower(err.Error()), "context") &&
		!strings.Contains(strings.ToLower(err.Error()), "deadline") {
		t.Fatalf("expected context/deadline error, got: %v", err)
	}
}

func ioReadAll(r *http.Request) ([]byte, error) {
	defer r.Body.Close()
	return io.ReadAll(r.Body)
}
