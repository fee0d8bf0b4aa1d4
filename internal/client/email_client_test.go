package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestEmailClient_Send_Success(t *testing.T) {
	t.Parallel()

	var (
		gotAuth string
		gotMsg  EmailMessage
	)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		b, _ := ioReadAll(r)
		_ = json.Unmarshal(b, &gotMsg)

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"id":"49a3999c-0ce1-4ea6-ab68-afcd6dc2e794"}`))
	}))
	defer srv.Close()

	c := NewEmailClient(srv.URL, "re_test", time.Second)

	id, err := c.Send(context.Background(), EmailMessage{
		From:    "News <news@example.com>",
		To:      []string{"ada@example.com"},
		Subject: "Hi",
		HTML:    "<p>Hi</p>",
		Text:    "Hi",
	})
	if err != nil {
		t.Fatalf("Send() error: %v", err)
	}
	if id != "49a3999c-0ce1-4ea6-ab68-afcd6dc2e794" {
		t.Fatalf("unexpected id %q", id)
	}
	if gotAuth != "Bearer re_test" {
		t.Fatalf("expected bearer auth, got %q", gotAuth)
	}
	if len(gotMsg.To) != 1 || gotMsg.To[0] != "ada@example.com" {
		t.Fatalf("unexpected to: %v", gotMsg.To)
	}
	if gotMsg.Subject != "Hi" || gotMsg.HTML != "<p>Hi</p>" || gotMsg.Text != "Hi" {
		t.Fatalf("unexpected message: %+v", gotMsg)
	}
}

func TestEmailClient_Send_ProviderError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"message":"Invalid to field"}`))
	}))
	defer srv.Close()

	c := NewEmailClient(srv.URL, "re_test", time.Second)

	_, err := c.Send(context.Background(), EmailMessage{To: []string{"bad"}, Subject: "x"})

	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("expected *StatusError, got %v", err)
	}
	if se.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", se.StatusCode)
	}
	if !strings.Contains(err.Error(), "Invalid to field") {
		t.Fatalf("expected body in error, got %v", err)
	}
}

func TestEmailClient_Send_NoRecipients(t *testing.T) {
	t.Parallel()

	c := NewEmailClient("http://127.0.0.1:1", "re_test", time.Second)

	if _, err := c.Send(context.Background(), EmailMessage{Subject: "x"}); err == nil {
		t.Fatalf("expected error, got nil")
	}
}

func TestEmailClient_Send_InvalidJSON(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("THIS IS NOT JSON"))
	}))
	defer srv.Close()

	c := NewEmailClient(srv.URL, "re_test", time.Second)

	_, err := c.Send(context.Background(), EmailMessage{To: []string{"a@b.c"}})
	if err == nil || !strings.Contains(err.Error(), "failed to decode json") {
		t.Fatalf("expected decode error, got %v", err)
	}
}
