package cache

import (
	"context"
	"errors"
	"time"
)

var ErrMiss = errors.New("cache miss")

// Receipt records where a completed publish job landed.
type Receipt struct {
	Provider    string    `json:"provider"`
	PostID      string    `json:"postId"`
	URL         string    `json:"url"`
	PublishedAt time.Time `json:"publishedAt"`
}

type ReceiptCache interface {
	StoreReceipt(ctx context.Context, jobID string, r Receipt) error
	GetReceipt(ctx context.Context, jobID string) (*Receipt, error)
}

// Locker serializes background sweeps across replicas. release is nil
// when the lock was not acquired.
type Locker interface {
	TryLock(ctx context.Context, name string, ttl time.Duration) (release func(context.Context) error, ok bool, err error)
}

// Noop is used when Redis is not configured: receipts are dropped and every
// lock is granted.
type Noop struct{}

func (Noop) StoreReceipt(context.Context, string, Receipt) error { return nil }

func (Noop) GetReceipt(context.Context, string) (*Receipt, error) { return nil, ErrMiss }

func (Noop) TryLock(context.Context, string, time.Duration) (func(context.Context) error, bool, error) {
	return func(context.Context) error { return nil }, true, nil
}
