// Package scheduler runs sweep functions on a fixed interval in the
// background.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

type TickFunc func(ctx context.Context) error

type Scheduler struct {
	name     string
	interval time.Duration
	tickFn   TickFunc
	log      zerolog.Logger

	running atomic.Bool

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	statMu    sync.Mutex
	lastRunAt time.Time
	lastErr   error
}

// Status is a point-in-time snapshot for the status endpoint.
type Status struct {
	Name      string     `json:"name"`
	Running   bool       `json:"running"`
	Interval  string     `json:"interval"`
	LastRunAt *time.Time `json:"last_run_at,omitempty"`
	LastError string     `json:"last_error,omitempty"`
}

func New(name string, interval time.Duration, tickFn TickFunc, logger zerolog.Logger) (*Scheduler, error) {
	if interval <= 0 {
		return nil, errors.New("interval must be > 0")
	}
	if tickFn == nil {
		return nil, errors.New("tickFn must not be nil")
	}
	return &Scheduler{
		name:     name,
		interval: interval,
		tickFn:   tickFn,
		log:      logger.With().Str("component", "scheduler").Str("scheduler", name).Logger(),
		done:     make(chan struct{}),
	}, nil
}

// Start launches the loop and ticks once immediately. It returns false if
// the scheduler is already running.
func (s *Scheduler) Start() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running.Load() {
		return false
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running.Store(true)

	go func() {
		defer close(s.done)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.log.Info().Str("interval", s.interval.String()).Msg("scheduler started")

		s.safeTick(ctx)

		for {
			select {
			case <-ctx.Done():
				s.log.Info().Msg("scheduler stopping")
				return
			case <-ticker.C:
				s.safeTick(ctx)
			}
		}
	}()

	return true
}

// Stop cancels the loop and waits for an in-flight tick to return.
func (s *Scheduler) Stop() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running.Load() {
		return false
	}

	s.cancel()
	<-s.done
	s.running.Store(false)

	s.log.Info().Msg("scheduler stopped")
	return true
}

func (s *Scheduler) IsRunning() bool {
	return s.running.Load()
}

func (s *Scheduler) Status() Status {
	s.statMu.Lock()
	defer s.statMu.Unlock()

	st := Status{
		Name:     s.name,
		Running:  s.IsRunning(),
		Interval: s.interval.String(),
	}
	if !s.lastRunAt.IsZero() {
		at := s.lastRunAt
		st.LastRunAt = &at
	}
	if s.lastErr != nil {
		st.LastError = s.lastErr.Error()
	}
	return st
}

func (s *Scheduler) safeTick(ctx context.Context) {
	start := time.Now()
	err := s.runTick(ctx)

	s.statMu.Lock()
	s.lastRunAt = start
	s.lastErr = err
	s.statMu.Unlock()

	if err != nil {
		s.log.Error().Err(err).Int64("duration_ms", time.Since(start).Milliseconds()).Msg("scheduler tick failed")
		return
	}
	s.log.Debug().Int64("duration_ms", time.Since(start).Milliseconds()).Msg("scheduler tick completed")
}

func (s *Scheduler) runTick(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("tick panic: %v", r)
		}
	}()
	return s.tickFn(ctx)
}
