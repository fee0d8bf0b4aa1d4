package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/LeventeLantos/outreach-scheduler/internal/cache"
	"github.com/LeventeLantos/outreach-scheduler/internal/scheduler"
)

// Exclusive wraps fn so that at most one replica runs it at a time. A tick
// that loses the lock is skipped.
func Exclusive(locker cache.Locker, name string, ttl time.Duration, logger zerolog.Logger, fn scheduler.TickFunc) scheduler.TickFunc {
	if locker == nil {
		locker = cache.Noop{}
	}
	return func(ctx context.Context) error {
		release, ok, err := locker.TryLock(ctx, name, ttl)
		if err != nil {
			return err
		}
		if !ok {
			logger.Debug().Str("lock", name).Msg("sweep held elsewhere, skipping tick")
			return nil
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				logger.Warn().Err(err).Str("lock", name).Msg("failed to release sweep lock")
			}
		}()
		return fn(ctx)
	}
}

// PlacementTick reaps stale rows and then sweeps due placements of every
// owner.
func PlacementTick(reaper *Reaper, poller *Poller) scheduler.TickFunc {
	return func(ctx context.Context) error {
		if _, err := reaper.Reap(ctx); err != nil {
			return err
		}
		_, err := poller.Sweep(ctx, "")
		return err
	}
}

func CampaignTick(sweeper *CampaignSweeper) scheduler.TickFunc {
	return func(ctx context.Context) error {
		_, err := sweeper.Sweep(ctx)
		return err
	}
}
