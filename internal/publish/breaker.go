package publish

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/LeventeLantos/outreach-scheduler/internal/apperrors"
	"github.com/LeventeLantos/outreach-scheduler/internal/metrics"
)

type BreakerConfig struct {
	FailureThreshold uint32
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
}

func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		MaxRequests:      1,
		Interval:         time.Minute,
		Timeout:          30 * time.Second,
	}
}

// breakerPublisher guards a Publisher with a circuit breaker and records
// publish latency.
type breakerPublisher struct {
	next Publisher
	cb   *gobreaker.CircuitBreaker[*Result]
}

func WithBreaker(next Publisher, cfg BreakerConfig, logger zerolog.Logger) Publisher {
	provider := next.Provider()
	log := logger.With().Str("component", "breaker").Str("provider", provider).Logger()

	settings := gobreaker.Settings{
		Name:        provider,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		IsSuccessful: countsAsSuccess,
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state changed")
			metrics.BreakerState.WithLabelValues(name).Set(float64(to))
		},
	}

	return &breakerPublisher{
		next: next,
		cb:   gobreaker.NewCircuitBreaker[*Result](settings),
	}
}

func (b *breakerPublisher) Provider() string {
	return b.next.Provider()
}

func (b *breakerPublisher) Publish(ctx context.Context, text string) (*Result, error) {
	start := time.Now()
	res, err := b.cb.Execute(func() (*Result, error) {
		return b.next.Publish(ctx, text)
	})
	metrics.ObservePublish(b.Provider(), err == nil, start)

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, &ProviderError{
			Provider:   b.Provider(),
			StatusCode: http.StatusServiceUnavailable,
			Body:       "circuit breaker is open",
		}
	}
	return res, err
}

// countsAsSuccess keeps caller mistakes (bad input, 4xx other than 429)
// from tripping the breaker.
func countsAsSuccess(err error) bool {
	if err == nil {
		return true
	}
	if apperrors.KindOf(err) == apperrors.KindValidation {
		return true
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.StatusCode >= 400 && pe.StatusCode < 500 && pe.StatusCode != http.StatusTooManyRequests
	}
	return false
}
