// Package breaker wraps a snapshot store with a circuit breaker so an
// unavailable backend fails fast instead of stalling every debounced write.
package breaker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sony/gobreaker/v2"

	"github.com/mmtuentertainment/wvwo-storefront-sub002/internal/repository"
	apperrors "github.com/mmtuentertainment/wvwo-storefront-sub002/pkg/errors"
)

// Config holds configuration for the store circuit breaker.
type Config struct {
	// Name identifies this breaker in metrics and logs.
	Name string

	// MaxRequests is the number of trial calls allowed while half-open.
	MaxRequests uint32

	// Interval clears the closed-state counts. 0 never clears them.
	Interval time.Duration

	// Timeout is how long the breaker stays open before going half-open.
	Timeout time.Duration

	// FailureRatio trips the breaker once reached.
	FailureRatio float64

	// MinRequests is the sample size needed before FailureRatio is evaluated.
	MinRequests uint32
}

// DefaultConfig returns sensible defaults for a store breaker.
func DefaultConfig(name string) Config {
	return Config{
		Name:         name,
		MaxRequests:  1,
		Interval:     60 * time.Second,
		Timeout:      30 * time.Second,
		FailureRatio: 0.5,
		MinRequests:  5,
	}
}

var breakerState = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "cart_store_breaker_state",
		Help: "Current state of the snapshot store circuit breaker (0=closed, 1=half-open, 2=open)",
	},
	[]string{"name"},
)

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

// ErrOpen is returned while the breaker rejects calls.
var ErrOpen = gobreaker.ErrOpenState

// Store implements repository.SnapshotStore around another store.
type Store struct {
	next    repository.SnapshotStore
	breaker *gobreaker.CircuitBreaker[[]byte]
}

// NewStore wraps next. Misses are not counted as failures.
func NewStore(next repository.SnapshotStore, cfg Config, logger *slog.Logger) *Store {
	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= cfg.FailureRatio
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, apperrors.ErrNotFound)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("snapshot store breaker state change",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
			breakerState.WithLabelValues(name).Set(stateToFloat(to))
		},
	}

	breakerState.WithLabelValues(cfg.Name).Set(0)

	return &Store{
		next:    next,
		breaker: gobreaker.NewCircuitBreaker[[]byte](settings),
	}
}

// Get reads the snapshot at key through the breaker.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.breaker.Execute(func() ([]byte, error) {
		return s.next.Get(ctx, key)
	})
	return data, s.translate(err)
}

// Set writes the snapshot at key through the breaker.
func (s *Store) Set(ctx context.Context, key string, data []byte) error {
	_, err := s.breaker.Execute(func() ([]byte, error) {
		return nil, s.next.Set(ctx, key, data)
	})
	return s.translate(err)
}

// Delete removes the snapshot at key through the breaker.
func (s *Store) Delete(ctx context.Context, key string) error {
	_, err := s.breaker.Execute(func() ([]byte, error) {
		return nil, s.next.Delete(ctx, key)
	})
	return s.translate(err)
}

// State returns the current breaker state.
func (s *Store) State() gobreaker.State {
	return s.breaker.State()
}

func (s *Store) translate(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return apperrors.StorageUnavailable(err)
	}
	return err
}
