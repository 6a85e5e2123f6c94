// Package session keeps one cart engine per shopper session, hydrated lazily
// from durable storage and released after a period of inactivity.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/singleflight"

	"github.com/mmtuentertainment/wvwo-storefront-sub002/internal/domain"
	"github.com/mmtuentertainment/wvwo-storefront-sub002/internal/engine"
	"github.com/mmtuentertainment/wvwo-storefront-sub002/internal/event"
	"github.com/mmtuentertainment/wvwo-storefront-sub002/internal/persistence"
	"github.com/mmtuentertainment/wvwo-storefront-sub002/internal/repository"
	"github.com/mmtuentertainment/wvwo-storefront-sub002/internal/state"
	"github.com/mmtuentertainment/wvwo-storefront-sub002/pkg/tracing"
)

// ErrClosed is returned by Acquire after Close.
var ErrClosed = errors.New("session registry closed")

// Config controls how engines are built and retired.
type Config struct {
	KeyPrefix   string
	Expiry      time.Duration
	Debounce    time.Duration
	IdleTimeout time.Duration
}

type entry struct {
	engine   *engine.Engine
	lastSeen time.Time
	inUse    int
}

// Registry owns the live engines.
type Registry struct {
	cfg    Config
	store  repository.SnapshotStore
	calc   domain.Calculator
	sink   event.Sink
	logger *slog.Logger
	now    func() time.Time

	group singleflight.Group

	mu       sync.Mutex
	sessions map[string]*entry
	closed   bool
}

// NewRegistry creates a registry persisting to store.
func NewRegistry(cfg Config, store repository.SnapshotStore, calc domain.Calculator, sink event.Sink, logger *slog.Logger) *Registry {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = persistence.DefaultKey
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 30 * time.Minute
	}
	return &Registry{
		cfg:      cfg,
		store:    store,
		calc:     calc,
		sink:     sink,
		logger:   logger,
		now:      time.Now,
		sessions: make(map[string]*entry),
	}
}

// Key returns the storage key for a session.
func (r *Registry) Key(sessionID string) string {
	return r.cfg.KeyPrefix + ":" + sessionID
}

// Acquire returns the engine for sessionID, creating and hydrating it on first
// use. Callers must invoke release when done so idle eviction can proceed.
func (r *Registry) Acquire(ctx context.Context, sessionID string) (*engine.Engine, func(), error) {
	if e, release, ok := r.checkout(sessionID); ok {
		return e, release, nil
	}

	_, err, _ := r.group.Do(sessionID, func() (any, error) {
		r.mu.Lock()
		if r.closed {
			r.mu.Unlock()
			return nil, ErrClosed
		}
		if _, ok := r.sessions[sessionID]; ok {
			r.mu.Unlock()
			return nil, nil
		}
		r.mu.Unlock()

		e := r.build(context.WithoutCancel(ctx), sessionID)

		r.mu.Lock()
		defer r.mu.Unlock()
		if r.closed {
			_ = e.Close(context.WithoutCancel(ctx))
			return nil, ErrClosed
		}
		r.sessions[sessionID] = &entry{engine: e, lastSeen: r.now()}
		return nil, nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("acquire session %s: %w", sessionID, err)
	}

	e, release, ok := r.checkout(sessionID)
	if !ok {
		return nil, nil, fmt.Errorf("acquire session %s: %w", sessionID, ErrClosed)
	}
	return e, release, nil
}

func (r *Registry) checkout(sessionID string) (*engine.Engine, func(), bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, nil, false
	}
	ent, ok := r.sessions[sessionID]
	if !ok {
		return nil, nil, false
	}
	ent.inUse++
	ent.lastSeen = r.now()

	var once sync.Once
	release := func() {
		once.Do(func() {
			r.mu.Lock()
			ent.inUse--
			ent.lastSeen = r.now()
			r.mu.Unlock()
		})
	}
	return ent.engine, release, true
}

func (r *Registry) build(ctx context.Context, sessionID string) *engine.Engine {
	adapter := persistence.NewAdapter(r.store, persistence.Options{
		Key:      r.Key(sessionID),
		Expiry:   r.cfg.Expiry,
		Debounce: r.cfg.Debounce,
		Logger:   r.logger,
	})
	e := engine.New(state.New(), adapter, engine.Options{
		SessionID:  sessionID,
		Calculator: r.calc,
		Sink:       r.sink,
		Logger:     r.logger,
	})

	ctx, span := tracing.Tracer("cart-session").Start(ctx, "cart.session.hydrate")
	res := e.Load(ctx)
	span.SetAttributes(
		attribute.String("cart.restore_outcome", string(res.Outcome)),
		attribute.Int("cart.lines", res.Lines),
	)
	span.End()

	r.logger.InfoContext(ctx, "session started",
		slog.String("session_id", sessionID),
		slog.String("restore", string(res.Outcome)),
		slog.Int("lines", res.Lines),
	)
	return e
}

// EvictIdle closes engines unused for longer than the idle timeout and
// returns how many were evicted.
func (r *Registry) EvictIdle(ctx context.Context) int {
	cutoff := r.now().Add(-r.cfg.IdleTimeout)

	r.mu.Lock()
	var idle []*engine.Engine
	for id, ent := range r.sessions {
		if ent.inUse == 0 && ent.lastSeen.Before(cutoff) {
			idle = append(idle, ent.engine)
			delete(r.sessions, id)
		}
	}
	r.mu.Unlock()

	for _, e := range idle {
		if err := e.Close(ctx); err != nil {
			r.logger.WarnContext(ctx, "failed to flush evicted session",
				slog.String("session_id", e.SessionID()),
				slog.String("error", err.Error()),
			)
		}
	}
	return len(idle)
}

// Run evicts idle sessions every interval until ctx is cancelled.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.EvictIdle(ctx); n > 0 {
				r.logger.DebugContext(ctx, "evicted idle sessions", slog.Int("count", n))
			}
		}
	}
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Close flushes and closes every engine.
func (r *Registry) Close(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	engines := make([]*engine.Engine, 0, len(r.sessions))
	for id, ent := range r.sessions {
		engines = append(engines, ent.engine)
		delete(r.sessions, id)
	}
	r.mu.Unlock()

	var errs []error
	for _, e := range engines {
		if err := e.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close session %s: %w", e.SessionID(), err))
		}
	}
	return errors.Join(errs...)
}
