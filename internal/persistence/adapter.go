package persistence

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/mmtuentertainment/wvwo-storefront-sub002/internal/domain"
	"github.com/mmtuentertainment/wvwo-storefront-sub002/internal/repository"
	"github.com/mmtuentertainment/wvwo-storefront-sub002/internal/state"
	apperrors "github.com/mmtuentertainment/wvwo-storefront-sub002/pkg/errors"
)

// DefaultKey is the storage key used when none is configured.
const DefaultKey = "wvwo_cart"

// Defaults used when Options leaves a field zero.
const (
	DefaultExpiry       = 24 * time.Hour
	DefaultDebounce     = 100 * time.Millisecond
	DefaultWriteTimeout = 2 * time.Second
)

// Mode reports whether writes are currently reaching durable storage.
type Mode string

const (
	ModePersistent Mode = "persistent"
	ModeSession    Mode = "session"
)

// Outcome describes what Load found.
type Outcome string

const (
	OutcomeRestored    Outcome = "restored"
	OutcomeMigrated    Outcome = "migrated"
	OutcomeAbsent      Outcome = "absent"
	OutcomeExpired     Outcome = "expired"
	OutcomeCorrupt     Outcome = "corrupt"
	OutcomeNoMigration Outcome = "no_migration"
	OutcomeUnavailable Outcome = "unavailable"
)

// LoadResult is returned by Load.
type LoadResult struct {
	Outcome Outcome
	Lines   int
	Dropped int
}

// Options configures an Adapter.
type Options struct {
	Key          string
	Expiry       time.Duration
	Debounce     time.Duration
	WriteTimeout time.Duration
	Migrator     *Migrator
	Logger       *slog.Logger
	Now          func() time.Time
}

func (o *Options) setDefaults() {
	if o.Key == "" {
		o.Key = DefaultKey
	}
	if o.Expiry <= 0 {
		o.Expiry = DefaultExpiry
	}
	if o.Debounce <= 0 {
		o.Debounce = DefaultDebounce
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = DefaultWriteTimeout
	}
	if o.Migrator == nil {
		o.Migrator = DefaultMigrator()
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// Adapter restores a cart from a SnapshotStore and mirrors later changes
// back to it.
type Adapter struct {
	store    repository.SnapshotStore
	opts     Options
	logger   *slog.Logger
	debounce *Debouncer

	// writeMu serialises store writes so the newest snapshot always lands last.
	writeMu sync.Mutex

	mu            sync.Mutex
	pending       domain.Items
	dirty         bool
	closed        bool
	mode          Mode
	restoreFailed bool
}

// NewAdapter creates an adapter writing to store under opts.Key.
func NewAdapter(store repository.SnapshotStore, opts Options) *Adapter {
	opts.setDefaults()
	a := &Adapter{
		store:  store,
		opts:   opts,
		logger: opts.Logger.With(slog.String("storage_key", opts.Key)),
		mode:   ModePersistent,
	}
	a.debounce = NewDebouncer(opts.Debounce, a.flushFromTimer)
	return a
}

// Key returns the storage key.
func (a *Adapter) Key() string {
	return a.opts.Key
}

// Load reads the stored snapshot and hydrates c with it. Every failure leaves
// c empty; Load itself never fails.
func (a *Adapter) Load(ctx context.Context, c *state.Container) LoadResult {
	res := a.load(ctx, c)
	snapshotLoadsTotal.WithLabelValues(string(res.Outcome)).Inc()
	return res
}

func (a *Adapter) load(ctx context.Context, c *state.Container) LoadResult {
	data, err := a.store.Get(ctx, a.opts.Key)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return LoadResult{Outcome: OutcomeAbsent}
		}
		a.logger.WarnContext(ctx, "snapshot store unavailable, cart will not persist",
			slog.String("error", err.Error()),
		)
		a.setMode(ModeSession)
		return LoadResult{Outcome: OutcomeUnavailable}
	}

	snap, migrated, err := Decode(data, a.opts.Migrator)
	if err != nil {
		outcome := OutcomeCorrupt
		if errors.Is(err, apperrors.ErrNoMigrationPath) {
			outcome = OutcomeNoMigration
		} else {
			a.mu.Lock()
			a.restoreFailed = true
			a.mu.Unlock()
		}
		a.logger.InfoContext(ctx, "discarding stored cart",
			slog.String("reason", string(outcome)),
			slog.String("error", err.Error()),
		)
		a.discard(ctx)
		return LoadResult{Outcome: outcome}
	}

	if snap.Expired(a.opts.Now(), a.opts.Expiry) {
		a.logger.InfoContext(ctx, "discarding stored cart",
			slog.String("reason", string(OutcomeExpired)),
			slog.Time("saved_at", snap.SavedTime()),
		)
		a.discard(ctx)
		return LoadResult{Outcome: OutcomeExpired}
	}

	dropped := c.Hydrate(snap.Items)
	if dropped > 0 {
		snapshotItemsDroppedTotal.Add(float64(dropped))
		a.logger.InfoContext(ctx, "dropped invalid lines from stored cart",
			slog.Int("dropped", dropped),
		)
	}

	restored := c.Items()
	if migrated || dropped > 0 || repaired(snap.Items, restored) {
		a.Schedule(restored)
	}

	outcome := OutcomeRestored
	if migrated {
		outcome = OutcomeMigrated
		a.logger.InfoContext(ctx, "migrated stored cart",
			slog.Int("to_version", a.opts.Migrator.Target()),
		)
	}
	return LoadResult{Outcome: outcome, Lines: c.Len(), Dropped: dropped}
}

// repaired reports whether hydration changed any stored quantity.
func repaired(stored, restored domain.Items) bool {
	for id, item := range restored {
		if stored[id].Quantity != item.Quantity {
			return true
		}
	}
	return false
}

func (a *Adapter) discard(ctx context.Context) {
	if err := a.store.Delete(ctx, a.opts.Key); err != nil {
		a.logger.WarnContext(ctx, "failed to remove discarded snapshot",
			slog.String("error", err.Error()),
		)
	}
}

// Schedule records items as the latest state and (re)starts the debounce
// window. Only the last scheduled state within a window is written.
func (a *Adapter) Schedule(items domain.Items) {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.pending = items.Clone()
	a.dirty = true
	a.mu.Unlock()

	a.debounce.Trigger()
}

// Observe is a state.Listener that schedules a write for every change except
// the hydration performed by Load.
func (a *Adapter) Observe(ch state.Change) {
	if ch.Op == state.OpHydrate {
		return
	}
	a.Schedule(ch.Items)
}

// Flush writes any pending state immediately.
func (a *Adapter) Flush(ctx context.Context) error {
	a.debounce.Cancel()
	return a.writePending(ctx)
}

// Close flushes pending state and stops accepting new work.
func (a *Adapter) Close(ctx context.Context) error {
	a.debounce.Stop()
	err := a.writePending(ctx)

	a.mu.Lock()
	a.closed = true
	a.mu.Unlock()
	return err
}

// Mode returns the current persistence mode.
func (a *Adapter) Mode() Mode {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.mode
}

// RestoreFailed reports whether Load found a snapshot it could not read.
func (a *Adapter) RestoreFailed() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.restoreFailed
}

func (a *Adapter) flushFromTimer() {
	ctx, cancel := context.WithTimeout(context.Background(), a.opts.WriteTimeout)
	defer cancel()
	_ = a.writePending(ctx)
}

func (a *Adapter) writePending(ctx context.Context) error {
	a.writeMu.Lock()
	defer a.writeMu.Unlock()

	a.mu.Lock()
	if !a.dirty {
		a.mu.Unlock()
		return nil
	}
	items := a.pending
	a.pending = nil
	a.dirty = false
	a.mu.Unlock()

	err := a.write(ctx, items)
	if err != nil {
		a.mu.Lock()
		// Keep the snapshot for the next Flush or Close unless a newer one arrived.
		if !a.dirty {
			a.pending = items
			a.dirty = true
		}
		a.mu.Unlock()

		snapshotWritesTotal.WithLabelValues("failure").Inc()
		a.logger.ErrorContext(ctx, "failed to persist cart",
			slog.String("error", err.Error()),
		)
		if a.setMode(ModeSession) == ModePersistent {
			a.logger.WarnContext(ctx, "cart persistence degraded to session mode")
		}
		return err
	}

	snapshotWritesTotal.WithLabelValues("success").Inc()
	if a.setMode(ModePersistent) == ModeSession {
		a.logger.InfoContext(ctx, "cart persistence restored")
	}
	return nil
}

func (a *Adapter) write(ctx context.Context, items domain.Items) error {
	if len(items) == 0 {
		return a.store.Delete(ctx, a.opts.Key)
	}
	data, err := Encode(items, a.opts.Now())
	if err != nil {
		return err
	}
	return a.store.Set(ctx, a.opts.Key, data)
}

// setMode stores m and returns the previous mode.
func (a *Adapter) setMode(m Mode) Mode {
	a.mu.Lock()
	defer a.mu.Unlock()
	prev := a.mode
	a.mode = m
	return prev
}
