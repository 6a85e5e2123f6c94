// Package engine is the single entry point for cart mutations. Each operation
// runs validate, apply, schedule persistence, emit analytics, in that order.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/mmtuentertainment/wvwo-storefront-sub002/internal/domain"
	"github.com/mmtuentertainment/wvwo-storefront-sub002/internal/event"
	"github.com/mmtuentertainment/wvwo-storefront-sub002/internal/persistence"
	"github.com/mmtuentertainment/wvwo-storefront-sub002/internal/rules"
	"github.com/mmtuentertainment/wvwo-storefront-sub002/internal/state"
	"github.com/mmtuentertainment/wvwo-storefront-sub002/pkg/tracing"
)

// Defaults used when Options leaves a field zero.
const (
	DefaultAnalyticsQueue   = 64
	DefaultAnalyticsTimeout = 5 * time.Second
)

// MsgEmptyCheckout is returned when checkout starts with nothing in the cart.
const MsgEmptyCheckout = "Your cart is empty"

// Options configures an Engine.
type Options struct {
	SessionID        string
	Calculator       domain.Calculator
	Sink             event.Sink
	Logger           *slog.Logger
	AnalyticsQueue   int
	AnalyticsTimeout time.Duration
}

type tracked struct {
	ctx context.Context
	ev  event.Analytics
}

// Engine orchestrates the rule validator, the state container, the
// persistence adapter and the analytics sink for one cart.
type Engine struct {
	// mu keeps each mutation pipeline atomic with respect to the others.
	mu sync.Mutex

	cart      *state.Container
	persist   *persistence.Adapter
	calc      domain.Calculator
	sink      event.Sink
	logger    *slog.Logger
	sessionID string

	unsubscribe func()

	queue     chan tracked
	timeout   time.Duration
	done      chan struct{}
	closeOnce sync.Once
	closed    bool
}

// New wires an engine around cart. persist may be nil for a memory-only cart.
func New(cart *state.Container, persist *persistence.Adapter, opts Options) *Engine {
	if opts.Sink == nil {
		opts.Sink = event.Nop{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.AnalyticsQueue <= 0 {
		opts.AnalyticsQueue = DefaultAnalyticsQueue
	}
	if opts.AnalyticsTimeout <= 0 {
		opts.AnalyticsTimeout = DefaultAnalyticsTimeout
	}

	e := &Engine{
		cart:      cart,
		persist:   persist,
		calc:      opts.Calculator,
		sink:      opts.Sink,
		logger:    opts.Logger.With(slog.String("session_id", opts.SessionID)),
		sessionID: opts.SessionID,
		queue:     make(chan tracked, opts.AnalyticsQueue),
		timeout:   opts.AnalyticsTimeout,
		done:      make(chan struct{}),
	}
	if persist != nil {
		e.unsubscribe = cart.Subscribe(persist.Observe)
	}

	go e.runAnalytics()
	return e
}

// Load hydrates the cart from durable storage. Without a persistence adapter
// it reports an absent snapshot.
func (e *Engine) Load(ctx context.Context) persistence.LoadResult {
	if e.persist == nil {
		return persistence.LoadResult{Outcome: persistence.OutcomeAbsent}
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	res := e.persist.Load(ctx, e.cart)
	e.logger.DebugContext(ctx, "cart loaded",
		slog.String("outcome", string(res.Outcome)),
		slog.Int("lines", res.Lines),
	)
	return res
}

// SessionID returns the session the engine serves.
func (e *Engine) SessionID() string {
	return e.sessionID
}

// AddItem validates and applies an add. A malformed item returns an error
// wrapping apperrors.ErrContractViolation; a rule rejection returns the
// failed Result with no state change.
func (e *Engine) AddItem(ctx context.Context, item domain.LineItem) (domain.Result, error) {
	ctx, span := e.startSpan(ctx, "add")
	defer span.End()

	e.mu.Lock()
	defer e.mu.Unlock()

	res, err := e.cart.AddItem(item)
	if err != nil {
		record(span, "add", outcomeInvalid)
		e.logger.WarnContext(ctx, "rejected malformed cart item",
			slog.String("product_id", item.ProductID),
			slog.String("error", err.Error()),
		)
		return domain.Result{}, fmt.Errorf("add item: %w", err)
	}
	if !res.Success {
		record(span, "add", outcomeRejected)
		e.logger.InfoContext(ctx, "cart rule rejected add",
			slog.String("product_id", item.ProductID),
			slog.String("reason", res.Message),
		)
		return res, nil
	}

	record(span, "add", outcomeApplied)
	e.track(ctx, event.AddToCart(item, item.Quantity))
	return res, nil
}

// RemoveItem drops a line. Removing an absent line succeeds without effect.
func (e *Engine) RemoveItem(ctx context.Context, productID string) domain.Result {
	ctx, span := e.startSpan(ctx, "remove")
	defer span.End()

	e.mu.Lock()
	defer e.mu.Unlock()

	removed, ok := e.cart.RemoveItem(productID)
	if !ok {
		record(span, "remove", outcomeNoop)
		return domain.Ok("")
	}

	record(span, "remove", outcomeApplied)
	e.track(ctx, event.RemoveFromCart(removed))
	return domain.Ok(fmt.Sprintf("%s removed from cart", removed.DisplayName()))
}

// UpdateQuantity sets a line's quantity; n ≤ 0 removes it and larger values
// are clamped to the line's cap.
func (e *Engine) UpdateQuantity(ctx context.Context, productID string, n int) domain.Result {
	ctx, span := e.startSpan(ctx, "update")
	defer span.End()

	e.mu.Lock()
	defer e.mu.Unlock()

	d, prev := e.cart.UpdateQuantity(productID, n)
	switch d.Action {
	case rules.UpdateNoop:
		record(span, "update", outcomeNoop)
		return domain.Ok("")
	case rules.UpdateRemove:
		record(span, "update", outcomeApplied)
		e.track(ctx, event.RemoveFromCart(prev))
		return domain.Ok(fmt.Sprintf("%s removed from cart", prev.DisplayName()))
	}

	record(span, "update", outcomeApplied)
	if d.Clamped {
		return domain.Ok(fmt.Sprintf("Maximum quantity is %d", d.Quantity))
	}
	return domain.Ok("")
}

// ClearCart empties the cart. It always succeeds.
func (e *Engine) ClearCart(ctx context.Context) domain.Result {
	ctx, span := e.startSpan(ctx, "clear")
	defer span.End()

	e.mu.Lock()
	defer e.mu.Unlock()

	n := e.cart.ClearCart()
	outcome := outcomeApplied
	if n == 0 {
		outcome = outcomeNoop
	}
	record(span, "clear", outcome)
	e.logger.DebugContext(ctx, "cart cleared", slog.Int("lines", n))
	return domain.Ok("")
}

// BeginCheckout reports the cart being handed to checkout.
func (e *Engine) BeginCheckout(ctx context.Context) domain.Result {
	ctx, span := e.startSpan(ctx, "checkout_begin")
	defer span.End()

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.cart.Len() == 0 {
		record(span, "checkout_begin", outcomeRejected)
		return domain.Reject(MsgEmptyCheckout)
	}
	record(span, "checkout_begin", outcomeApplied)
	e.track(ctx, event.BeginCheckout(e.cart.ItemCount(), e.cart.Subtotal()))
	return domain.Ok("")
}

// CompleteCheckout resets the cart once the order has been placed.
func (e *Engine) CompleteCheckout(ctx context.Context) domain.Result {
	ctx, span := e.startSpan(ctx, "checkout_complete")
	defer span.End()

	e.mu.Lock()
	defer e.mu.Unlock()

	n := e.cart.ClearCart()
	e.cart.SetOpen(false)
	record(span, "checkout_complete", outcomeApplied)
	e.logger.InfoContext(ctx, "checkout completed, cart reset", slog.Int("lines", n))
	return domain.Ok("")
}

// Status returns EMPTY or POPULATED.
func (e *Engine) Status() domain.Status {
	return e.cart.Status()
}

// Items returns a read-only copy of the lines.
func (e *Engine) Items() domain.Items {
	return e.cart.Items()
}

// ItemCount returns the sum of quantities.
func (e *Engine) ItemCount() int {
	return e.cart.ItemCount()
}

// Subtotal returns the cart subtotal in cents.
func (e *Engine) Subtotal() int64 {
	return e.cart.Subtotal()
}

// Summary derives the cart summary, with shipping and tax for dest when a
// calculator is configured.
func (e *Engine) Summary(dest *domain.Destination) domain.Summary {
	items := e.cart.Items()
	s := domain.Summarize(items)
	if e.calc == nil {
		return s
	}
	return s.WithTotals(e.calc.ComputeSummary(items, dest))
}

// Open shows the cart drawer.
func (e *Engine) Open() { e.cart.SetOpen(true) }

// CloseDrawer hides the cart drawer.
func (e *Engine) CloseDrawer() { e.cart.SetOpen(false) }

// Toggle flips the drawer and returns the new state.
func (e *Engine) Toggle() bool { return e.cart.Toggle() }

// IsOpen reports the drawer state.
func (e *Engine) IsOpen() bool { return e.cart.IsOpen() }

// Subscribe forwards container changes to fn.
func (e *Engine) Subscribe(fn state.Listener) func() {
	return e.cart.Subscribe(fn)
}

// PersistenceMode reports whether writes currently reach durable storage.
func (e *Engine) PersistenceMode() persistence.Mode {
	if e.persist == nil {
		return persistence.ModeSession
	}
	return e.persist.Mode()
}

// RestoreFailed reports whether the stored cart could not be read at load.
func (e *Engine) RestoreFailed() bool {
	return e.persist != nil && e.persist.RestoreFailed()
}

// Flush writes pending state to durable storage now.
func (e *Engine) Flush(ctx context.Context) error {
	if e.persist == nil {
		return nil
	}
	return e.persist.Flush(ctx)
}

// Close flushes persistence and drains queued analytics. The engine must not
// be mutated afterwards.
func (e *Engine) Close(ctx context.Context) error {
	var err error
	e.closeOnce.Do(func() {
		e.mu.Lock()
		e.closed = true
		close(e.queue)
		e.mu.Unlock()

		if e.unsubscribe != nil {
			e.unsubscribe()
		}
		if e.persist != nil {
			err = e.persist.Close(ctx)
		}

		select {
		case <-e.done:
		case <-ctx.Done():
			e.logger.WarnContext(ctx, "analytics queue not drained before shutdown")
		}
	})
	return err
}

func (e *Engine) startSpan(ctx context.Context, op string) (context.Context, trace.Span) {
	return tracing.Tracer("cart-engine").Start(ctx, "cart."+op,
		trace.WithAttributes(
			attribute.String("cart.session_id", e.sessionID),
			attribute.String("cart.operation", op),
		),
	)
}

// track enqueues ev without blocking. Callers hold e.mu.
func (e *Engine) track(ctx context.Context, ev event.Analytics) {
	if e.closed {
		return
	}
	select {
	case e.queue <- tracked{ctx: context.WithoutCancel(ctx), ev: ev}:
	default:
		analyticsDroppedTotal.Inc()
		e.logger.WarnContext(ctx, "analytics queue full, dropping event",
			slog.String("event", string(ev.Event)),
		)
	}
}

func (e *Engine) runAnalytics() {
	defer close(e.done)
	for t := range e.queue {
		e.deliver(t)
	}
}

func (e *Engine) deliver(t tracked) {
	ctx, cancel := context.WithTimeout(t.ctx, e.timeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			analyticsFailuresTotal.Inc()
			e.logger.ErrorContext(ctx, "analytics sink panicked",
				slog.Any("panic", r),
				slog.String("event", string(t.ev.Event)),
			)
		}
	}()

	if err := e.sink.Track(ctx, e.sessionID, t.ev); err != nil {
		analyticsFailuresTotal.Inc()
		e.logger.WarnContext(ctx, "failed to emit analytics event",
			slog.String("event", string(t.ev.Event)),
			slog.String("error", err.Error()),
		)
	}
}
