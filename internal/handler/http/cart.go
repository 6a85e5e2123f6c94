package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/mmtuentertainment/wvwo-storefront-sub002/internal/domain"
	"github.com/mmtuentertainment/wvwo-storefront-sub002/internal/engine"
	"github.com/mmtuentertainment/wvwo-storefront-sub002/internal/pricing"
	"github.com/mmtuentertainment/wvwo-storefront-sub002/internal/session"
	apperrors "github.com/mmtuentertainment/wvwo-storefront-sub002/pkg/errors"
	"github.com/mmtuentertainment/wvwo-storefront-sub002/pkg/httputil"
	"github.com/mmtuentertainment/wvwo-storefront-sub002/pkg/logger"
	"github.com/mmtuentertainment/wvwo-storefront-sub002/pkg/validator"
)

// Sessions hands out the cart engine for a shopper session.
type Sessions interface {
	Acquire(ctx context.Context, sessionID string) (*engine.Engine, func(), error)
}

// CartHandler handles HTTP requests for cart endpoints.
type CartHandler struct {
	sessions Sessions
	logger   *slog.Logger
}

// NewCartHandler creates a new cart HTTP handler.
func NewCartHandler(sessions Sessions, logger *slog.Logger) *CartHandler {
	return &CartHandler{
		sessions: sessions,
		logger:   logger,
	}
}

// --- Request DTOs ---

// UpdateQuantityRequest is the JSON request body for setting a line's quantity.
// Zero or negative removes the line.
type UpdateQuantityRequest struct {
	Quantity *int `json:"quantity" validate:"required"`
}

// DrawerRequest optionally forces the drawer open or closed instead of toggling.
type DrawerRequest struct {
	Open *bool `json:"open"`
}

// --- Handlers ---

// GetCart handles GET /api/v1/cart
func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	e, release, ok := h.acquire(w, r)
	if !ok {
		return
	}
	defer release()

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: newCartView(e)})
}

// AddItem handles POST /api/v1/cart/items
func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	var item domain.LineItem
	if err := httputil.DecodeJSON(r, &item); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	e, release, ok := h.acquire(w, r)
	if !ok {
		return
	}
	defer release()

	res, err := e.AddItem(r.Context(), item)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	h.writeResult(w, r, e, res, http.StatusOK)
}

// UpdateItemQuantity handles PUT /api/v1/cart/items/{productId}
func (h *CartHandler) UpdateItemQuantity(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "productId")

	var req UpdateQuantityRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	e, release, ok := h.acquire(w, r)
	if !ok {
		return
	}
	defer release()

	h.writeResult(w, r, e, e.UpdateQuantity(r.Context(), productID, *req.Quantity), http.StatusOK)
}

// RemoveItem handles DELETE /api/v1/cart/items/{productId}
func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "productId")

	e, release, ok := h.acquire(w, r)
	if !ok {
		return
	}
	defer release()

	h.writeResult(w, r, e, e.RemoveItem(r.Context(), productID), http.StatusOK)
}

// ClearCart handles DELETE /api/v1/cart
func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	e, release, ok := h.acquire(w, r)
	if !ok {
		return
	}
	defer release()

	h.writeResult(w, r, e, e.ClearCart(r.Context()), http.StatusOK)
}

// GetSummary handles GET /api/v1/cart/summary?fulfillment=ship&state=WV
func (h *CartHandler) GetSummary(w http.ResponseWriter, r *http.Request) {
	dest, err := destinationFromQuery(r)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	e, release, ok := h.acquire(w, r)
	if !ok {
		return
	}
	defer release()

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: newSummaryView(e.Summary(dest), dest)})
}

// ToggleDrawer handles POST /api/v1/cart/drawer/toggle. A body of
// {"open": bool} sets the drawer instead of flipping it.
func (h *CartHandler) ToggleDrawer(w http.ResponseWriter, r *http.Request) {
	var req DrawerRequest
	if r.ContentLength > 0 {
		if err := httputil.DecodeJSON(r, &req); err != nil {
			httputil.WriteError(w, r, err, h.logger)
			return
		}
	}

	e, release, ok := h.acquire(w, r)
	if !ok {
		return
	}
	defer release()

	switch {
	case req.Open == nil:
		e.Toggle()
	case *req.Open:
		e.Open()
	default:
		e.CloseDrawer()
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: DrawerView{IsOpen: e.IsOpen()}})
}

// BeginCheckout handles POST /api/v1/cart/checkout
func (h *CartHandler) BeginCheckout(w http.ResponseWriter, r *http.Request) {
	e, release, ok := h.acquire(w, r)
	if !ok {
		return
	}
	defer release()

	h.writeResult(w, r, e, e.BeginCheckout(r.Context()), http.StatusOK)
}

// CompleteCheckout handles POST /api/v1/cart/checkout/complete
func (h *CartHandler) CompleteCheckout(w http.ResponseWriter, r *http.Request) {
	e, release, ok := h.acquire(w, r)
	if !ok {
		return
	}
	defer release()

	h.writeResult(w, r, e, e.CompleteCheckout(r.Context()), http.StatusOK)
}

// --- Helpers ---

// acquire resolves the session engine. On failure the response is already
// written and ok is false.
func (h *CartHandler) acquire(w http.ResponseWriter, r *http.Request) (*engine.Engine, func(), bool) {
	sessionID := logger.SessionIDFromContext(r.Context())
	if sessionID == "" {
		httputil.WriteError(w, r, apperrors.InvalidInput("X-Session-ID header is required"), h.logger)
		return nil, nil, false
	}

	e, release, err := h.sessions.Acquire(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, session.ErrClosed) {
			err = &apperrors.AppError{
				Code:    "SHUTTING_DOWN",
				Message: "cart service is shutting down",
				Status:  http.StatusServiceUnavailable,
				Err:     err,
			}
		}
		httputil.WriteError(w, r, err, h.logger)
		return nil, nil, false
	}
	return e, release, true
}

// writeResult maps an engine Result to HTTP. Rejections carry the rule message
// verbatim with 422.
func (h *CartHandler) writeResult(w http.ResponseWriter, r *http.Request, e *engine.Engine, res domain.Result, status int) {
	if !res.Success {
		httputil.WriteError(w, r, apperrors.RuleRejected(res.Message), h.logger)
		return
	}
	httputil.WriteJSON(w, status, httputil.Response{
		Data: MutationResponse{Message: res.Message, Cart: newCartView(e)},
	})
}

func destinationFromQuery(r *http.Request) (*domain.Destination, error) {
	q := r.URL.Query()
	raw := strings.TrimSpace(q.Get("fulfillment"))
	if raw == "" {
		return nil, nil
	}
	method, ok := pricing.Method(raw)
	if !ok {
		return nil, apperrors.InvalidInput("fulfillment must be ship or pickup")
	}
	state := strings.ToUpper(strings.TrimSpace(q.Get("state")))
	if state != "" && len(state) != 2 {
		return nil, apperrors.InvalidInput("state must be a two-letter code")
	}
	return &domain.Destination{Method: method, State: state}, nil
}
