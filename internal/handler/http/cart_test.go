package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmtuentertainment/wvwo-storefront-sub002/internal/domain"
	"github.com/mmtuentertainment/wvwo-storefront-sub002/internal/engine"
	"github.com/mmtuentertainment/wvwo-storefront-sub002/internal/event"
	"github.com/mmtuentertainment/wvwo-storefront-sub002/internal/persistence"
	"github.com/mmtuentertainment/wvwo-storefront-sub002/internal/pricing"
	"github.com/mmtuentertainment/wvwo-storefront-sub002/internal/repository/memory"
	"github.com/mmtuentertainment/wvwo-storefront-sub002/internal/session"
	"github.com/mmtuentertainment/wvwo-storefront-sub002/pkg/health"
	"github.com/mmtuentertainment/wvwo-storefront-sub002/pkg/httputil"
	"github.com/mmtuentertainment/wvwo-storefront-sub002/pkg/logger"
	"github.com/mmtuentertainment/wvwo-storefront-sub002/pkg/middleware"
)

const testSession = "5f0c7d1e-8a51-4a4b-9d0e-7b0d2c7d9a11"

// ============================================================================
// Test helpers
// ============================================================================

type testEnv struct {
	router   http.Handler
	registry *session.Registry
	store    *memory.Store
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := memory.NewStore()
	registry := session.NewRegistry(session.Config{
		KeyPrefix:   persistence.DefaultKey,
		Debounce:    time.Hour,
		IdleTimeout: time.Minute,
	}, store, pricing.NewCalculator(), event.Nop{}, logger.Discard())
	t.Cleanup(func() { _ = registry.Close(context.Background()) })

	router := NewRouter(registry, health.NewHandler(), logger.Discard(), RouterConfig{
		CORS: middleware.DefaultCORSConfig(),
	})
	return &testEnv{router: router, registry: registry, store: store}
}

func (env *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(t, json.NewEncoder(&buf).Encode(b))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(middleware.HeaderSessionID, testSession)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	return rec
}

type envelope struct {
	Data  json.RawMessage         `json:"data"`
	Error *httputil.ErrorResponse `json:"error"`
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&env))
	return env
}

func decodeData[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	env := decodeEnvelope(t, rec)
	require.Nil(t, env.Error, "unexpected error: %+v", env.Error)
	var out T
	require.NoError(t, json.Unmarshal(env.Data, &out))
	return out
}

func capItem() domain.LineItem {
	return domain.LineItem{
		ProductID: "cap-1", SKU: "CAP-1", Name: "Blaze Orange Cap", ShortName: "Cap",
		Price: 1499, Quantity: 1, MaxQuantity: 3,
		FulfillmentType: domain.FulfillmentShipOrPickup,
	}
}

func rifleItem(id string) domain.LineItem {
	return domain.LineItem{
		ProductID: id, SKU: "SKU-" + id, Name: "Bolt Rifle " + id,
		Price: 64999, Quantity: 1, MaxQuantity: 1,
		FulfillmentType: domain.FulfillmentReserveHold, FFLRequired: true, AgeRestriction: 21,
	}
}

// ============================================================================
// GET /api/v1/cart
// ============================================================================

func TestGetCart_NewSessionIsEmpty(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	sessionID := rec.Header().Get(middleware.HeaderSessionID)
	assert.NotEmpty(t, sessionID)

	view := decodeData[CartView](t, rec)
	assert.Equal(t, sessionID, view.SessionID)
	assert.Equal(t, domain.StatusEmpty, view.Status)
	assert.Empty(t, view.Items)
	assert.Equal(t, "$0.00", view.SubtotalDisplay)
	assert.Equal(t, persistence.ModePersistent, view.Persistence)
}

func TestGetCart_MalformedSessionHeader(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil)
	req.Header.Set(middleware.HeaderSessionID, "not-a-uuid")
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_SESSION", decodeEnvelope(t, rec).Error.Code)
}

// ============================================================================
// POST /api/v1/cart/items
// ============================================================================

func TestAddItem_Success(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/v1/cart/items", capItem())

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeData[MutationResponse](t, rec)
	assert.Equal(t, "Cap added to cart", resp.Message)
	assert.Equal(t, domain.StatusPopulated, resp.Cart.Status)
	require.Len(t, resp.Cart.Items, 1)
	assert.Equal(t, "$14.99", resp.Cart.Items[0].PriceDisplay)
	assert.Equal(t, int64(1499), resp.Cart.Subtotal)

	rec = env.do(t, http.MethodGet, "/api/v1/cart", nil)
	view := decodeData[CartView](t, rec)
	assert.Equal(t, 1, view.ItemCount)
	assert.True(t, view.Summary.HasShippableItems)
}

func TestAddItem_StackableMergesQuantity(t *testing.T) {
	env := newTestEnv(t)

	env.do(t, http.MethodPost, "/api/v1/cart/items", capItem())
	rec := env.do(t, http.MethodPost, "/api/v1/cart/items", capItem())

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeData[MutationResponse](t, rec)
	require.Len(t, resp.Cart.Items, 1)
	assert.Equal(t, 2, resp.Cart.Items[0].Quantity)
	assert.Equal(t, "$29.98", resp.Cart.Items[0].LineTotalDisplay)
}

func TestAddItem_RuleRejected(t *testing.T) {
	env := newTestEnv(t)

	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/v1/cart/items", rifleItem("r1")).Code)
	rec := env.do(t, http.MethodPost, "/api/v1/cart/items", rifleItem("r1"))

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	e := decodeEnvelope(t, rec).Error
	require.NotNil(t, e)
	assert.Equal(t, "CART_RULE_REJECTED", e.Code)
	assert.Equal(t, "Item already reserved", e.Message)
}

func TestAddItem_FirearmCap(t *testing.T) {
	env := newTestEnv(t)

	for i := 1; i <= 3; i++ {
		rec := env.do(t, http.MethodPost, "/api/v1/cart/items", rifleItem(fmt.Sprintf("r%d", i)))
		require.Equal(t, http.StatusOK, rec.Code)
	}
	rec := env.do(t, http.MethodPost, "/api/v1/cart/items", rifleItem("r4"))

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "Maximum 3 firearms per order.", decodeEnvelope(t, rec).Error.Message)
}

func TestAddItem_ContractViolation(t *testing.T) {
	env := newTestEnv(t)

	item := capItem()
	item.SKU = ""
	rec := env.do(t, http.MethodPost, "/api/v1/cart/items", item)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_ITEM", decodeEnvelope(t, rec).Error.Code)
}

func TestAddItem_InvalidJSON(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/v1/cart/items", `{"productId":`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_INPUT", decodeEnvelope(t, rec).Error.Code)
}

func TestAddItem_WrongContentType(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/cart/items", bytes.NewBufferString("x"))
	req.Header.Set("Content-Type", "text/plain")
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
}

// ============================================================================
// PUT / DELETE /api/v1/cart/items/{productId}
// ============================================================================

func TestUpdateItemQuantity_Clamps(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodPost, "/api/v1/cart/items", capItem())

	rec := env.do(t, http.MethodPut, "/api/v1/cart/items/cap-1", map[string]int{"quantity": 10})

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeData[MutationResponse](t, rec)
	assert.Equal(t, "Maximum quantity is 3", resp.Message)
	assert.Equal(t, 3, resp.Cart.Items[0].Quantity)
}

func TestUpdateItemQuantity_ZeroRemoves(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodPost, "/api/v1/cart/items", capItem())

	rec := env.do(t, http.MethodPut, "/api/v1/cart/items/cap-1", map[string]int{"quantity": 0})

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeData[MutationResponse](t, rec)
	assert.Equal(t, "Cap removed from cart", resp.Message)
	assert.Equal(t, domain.StatusEmpty, resp.Cart.Status)
}

func TestUpdateItemQuantity_MissingQuantity(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPut, "/api/v1/cart/items/cap-1", map[string]string{})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	e := decodeEnvelope(t, rec).Error
	assert.Equal(t, "VALIDATION_ERROR", e.Code)
	assert.Contains(t, e.Fields, "quantity")
}

func TestUpdateItemQuantity_AbsentLineIsNoop(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPut, "/api/v1/cart/items/ghost", map[string]int{"quantity": 2})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decodeData[MutationResponse](t, rec).Cart.Items)
}

func TestRemoveItem(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodPost, "/api/v1/cart/items", capItem())

	rec := env.do(t, http.MethodDelete, "/api/v1/cart/items/cap-1", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeData[MutationResponse](t, rec)
	assert.Equal(t, "Cap removed from cart", resp.Message)
	assert.Empty(t, resp.Cart.Items)
}

func TestClearCart(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodPost, "/api/v1/cart/items", capItem())
	env.do(t, http.MethodPost, "/api/v1/cart/items", rifleItem("r1"))

	rec := env.do(t, http.MethodDelete, "/api/v1/cart", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.StatusEmpty, decodeData[MutationResponse](t, rec).Cart.Status)
}

// ============================================================================
// Summary, drawer, checkout
// ============================================================================

func TestGetSummary_ShipToWV(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodPost, "/api/v1/cart/items", capItem())

	rec := env.do(t, http.MethodGet, "/api/v1/cart/summary?fulfillment=ship&state=wv", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	view := decodeData[SummaryView](t, rec)
	assert.Equal(t, int64(1499), view.Subtotal)
	assert.Equal(t, int64(899), view.Shipping)
	assert.Equal(t, int64(90), view.Tax)
	assert.Equal(t, int64(2488), view.Total)
	assert.Equal(t, "$8.99", view.ShippingDisplay)
	assert.Equal(t, "$24.88", view.TotalDisplay)
	assert.Equal(t, int64(6001), view.AmountForFreeShipping)
	require.NotNil(t, view.Destination)
	assert.Equal(t, "WV", view.Destination.State)
}

func TestGetSummary_NoDestination(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodPost, "/api/v1/cart/items", capItem())

	rec := env.do(t, http.MethodGet, "/api/v1/cart/summary", nil)

	view := decodeData[SummaryView](t, rec)
	assert.Equal(t, view.Subtotal, view.Total)
	assert.Equal(t, "Enter address for shipping", view.ShippingDisplay)
	assert.Nil(t, view.Destination)
}

func TestGetSummary_InvalidFulfillment(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/v1/cart/summary?fulfillment=drone", nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_INPUT", decodeEnvelope(t, rec).Error.Code)
}

func TestToggleDrawer(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/v1/cart/drawer/toggle", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decodeData[DrawerView](t, rec).IsOpen)

	rec = env.do(t, http.MethodPost, "/api/v1/cart/drawer/toggle", map[string]bool{"open": false})
	assert.False(t, decodeData[DrawerView](t, rec).IsOpen)

	rec = env.do(t, http.MethodPost, "/api/v1/cart/drawer/toggle", map[string]bool{"open": true})
	assert.True(t, decodeData[DrawerView](t, rec).IsOpen)
}

func TestBeginCheckout_EmptyCart(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/v1/cart/checkout", nil)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, engine.MsgEmptyCheckout, decodeEnvelope(t, rec).Error.Message)
}

func TestCheckoutFlow(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodPost, "/api/v1/cart/items", capItem())
	env.do(t, http.MethodPost, "/api/v1/cart/drawer/toggle", nil)

	rec := env.do(t, http.MethodPost, "/api/v1/cart/checkout", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeData[MutationResponse](t, rec).Cart.Items, 1)

	rec = env.do(t, http.MethodPost, "/api/v1/cart/checkout/complete", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeData[MutationResponse](t, rec)
	assert.Equal(t, domain.StatusEmpty, resp.Cart.Status)
	assert.False(t, resp.Cart.IsOpen)
}

// ============================================================================
// Persistence and session errors
// ============================================================================

func TestCartPersistsAcrossRegistryClose(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodPost, "/api/v1/cart/items", capItem())

	require.NoError(t, env.registry.Close(context.Background()))

	data, err := env.store.Get(context.Background(), persistence.DefaultKey+":"+testSession)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"cap-1"`)
}

type closedSessions struct{}

func (closedSessions) Acquire(context.Context, string) (*engine.Engine, func(), error) {
	return nil, nil, fmt.Errorf("acquire session: %w", session.ErrClosed)
}

func TestAcquire_RegistryClosed(t *testing.T) {
	router := NewRouter(closedSessions{}, health.NewHandler(), logger.Discard(), RouterConfig{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "SHUTTING_DOWN", decodeEnvelope(t, rec).Error.Code)
}

func TestRouter_HealthAndMetrics(t *testing.T) {
	env := newTestEnv(t)

	for _, path := range []string{"/health/live", "/health/ready", "/metrics"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		env.router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
}

func TestRouter_RateLimited(t *testing.T) {
	registry := session.NewRegistry(session.Config{Debounce: time.Hour}, memory.NewStore(),
		pricing.NewCalculator(), event.Nop{}, logger.Discard())
	t.Cleanup(func() { _ = registry.Close(context.Background()) })
	router := NewRouter(registry, health.NewHandler(), logger.Discard(), RouterConfig{
		RateLimitRPS:   1,
		RateLimitBurst: 1,
	})

	send := func() int {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil)
		req.Header.Set(middleware.HeaderSessionID, testSession)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, send())
	assert.Equal(t, http.StatusTooManyRequests, send())
}
