package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/mmtuentertainment/wvwo-storefront-sub002/pkg/httputil"
	"github.com/mmtuentertainment/wvwo-storefront-sub002/pkg/logger"
)

// HeaderSessionID identifies the shopper's cart session.
const HeaderSessionID = "X-Session-ID"

// Session resolves the cart session id from the X-Session-ID header. A missing
// header starts a new session; a malformed one is rejected with 400. The
// resolved id is echoed back and stored in the request context.
func Session() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(HeaderSessionID)
			if id == "" {
				id = uuid.New().String()
			} else if parsed, err := uuid.Parse(id); err != nil {
				httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
					Error: &httputil.ErrorResponse{
						Code:      "INVALID_SESSION",
						Message:   "X-Session-ID must be a UUID",
						RequestID: logger.CorrelationIDFromContext(r.Context()),
					},
				})
				return
			} else {
				id = parsed.String()
			}

			w.Header().Set(HeaderSessionID, id)
			next.ServeHTTP(w, r.WithContext(logger.WithSessionID(r.Context(), id)))
		})
	}
}
