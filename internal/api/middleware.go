package api

import (
	"context"
	"net/http"
	"strconv"
)

// accountIDKey is the context key for the authenticated account id.
type accountIDKey struct{}

// headerAccountID carries the caller's authenticated account id, installed by
// the upstream gateway after authentication. Session handling itself is out
// of scope for this service.
const headerAccountID = "X-Account-ID"

// headerIdempotencyKey dedups network retries of the same logical transfer.
const headerIdempotencyKey = "X-Idempotency-Key"

// requireAccount extracts the authenticated account id from the request
// headers and stores it in the context. Requests without a valid id are
// rejected before reaching any handler.
func requireAccount(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := r.Header.Get(headerAccountID)
		if raw == "" {
			sendError(w, http.StatusUnauthorized, "UNAUTHENTICATED", "missing "+headerAccountID+" header")
			return
		}

		accountID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || accountID <= 0 {
			sendError(w, http.StatusUnauthorized, "UNAUTHENTICATED", "invalid "+headerAccountID+" header")
			return
		}

		ctx := context.WithValue(r.Context(), accountIDKey{}, accountID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// accountIDFromContext returns the authenticated account id stored by
// requireAccount.
func accountIDFromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(accountIDKey{}).(int64)
	return id, ok
}
