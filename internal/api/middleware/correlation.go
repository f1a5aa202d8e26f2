package middleware

import (
	"net/http"

	"github.com/nitrotech24/disputa-portal-conferencia/internal/core"
)

const CorrelationIDHeader = "X-Correlation-ID"

// CorrelationIDMiddleware takes the correlation id from the request header or creates one,
// echoes it in the response and stores it as the run id of the request context.
func CorrelationIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := core.WithRunID(r.Context(), r.Header.Get(CorrelationIDHeader))
		w.Header().Set(CorrelationIDHeader, core.RunID(ctx))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
