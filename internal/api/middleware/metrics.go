package middleware

import (
	"net/http"

	"github.com/cloo-solutions/meddocs/internal/metrics"
)

// Metrics counts requests by route pattern and status so path parameters
// do not explode label cardinality.
func Metrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)
		metrics.RecordHTTPRequest(routePattern(r), rec.code())
	})
}
