package router

import (
	"net/http"
	"strings"
)

const ingestTokenHeader = "X-Ingest-Token"
const ingestTokenQuery = "ingest_token"

// requireIngestToken enforces a shared secret for document ingestion
// endpoints. Scanner gateways submit jobs with the token in a header;
// the query form exists for integrations that cannot set headers.
// When expected is empty, the middleware is a no-op.
func requireIngestToken(expected string) func(http.Handler) http.Handler {
	expected = strings.TrimSpace(expected)
	return func(next http.Handler) http.Handler {
		if expected == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := strings.TrimSpace(r.Header.Get(ingestTokenHeader))
			if token == "" {
				token = strings.TrimSpace(r.URL.Query().Get(ingestTokenQuery))
			}
			if token == "" || token != expected {
				http.Error(w, "invalid ingest token", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
