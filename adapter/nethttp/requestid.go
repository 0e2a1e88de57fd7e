package nethttp

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

// DefaultRequestIDHeader carries the request ID in both directions.
const DefaultRequestIDHeader = "X-Request-ID"

type requestIDKey struct{}

// RequestIDFromContext returns the ID stored by RequestID, or "".
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// RequestIDConfig configures RequestID.
type RequestIDConfig struct {
	// HeaderName defaults to DefaultRequestIDHeader.
	HeaderName string

	// TrustIncoming reuses an ID sent by the client instead of
	// generating one.
	TrustIncoming bool
}

// RequestID assigns every request an ID so admission logs can be
// correlated with access logs. IDs are UUID v7, which sort by time.
func RequestID(cfg RequestIDConfig) func(http.Handler) http.Handler {
	headerName := cfg.HeaderName
	if headerName == "" {
		headerName = DefaultRequestIDHeader
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := ""
			if cfg.TrustIncoming {
				id = r.Header.Get(headerName)
			}

			if id == "" {
				id = newRequestID()
			}

			r.Header.Set(headerName, id)
			w.Header().Set(headerName, id)

			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
		})
	}
}

func newRequestID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String()
	}

	return id.String()
}
