package nethttp

import (
	"encoding/json"
	"net/http"

	"github.com/vitalvas/gatekeeper/admission"
)

// WriteRejection writes the rate limit headers of v and, when v is a
// rejection, the matching status with a JSON error body.
func WriteRejection(w http.ResponseWriter, v admission.Verdict) {
	admission.WriteRateLimitHeaders(w.Header(), v)

	if v.Rejection == nil {
		return
	}

	if challenge := v.Rejection.Challenge(); challenge != "" {
		w.Header().Set("WWW-Authenticate", challenge)
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(v.Rejection.Kind.Status())

	_ = json.NewEncoder(w).Encode(v.Rejection.Body())
}
