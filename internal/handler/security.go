package handler

import (
	"net/http"
)

// requireScope authenticates the X-API-Key header and checks the key carries
// the given scope. The verifier hashes and compares in constant time.
func (h *Handler) requireScope(scope string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h.verifier == nil {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		key := r.Header.Get("X-API-Key")
		if key == "" {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		if _, err := h.verifier.Verify(r.Context(), key, scope); err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		next(w, r)
	}
}
