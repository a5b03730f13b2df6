package httpmiddleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func corsHandler(cfg CORSConfig) http.Handler {
	return CORS(cfg)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
}

func TestCORSPreflightDefaults(t *testing.T) {
	h := corsHandler(CORSConfig{AllowOrigins: []string{"https://shop.example"}})

	req := httptest.NewRequest(http.MethodOptions, "/api/orders", nil)
	req.Header.Set("Origin", "https://shop.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://shop.example", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "GET, POST, OPTIONS", w.Header().Get("Access-Control-Allow-Methods"))
	assert.Contains(t, w.Header().Values("Vary"), "Origin")
}

func TestCORSActualRequestExposesRequestID(t *testing.T) {
	h := corsHandler(CORSConfig{AllowOrigins: []string{"https://shop.example"}})

	req := httptest.NewRequest(http.MethodGet, "/api/products", nil)
	req.Header.Set("Origin", "https://SHOP.example")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	// Case-insensitive match echoing configured casing; the correlation
	// header is readable by default.
	assert.Equal(t, "https://shop.example", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, HeaderRequestID, w.Header().Get("Access-Control-Expose-Headers"))
}

func TestCORSDisallowedOrigin(t *testing.T) {
	h := corsHandler(CORSConfig{AllowOrigins: []string{"https://shop.example"}})

	req := httptest.NewRequest(http.MethodGet, "/api/products", nil)
	req.Header.Set("Origin", "https://evil.example")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
	assert.Empty(t, w.Header().Get("Access-Control-Expose-Headers"))
}

func TestCORSCredentialsNeverWildcard(t *testing.T) {
	h := corsHandler(CORSConfig{AllowOrigins: []string{"*"}, AllowCredentials: true})

	req := httptest.NewRequest(http.MethodGet, "/api/products", nil)
	req.Header.Set("Origin", "https://shop.example")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	// Wildcard plus credentials degrades to specific-origin matching, and
	// the unlisted origin is therefore rejected.
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}
