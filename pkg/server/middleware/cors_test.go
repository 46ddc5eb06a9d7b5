package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"logpipe-hq/logpipe/pkg/config"
)

func TestCORSMiddleware(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	tests := []struct {
		name           string
		cfg            config.CORSConfig
		method         string
		origin         string
		preflight      bool
		expectedStatus int
		expectedOrigin string
	}{
		{
			name:           "wildcard origin",
			cfg:            config.Defaults().Server.CORS,
			method:         http.MethodGet,
			origin:         "https://app.example.com",
			expectedStatus: http.StatusOK,
			expectedOrigin: "*",
		},
		{
			name:           "listed origin echoed",
			cfg:            config.CORSConfig{Enabled: true, AllowedOrigins: []string{"https://app.example.com"}},
			method:         http.MethodPost,
			origin:         "https://app.example.com",
			expectedStatus: http.StatusOK,
			expectedOrigin: "https://app.example.com",
		},
		{
			name:           "unlisted origin",
			cfg:            config.CORSConfig{Enabled: true, AllowedOrigins: []string{"https://app.example.com"}},
			method:         http.MethodGet,
			origin:         "https://evil.example.com",
			expectedStatus: http.StatusOK,
			expectedOrigin: "",
		},
		{
			name:           "preflight",
			cfg:            config.Defaults().Server.CORS,
			method:         http.MethodOptions,
			origin:         "https://app.example.com",
			preflight:      true,
			expectedStatus: http.StatusNoContent,
			expectedOrigin: "*",
		},
		{
			name:           "disabled",
			cfg:            config.CORSConfig{},
			method:         http.MethodGet,
			origin:         "https://app.example.com",
			expectedStatus: http.StatusOK,
			expectedOrigin: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/read", nil)
			req.Header.Set("Origin", tt.origin)
			if tt.preflight {
				req.Header.Set("Access-Control-Request-Method", http.MethodPost)
			}
			w := httptest.NewRecorder()

			CORSMiddleware(tt.cfg)(ok).ServeHTTP(w, req)

			if w.Code != tt.expectedStatus {
				t.Errorf("Status = %d, want %d", w.Code, tt.expectedStatus)
			}
			if got := w.Header().Get("Access-Control-Allow-Origin"); got != tt.expectedOrigin {
				t.Errorf("Allow-Origin = %q, want %q", got, tt.expectedOrigin)
			}
			if tt.preflight && w.Header().Get("Access-Control-Allow-Headers") == "" {
				t.Error("Expected Allow-Headers on preflight")
			}
		})
	}
}
