package main

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mesbot/mesbot/internal/middleware"
)

func TestRouterWebhook(t *testing.T) {
	var hits int
	r := newRouter(routes{
		Health:        func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) },
		WebhookPath:   "/hook",
		WebhookSecret: "s3cret",
		Webhook: func(w http.ResponseWriter, _ *http.Request) {
			hits++
			w.WriteHeader(http.StatusOK)
		},
	})

	tests := []struct {
		name   string
		method string
		path   string
		secret string
		want   int
	}{
		{"get on webhook", http.MethodGet, "/hook", "s3cret", http.StatusMethodNotAllowed},
		{"post without secret", http.MethodPost, "/hook", "", http.StatusForbidden},
		{"post with secret", http.MethodPost, "/hook", "s3cret", http.StatusOK},
		{"health", http.MethodGet, "/healthz", "", http.StatusOK},
		{"heartbeat", http.MethodGet, "/health", "", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			if tt.secret != "" {
				req.Header.Set(middleware.SecretHeader, tt.secret)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			if w.Code != tt.want {
				t.Errorf("Expected status %d, got %d", tt.want, w.Code)
			}
		})
	}

	if hits != 1 {
		t.Errorf("Expected webhook handler reached once, got %d", hits)
	}
}

func TestRouterPollingHasNoWebhook(t *testing.T) {
	r := newRouter(routes{
		Health: func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) },
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
}
