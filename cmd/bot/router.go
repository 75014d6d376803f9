package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/mesbot/mesbot/internal/middleware"
)

// routes lists what the HTTP server exposes. Webhook is nil in polling mode.
type routes struct {
	Health        http.HandlerFunc
	WebhookPath   string
	WebhookSecret string
	Webhook       http.HandlerFunc
}

func newRouter(rt routes) chi.Router {
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))

	r.Get("/healthz", rt.Health)

	// chi answers 405 for other methods on a Post route.
	if rt.Webhook != nil {
		r.With(middleware.WebhookSecret(rt.WebhookSecret)).Post(rt.WebhookPath, rt.Webhook)
	}
	return r
}
