package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Router wires the handlers into a chi mux.
type Router struct {
	handler *Handler
}

// NewRouter creates a new API router
func NewRouter(handler *Handler) *Router {
	return &Router{handler: handler}
}

// Routes returns the HTTP handler for the status server.
func (r *Router) Routes() http.Handler {
	mux := chi.NewRouter()

	mux.Use(middleware.Recoverer)
	mux.Use(middleware.RealIP)
	mux.Use(middleware.Timeout(30 * time.Second))

	mux.Route("/api", func(mux chi.Router) {
		mux.Get("/health", r.handler.GetHealth)
		mux.Get("/status", r.handler.GetStatus)
		mux.Get("/config", r.handler.GetConfig)
		mux.Get("/ws", r.handler.HandleWebSocket)
	})

	return mux
}
