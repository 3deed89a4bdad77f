package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/Jeff-Emmett/collective-boredom-dial/internal/broadcast"
	"github.com/Jeff-Emmett/collective-boredom-dial/internal/handlers"
	"github.com/Jeff-Emmett/collective-boredom-dial/internal/middleware"
	"github.com/Jeff-Emmett/collective-boredom-dial/internal/registry"
)

// New wires the administrative HTTP surface and the websocket endpoint
// over a shared registry and dispatcher.
func New(reg *registry.Registry, dispatcher *broadcast.Dispatcher) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestContextMiddleware)
	r.Use(middleware.CORSMiddleware)

	// Handlers
	roomHandler := handlers.NewRoomHandler(reg)
	wsHandler := handlers.NewWSHandler(reg, dispatcher)

	// Routes
	r.Get("/health", roomHandler.Health)
	r.Get("/ws", wsHandler.Serve)

	r.Route("/api", func(r chi.Router) {
		r.Route("/rooms", func(r chi.Router) {
			r.Post("/", roomHandler.Create)
			r.Get("/{roomID}", roomHandler.GetStats)
		})
	})

	return r
}
