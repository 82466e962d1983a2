package rest

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"vision-scan/internal/container"
)

func NewRouter(c *container.Container) http.Handler {
	h := NewHandlers(c.Controller, c.Store)

	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/ping", PingHandler)
	r.Get("/state", h.StateHandler)
	r.Get("/metrics", h.MetricsHandler)
	r.Get("/ws", h.WebSocketHandler)

	r.Post("/start", h.StartHandler)
	r.Post("/permission/retry", h.RetryPermissionHandler)
	r.Post("/reset", h.ResetHandler)
	r.Post("/notice/dismiss", h.DismissNoticeHandler)

	r.Route("/scan", func(r chi.Router) {
		r.Post("/capture", h.CaptureHandler)
		r.Post("/gallery", h.GalleryHandler)
	})

	r.Route("/live", func(r chi.Router) {
		r.Post("/start", h.StartLiveHandler)
		r.Post("/stop", h.StopLiveHandler)
		r.Post("/lock", h.LockHandler)
		r.Post("/rescan", h.RescanHandler)
	})

	r.Route("/results", func(r chi.Router) {
		r.Get("/", h.ListResultsHandler)
		r.Delete("/{id}", h.DeleteResultHandler)
	})

	return r
}

func PingHandler(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte("pong"))
}
