package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func NewRouter(app *App, mediaDir string) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/ping", PingHandler)

	r.Route("/api", func(r chi.Router) {
		r.Get("/gating", app.GatingHandler)

		r.Route("/videos", func(r chi.Router) {
			r.Post("/", app.SubmitHandler)
			r.Get("/", app.ListHandler)
			r.Get("/{id}", app.GetHandler)
			r.Post("/{id}/vote", app.VoteHandler)
			r.Post("/{id}/resubmit", app.ResubmitHandler)
			r.Delete("/{id}", app.DeleteHandler)
		})

		r.Route("/reviews", func(r chi.Router) {
			r.Post("/{id}/claim", app.ClaimReviewHandler)
			r.Post("/{id}/approve", app.ApproveHandler)
			r.Post("/{id}/reject", app.RejectHandler)
			r.Post("/{id}/revise", app.ReviseHandler)
		})

		r.Post("/admin/sweep", app.SweepHandler)
	})

	if mediaDir != "" {
		fileServer := http.FileServer(http.Dir(mediaDir))
		r.Handle("/media/*", http.StripPrefix("/media", fileServer))
	}

	return r
}
