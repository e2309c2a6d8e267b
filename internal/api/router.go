package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	outboxPendingWarn   = 1000
	outboxDeadLetterMax = 100
)

// OutboxMonitor reports outbox events per status. Only the Postgres store
// with a relay provides one.
type OutboxMonitor interface {
	OutboxBacklog(ctx context.Context) (map[string]int64, error)
}

type RouterOptions struct {
	Registry *prometheus.Registry
	Outbox   OutboxMonitor
}

func NewRouter(h *Handlers, opts RouterOptions) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:*", "https://localhost:*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", healthHandler(h, opts.Outbox))

	if opts.Registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(opts.Registry, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/scrape", func(r chi.Router) {
			r.Post("/run", h.RunBatch)
			r.With(middleware.Timeout(60*time.Second)).Post("/preview", h.PreviewScrape)
		})

		r.Route("/urls", func(r chi.Router) {
			r.Get("/", h.ListURLs)
			r.Post("/", h.AddURL)
			r.Get("/counts", h.StatusCounts)
			r.Post("/import", h.ImportURLs)
			r.Put("/{urlID}", h.UpdateURL)
			r.Delete("/{urlID}", h.DeleteURL)
			r.Post("/{urlID}/reset", h.ResetURL)
			r.Get("/{urlID}/evolution", h.PriceEvolution)
		})

		r.Get("/stats", h.GetStats)
		r.Delete("/results", h.PurgeResults)
	})

	return r
}

// healthHandler reports ok, or degrades on a large outbox backlog.
func healthHandler(h *Handlers, outbox OutboxMonitor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		health := map[string]any{"status": "ok"}
		status := http.StatusOK

		if outbox != nil {
			counts, err := outbox.OutboxBacklog(r.Context())
			if err != nil {
				h.logger.Error("failed to read outbox backlog", "error", err)
				health["status"] = "error"
				health["message"] = "outbox unavailable"
				h.respondJSON(w, http.StatusServiceUnavailable, health)
				return
			}

			pending, deadLetter := counts["pending"], counts["dead_letter"]
			health["outbox"] = map[string]any{
				"pending":     pending,
				"dead_letter": deadLetter,
			}
			if pending > outboxPendingWarn {
				health["status"] = "warning"
				health["message"] = "high number of pending outbox events"
			}
			if deadLetter > outboxDeadLetterMax {
				health["status"] = "error"
				health["message"] = "high number of dead letter events"
				status = http.StatusServiceUnavailable
			}
		}

		h.respondJSON(w, status, health)
	}
}
