package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"chaty/internal/app/server/handlers"
	"chaty/internal/config"
	"chaty/pkg/middleware"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handlers groups everything the router mounts.
type Handlers struct {
	Health        *handlers.HealthHandler
	WS            *handlers.WSHandler
	Conversations *handlers.ConversationHandler
	Tokens        middleware.TokenValidator
}

type Server struct {
	log  *slog.Logger
	http *http.Server
}

func NewServer(log *slog.Logger, cfg config.Config, h Handlers) *Server {
	return &Server{
		log: log,
		http: &http.Server{
			Addr:        cfg.Service.Add,
			Handler:     NewRouter(log, cfg, h),
			ReadTimeout: cfg.HTTP.ReadTimeout,
			// websocket writes set their own deadlines after the upgrade
			WriteTimeout: cfg.HTTP.WriteTimeout,
		},
	}
}

func NewRouter(log *slog.Logger, cfg config.Config, h Handlers) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Metrics)
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogger(log))
	r.Use(chimw.Recoverer)
	r.Use(middleware.TracerMiddleware(cfg.Service.Name))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.HTTP.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", h.Health.Health)
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthMiddleware(h.Tokens))

		r.Get("/ws", h.WS.Handler)
		r.Route("/conversations", func(r chi.Router) {
			r.Get("/", h.Conversations.List)
			r.Get("/{id}", h.Conversations.Get)
			r.Get("/{id}/messages", h.Conversations.Messages)
			r.Post("/{id}/messages", h.Conversations.SendMessage)
			r.Post("/{id}/read", h.Conversations.MarkRead)
		})
	})
	return r
}

// Start blocks until the server stops. A graceful Shutdown is not an error.
func (s *Server) Start() error {
	s.log.Info("server - start - listening", "addr", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
