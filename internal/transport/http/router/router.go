package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/vedran77/pulsechat/internal/service"
	"github.com/vedran77/pulsechat/internal/transport/http/handlers"
	"github.com/vedran77/pulsechat/internal/transport/http/middleware"
	"github.com/vedran77/pulsechat/internal/transport/ws"
)

// Services groups everything the HTTP surface depends on.
type Services struct {
	Tokens    *service.TokenService
	Directory *service.DirectoryService
	Channels  *service.ChannelService
	Messages  *service.MessageService
	Hub       *ws.Hub
}

// New creates and configures the HTTP router.
func New(logger zerolog.Logger, s Services) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Metrics)
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	tokenHandler := handlers.NewTokenHandler(s.Tokens, logger)
	userHandler := handlers.NewUserHandler(s.Directory, logger)
	channelHandler := handlers.NewChannelHandler(s.Channels, logger)
	messageHandler := handlers.NewMessageHandler(s.Messages, s.Channels, logger)

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	r.Post("/api/token", tokenHandler.Issue)
	r.Get("/ws", ws.ServeWS(s.Hub, s.Tokens))

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(s.Tokens))

		r.Get("/users", userHandler.List)
		r.Get("/users/me", userHandler.Me)
		r.Patch("/users/me", userHandler.UpdateMe)

		r.Post("/channels", channelHandler.Create)
		r.Get("/channels/{id}", channelHandler.Get)
		r.Get("/channels/{id}/messages", messageHandler.List)
		r.Post("/channels/{id}/messages", messageHandler.Send)
	})

	return r
}
