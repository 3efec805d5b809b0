package router

import (
	"net/http"

	presentationHandler "collabdeck/internal/presentation"
	"collabdeck/middleware"
	"collabdeck/socket"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

func Setup(h *presentationHandler.PresentationHandler, hub *socket.Hub, jwtSecret string, allowedOrigins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", presentationHandler.PasswordHeader},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthMiddleware(jwtSecret))

		r.Get("/ws", func(w http.ResponseWriter, r *http.Request) {
			userID, _ := middleware.UserIDFromContext(r.Context())
			socket.ServeWs(hub, w, r, userID)
		})

		r.Mount("/api/presentations", h.Routes())
		r.Mount("/api/teams", h.TeamRoutes())
	})

	return r
}
