package http

import (
	"net/http"
	"time"

	"github.com/cwrk-planet/chat-sync/internal/security"
	httpmw "github.com/cwrk-planet/chat-sync/internal/transport/http/middleware"

	"github.com/go-chi/chi/v5"
	middlewareChi "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

type RouterDeps struct {
	Handler        *Handler
	WS             http.HandlerFunc
	Admin          *security.AdminVerifier
	AllowedOrigins []string
}

func NewRouter(d RouterDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(middlewareChi.RequestID)
	r.Use(middlewareChi.RealIP)
	r.Use(httpmw.Logging)
	r.Use(middlewareChi.Recoverer)

	origins := d.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", httpmw.HeaderUserID},
		ExposedHeaders:   []string{httpmw.HeaderRequestID},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// WS endpoint
	r.Get("/ws", d.WS)

	r.Route("/api", func(api chi.Router) {
		api.Use(middlewareChi.Timeout(30 * time.Second))

		api.Get("/channels/{id}/messages", d.Handler.ListMessages)

		api.Group(func(pr chi.Router) {
			pr.Use(httpmw.UserHeader)
			pr.Post("/channels/{id}/attachments", d.Handler.CreateAttachment)
			pr.Get("/whiteboard/{channelId}", d.Handler.GetWhiteboard)
			pr.Post("/whiteboard/{channelId}", d.Handler.SaveWhiteboard)
		})
	})

	r.Route("/admin", func(ad chi.Router) {
		ad.Use(httpmw.AdminAuth(d.Admin))
		ad.Delete("/messages/{id}", d.Handler.DeleteMessage)
		ad.Get("/stats", d.Handler.Stats)
		ad.Get("/users/{id}/messages", d.Handler.UserMessages)
	})

	// health
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	return r
}
