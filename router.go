package gochatrelay

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/ChatRelay/go-chat-relay/internal/handlers"
	"github.com/ChatRelay/go-chat-relay/internal/store"
)

// buildRouter assembles the HTTP surface under Config.BasePath. Every
// request is stamped with this instance's origin before any handler runs,
// so store writes carry it onto their change events and fanout channels
// can tell their own writes from relayed ones.
func (r *Relay) buildRouter() http.Handler {
	router := chi.NewRouter()

	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(chimiddleware.Recoverer)
	router.Use(r.originMiddleware)

	routes := handlers.Routes(handlers.Dependencies{
		Config:   r.Config,
		Presence: r.presenceService,
		Friends:  r.friendsService,
		Verifier: r.verifier,
		Limiters: r.limiters,
		Logger:   r.logger,
	})

	basePath := r.Config.BasePath
	if basePath == "" || basePath == "/" {
		router.Mount("/", routes)
	} else {
		router.Mount(basePath, routes)
	}

	return router
}

func (r *Relay) originMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		next.ServeHTTP(w, req.WithContext(store.WithOrigin(req.Context(), r.origin)))
	})
}
