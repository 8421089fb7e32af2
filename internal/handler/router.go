// Package handler - HTTP API сервиса комментариев.
package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/UkralStul/comments-service/internal/auth"
	"github.com/UkralStul/comments-service/internal/comments"
	"github.com/UkralStul/comments-service/internal/dataloader"
	"github.com/UkralStul/comments-service/internal/files"
	"github.com/UkralStul/comments-service/internal/logging"
	"github.com/UkralStul/comments-service/internal/search"
	"github.com/UkralStul/comments-service/internal/storage"
)

// Options - зависимости HTTP-слоя.
type Options struct {
	Comments       *comments.Service
	Search         *search.Service
	Events         http.Handler
	Files          files.Store
	Store          storage.Storage
	JWTSecret      []byte
	MaxUploadBytes int64
}

type api struct {
	comments  *comments.Service
	search    *search.Service
	files     files.Store
	maxUpload int64
}

// NewRouter собирает chi-роутер со всеми маршрутами.
func NewRouter(o Options) http.Handler {
	if o.MaxUploadBytes <= 0 {
		o.MaxUploadBytes = comments.DefaultMaxUploadBytes
	}
	a := &api{
		comments:  o.Comments,
		search:    o.Search,
		files:     o.Files,
		maxUpload: o.MaxUploadBytes,
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(logging.RequestLogger)
	router.Use(middleware.Recoverer)
	router.Use(auth.Middleware(o.JWTSecret, authError))
	router.Use(func(next http.Handler) http.Handler {
		return dataloader.Middleware(o.Store, next)
	})

	router.Get("/api/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	})

	router.Route("/api/comments", func(r chi.Router) {
		r.Get("/", a.listComments)
		r.Post("/", a.createComment)
		r.Get("/captcha", a.issueChallenge)
		r.With(auth.RequireAuth(authError)).Post("/upload", a.uploadOrphan)
		r.With(auth.RequireStaff(authError)).Delete("/admin/comments/{id}", a.deleteComment)
		r.Get("/{id}", a.getComment)
		r.With(auth.RequireAuth(authError)).Post("/{id}/upload", a.attachToComment)
	})
	router.Get("/api/search/comments", a.searchComments)

	if o.Events != nil {
		router.Handle("/ws/comments", o.Events)
	}
	router.Get("/media/*", a.serveMedia)

	return router
}
