// Package api exposes the library and tracer operations over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/franz/xeenaps-tracer/internal/blob"
	"github.com/franz/xeenaps-tracer/internal/detail"
	"github.com/franz/xeenaps-tracer/internal/itemsync"
	"github.com/franz/xeenaps-tracer/internal/library"
	"github.com/franz/xeenaps-tracer/internal/quote"
	"github.com/franz/xeenaps-tracer/internal/report"
	"github.com/franz/xeenaps-tracer/internal/store"
	"github.com/franz/xeenaps-tracer/internal/tracer"
	"github.com/franz/xeenaps-tracer/internal/util"
)

// ItemStore reads and writes library items.
type ItemStore interface {
	itemsync.MetadataStore
	GetItem(ctx context.Context, id string) (*library.Item, error)
	FetchItems(ctx context.Context, q store.Query) (store.Page[library.Item], error)
}

// Options wires a Server. Tracer, AI, Citer and Quotes may be nil; the
// routes that need them answer 503.
type Options struct {
	Items  ItemStore
	Tracer *tracer.Service
	Blobs  blob.Fetcher
	AI     itemsync.Generator
	Citer  detail.Citer
	Quotes quote.Extractor
	Events *report.EventLogger
	Now    func() time.Time
}

// Server routes HTTP requests to item sessions and the tracer service.
type Server struct {
	items    ItemStore
	tracer   *tracer.Service
	citer    detail.Citer
	quotes   quote.Extractor
	now      func() time.Time
	sessions *sessions
}

// New creates a server
func New(opts Options) *Server {
	s := &Server{
		items:  opts.Items,
		tracer: opts.Tracer,
		citer:  opts.Citer,
		quotes: opts.Quotes,
		now:    opts.Now,
	}
	if s.now == nil {
		s.now = time.Now
	}
	s.sessions = newSessions(opts.Items, itemsync.Options{
		Store:  opts.Items,
		Blobs:  opts.Blobs,
		AI:     opts.AI,
		Events: opts.Events,
	}, opts.Citer)
	return s
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Route("/items", func(r chi.Router) {
			r.Get("/", s.handleListItems)
			r.Route("/{itemID}", func(r chi.Router) {
				r.Get("/", s.handleGetItem)
				r.Delete("/", s.handleDeleteItem)
				r.Post("/bookmark", s.handleToggle(itemsync.FlagBookmarked))
				r.Post("/favorite", s.handleToggle(itemsync.FlagFavorite))
				r.Post("/insights", s.handleGenerateInsights)
				r.Put("/insights", s.handleSaveInsights)
				r.Post("/translate", s.handleTranslate)
				r.Post("/cite", s.handleCite)
				r.Post("/quotes", s.handleExtractQuotes)
			})
		})
		s.tracerRoutes(r)
	})
	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		util.DebugLog("%s %s -> %d (%s)", r.Method, r.URL.Path, ww.Status(), time.Since(start).Round(time.Millisecond))
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		util.WarnLog("Failed to encode response: %v", err)
	}
}

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, util.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, util.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, util.ErrNoContent):
		return http.StatusUnprocessableEntity
	case errors.Is(err, util.ErrBusy):
		return http.StatusConflict
	case errors.Is(err, util.ErrRemoteWrite), errors.Is(err, util.ErrAIEmpty):
		return http.StatusBadGateway
	case errors.Is(err, util.ErrInvalidConfig):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		util.ErrorLog("Request failed: %v", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func decodeBody(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w: %v", util.ErrInvalidInput, err)
	}
	return nil
}

func unavailable(what string) error {
	return fmt.Errorf("%s is not configured: %w", what, util.ErrInvalidConfig)
}
