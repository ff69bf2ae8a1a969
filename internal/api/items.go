package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/franz/xeenaps-tracer/internal/detail"
	"github.com/franz/xeenaps-tracer/internal/itemsync"
	"github.com/franz/xeenaps-tracer/internal/library"
	"github.com/franz/xeenaps-tracer/internal/store"
	"github.com/franz/xeenaps-tracer/internal/util"
)

// sessions keeps one detail view per opened item, so concurrent requests
// for the same item share its in-flight gates and optimistic state.
type sessions struct {
	mu    sync.Mutex
	views map[string]*detail.View

	items ItemStore
	opts  itemsync.Options
	citer detail.Citer
}

func newSessions(items ItemStore, opts itemsync.Options, citer detail.Citer) *sessions {
	return &sessions{
		views: make(map[string]*detail.View),
		items: items,
		opts:  opts,
		citer: citer,
	}
}

// get returns the view for id. The row is read from the store on every
// call: a new view is hydrated, an existing one is rebased on the row so
// edits made elsewhere are never overwritten by a stale copy.
func (s *sessions) get(ctx context.Context, id string) (*detail.View, error) {
	it, err := s.items.GetItem(ctx, id)
	if err != nil {
		return nil, err
	}
	if it == nil {
		s.drop(id)
		return nil, fmt.Errorf("item %s: %w", id, util.ErrNotFound)
	}

	s.mu.Lock()
	v, ok := s.views[id]
	s.mu.Unlock()
	if ok {
		v.Reload(*it)
		return v, nil
	}

	opts := s.opts
	opts.Observer = &sessionObserver{sessions: s, id: id}
	v = detail.NewView(itemsync.New(*it, opts), detail.Options{
		Citer:     s.citer,
		Confirmer: confirmed{},
	})

	s.mu.Lock()
	if existing, ok := s.views[id]; ok {
		s.mu.Unlock()
		existing.Reload(*it)
		return existing, nil
	}
	s.views[id] = v
	s.mu.Unlock()

	if err := v.Mount(ctx); err != nil {
		util.WarnLog("Hydration of %s failed: %v", id, err)
	}
	return v, nil
}

func (s *sessions) drop(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.views, id)
}

// sessionObserver forgets a session once its item is gone or stale.
type sessionObserver struct {
	sessions *sessions
	id       string
}

func (o *sessionObserver) ItemUpdated(library.Item) {}
func (o *sessionObserver) ItemDeleted(string)       { o.sessions.drop(o.id) }
func (o *sessionObserver) RefreshRequested()        { o.sessions.drop(o.id) }

// confirmed stands in for the confirmation dialog: an HTTP DELETE is
// already an explicit request.
type confirmed struct{}

func (confirmed) Confirm(context.Context, string) (bool, error) { return true, nil }

func queryInt(r *http.Request, key string) int {
	n, _ := strconv.Atoi(r.URL.Query().Get(key))
	return n
}

func (s *Server) handleListItems(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, err := s.items.FetchItems(r.Context(), store.Query{
		Page:      queryInt(r, "page"),
		Limit:     queryInt(r, "limit"),
		Search:    q.Get("search"),
		SortField: q.Get("sort"),
		SortDir:   q.Get("dir"),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// withView resolves the item session of the request.
func (s *Server) withView(fn func(w http.ResponseWriter, r *http.Request, v *detail.View)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v, err := s.sessions.get(r.Context(), chi.URLParam(r, "itemID"))
		if err != nil {
			writeError(w, err)
			return
		}
		fn(w, r, v)
	}
}

func (s *Server) handleGetItem(w http.ResponseWriter, r *http.Request) {
	s.withView(func(w http.ResponseWriter, r *http.Request, v *detail.View) {
		writeJSON(w, http.StatusOK, v.Item())
	})(w, r)
}

func (s *Server) handleDeleteItem(w http.ResponseWriter, r *http.Request) {
	s.withView(func(w http.ResponseWriter, r *http.Request, v *detail.View) {
		if _, err := v.Delete(r.Context()); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})(w, r)
}

func (s *Server) handleToggle(f itemsync.Flag) http.HandlerFunc {
	return s.withView(func(w http.ResponseWriter, r *http.Request, v *detail.View) {
		var err error
		if f == itemsync.FlagFavorite {
			err = v.ToggleFavorite(r.Context())
		} else {
			err = v.ToggleBookmark(r.Context())
		}
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, v.Item())
	})
}

// startedResponse reports whether an operation ran, plus the item after it.
type startedResponse struct {
	Started bool         `json:"started"`
	Item    library.Item `json:"item"`
}

func (s *Server) handleGenerateInsights(w http.ResponseWriter, r *http.Request) {
	s.withView(func(w http.ResponseWriter, r *http.Request, v *detail.View) {
		started, err := v.GenerateInsights(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		status := http.StatusOK
		if !started {
			status = http.StatusAccepted
		}
		writeJSON(w, status, startedResponse{Started: started, Item: v.Item()})
	})(w, r)
}

func (s *Server) handleSaveInsights(w http.ResponseWriter, r *http.Request) {
	s.withView(func(w http.ResponseWriter, r *http.Request, v *detail.View) {
		if err := v.SaveInsights(r.Context()); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, v.Item())
	})(w, r)
}

type translateRequest struct {
	Section string `json:"section"`
	Lang    string `json:"lang"`
}

func (s *Server) handleTranslate(w http.ResponseWriter, r *http.Request) {
	s.withView(func(w http.ResponseWriter, r *http.Request, v *detail.View) {
		var req translateRequest
		if err := decodeBody(r, &req); err != nil {
			writeError(w, err)
			return
		}
		started, err := v.Translate(r.Context(), req.Section, req.Lang)
		if err != nil {
			writeError(w, err)
			return
		}
		status := http.StatusOK
		if !started {
			status = http.StatusAccepted
		}
		writeJSON(w, status, startedResponse{Started: started, Item: v.Item()})
	})(w, r)
}

type citeRequest struct {
	Style    string `json:"style"`
	Language string `json:"language"`
}

func (s *Server) handleCite(w http.ResponseWriter, r *http.Request) {
	if s.citer == nil {
		writeError(w, unavailable("citation service"))
		return
	}
	s.withView(func(w http.ResponseWriter, r *http.Request, v *detail.View) {
		var req citeRequest
		if err := decodeBody(r, &req); err != nil {
			writeError(w, err)
			return
		}
		c, err := v.Cite(r.Context(), req.Style, req.Language)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, c)
	})(w, r)
}

type extractRequest struct {
	Query string `json:"query"`
}

func (s *Server) handleExtractQuotes(w http.ResponseWriter, r *http.Request) {
	if s.quotes == nil {
		writeError(w, unavailable("quote extraction"))
		return
	}
	s.withView(func(w http.ResponseWriter, r *http.Request, v *detail.View) {
		var req extractRequest
		if err := decodeBody(r, &req); err != nil {
			writeError(w, err)
			return
		}
		if strings.TrimSpace(req.Query) == "" {
			writeError(w, fmt.Errorf("query cannot be empty: %w", util.ErrInvalidInput))
			return
		}
		it := v.Item()
		if !it.HasContent() {
			writeError(w, fmt.Errorf("item %s: %w", it.ID, util.ErrNoContent))
			return
		}
		found, err := s.quotes.ExtractQuotes(r.Context(), it.ID, req.Query, it.ExtractedJSONID, it.StorageNodeURL)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"quotes": found})
	})(w, r)
}
