package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/franz/xeenaps-tracer/internal/aiproxy"
	"github.com/franz/xeenaps-tracer/internal/store"
)

func (s *Server) tracerRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(s.requireTracer)

		r.Get("/projects", s.handleListProjects)
		r.Post("/projects", s.handleSaveProject)
		r.Route("/projects/{projectID}", func(r chi.Router) {
			r.Get("/", s.handleGetProject)
			r.Delete("/", s.handleDeleteProject)
			r.Post("/refine", s.handleRefine)

			r.Get("/logs", s.handleListLogs)
			r.Post("/logs", s.handleSaveLog)
			r.Get("/references", s.handleListReferences)
			r.Post("/references", s.handleLinkReference)
			r.Get("/todos", s.handleListTodos)
			r.Post("/todos", s.handleSaveTodo)
			r.Get("/finance", s.handleListFinance)
			r.Post("/finance", s.handleSaveFinance)
			r.Get("/finance/export", s.handleExportFinance)
		})

		r.Delete("/logs/{id}", s.deleteHandler(s.tracerDeleteLog))
		r.Delete("/references/{id}", s.deleteHandler(s.tracerUnlink))
		r.Post("/references/{id}/quotes", s.handleAppendQuotes)
		r.Delete("/todos/{id}", s.deleteHandler(s.tracerDeleteTodo))
		r.Get("/todos/pending", s.handlePendingTodos)
		r.Delete("/finance/{id}", s.deleteHandler(s.tracerDeleteFinance))
		r.Post("/translate", s.handleTranslateField)
	})
}

func (s *Server) requireTracer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.tracer == nil {
			writeError(w, unavailable("tracer"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func projectID(r *http.Request) string {
	return chi.URLParam(r, "projectID")
}

// respond writes v, or the error when err is set.
func respond(w http.ResponseWriter, status int, v any, err error) {
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, status, v)
}

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, err := s.tracer.FetchProjects(r.Context(), store.Query{
		Page:      queryInt(r, "page"),
		Limit:     queryInt(r, "limit"),
		Search:    q.Get("search"),
		SortField: q.Get("sort"),
		SortDir:   q.Get("dir"),
	})
	respond(w, http.StatusOK, page, err)
}

func (s *Server) handleGetProject(w http.ResponseWriter, r *http.Request) {
	p, err := s.tracer.GetProject(r.Context(), projectID(r))
	respond(w, http.StatusOK, p, err)
}

func (s *Server) handleSaveProject(w http.ResponseWriter, r *http.Request) {
	var p store.Project
	if err := decodeBody(r, &p); err != nil {
		writeError(w, err)
		return
	}
	err := s.tracer.SaveProject(r.Context(), &p)
	respond(w, http.StatusOK, &p, err)
}

func (s *Server) handleDeleteProject(w http.ResponseWriter, r *http.Request) {
	if err := s.tracer.DeleteProject(r.Context(), projectID(r)); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type refineRequest struct {
	Field string             `json:"field"`
	Value string             `json:"value"`
	Mode  aiproxy.RefineMode `json:"mode"`
}

func (s *Server) handleRefine(w http.ResponseWriter, r *http.Request) {
	var req refineRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	text, err := s.tracer.RefineField(r.Context(), projectID(r), req.Field, req.Value, req.Mode)
	respond(w, http.StatusOK, map[string]string{"text": text}, err)
}

type translateFieldRequest struct {
	Text string `json:"text"`
	Lang string `json:"lang"`
}

func (s *Server) handleTranslateField(w http.ResponseWriter, r *http.Request) {
	var req translateFieldRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	text, err := s.tracer.TranslateField(r.Context(), req.Text, req.Lang)
	respond(w, http.StatusOK, map[string]string{"text": text}, err)
}

func (s *Server) handleListLogs(w http.ResponseWriter, r *http.Request) {
	logs, err := s.tracer.FetchLogs(r.Context(), projectID(r))
	respond(w, http.StatusOK, logs, err)
}

type saveLogRequest struct {
	Log     store.Log        `json:"log"`
	Content store.LogContent `json:"content"`
}

func (s *Server) handleSaveLog(w http.ResponseWriter, r *http.Request) {
	var req saveLogRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	req.Log.ProjectID = projectID(r)
	err := s.tracer.SaveLog(r.Context(), &req.Log, req.Content)
	respond(w, http.StatusOK, &req.Log, err)
}

func (s *Server) handleListReferences(w http.ResponseWriter, r *http.Request) {
	refs, err := s.tracer.FetchReferences(r.Context(), projectID(r))
	respond(w, http.StatusOK, refs, err)
}

type linkRequest struct {
	CollectionID string `json:"collectionId"`
}

func (s *Server) handleLinkReference(w http.ResponseWriter, r *http.Request) {
	var req linkRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	ref, err := s.tracer.LinkReference(r.Context(), projectID(r), req.CollectionID)
	respond(w, http.StatusCreated, ref, err)
}

type quoteInput struct {
	OriginalText string `json:"originalText"`
	EnhancedText string `json:"enhancedText"`
	Lang         string `json:"lang"`
}

// handleAppendQuotes saves quotes chosen by a client-side quote workflow.
// Ids and timestamps are assigned here.
func (s *Server) handleAppendQuotes(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Quotes []quoteInput `json:"quotes"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	stamp := s.now().UTC().Format(time.RFC3339Nano)
	quotes := make([]store.SavedQuote, 0, len(req.Quotes))
	for _, q := range req.Quotes {
		lang := q.Lang
		if lang == "" {
			lang = "en"
		}
		quotes = append(quotes, store.SavedQuote{
			ID:           uuid.NewString(),
			OriginalText: q.OriginalText,
			EnhancedText: q.EnhancedText,
			Lang:         lang,
			CreatedAt:    stamp,
		})
	}
	err := s.tracer.AppendQuotes(r.Context(), chi.URLParam(r, "id"), quotes)
	respond(w, http.StatusOK, map[string]int{"saved": len(quotes)}, err)
}

func (s *Server) handleListTodos(w http.ResponseWriter, r *http.Request) {
	todos, err := s.tracer.FetchTodos(r.Context(), projectID(r))
	respond(w, http.StatusOK, todos, err)
}

func (s *Server) handlePendingTodos(w http.ResponseWriter, r *http.Request) {
	todos, err := s.tracer.PendingTodos(r.Context())
	respond(w, http.StatusOK, todos, err)
}

func (s *Server) handleSaveTodo(w http.ResponseWriter, r *http.Request) {
	var t store.Todo
	if err := decodeBody(r, &t); err != nil {
		writeError(w, err)
		return
	}
	t.ProjectID = projectID(r)
	err := s.tracer.SaveTodo(r.Context(), &t)
	respond(w, http.StatusOK, &t, err)
}

func (s *Server) handleListFinance(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	items, err := s.tracer.FetchFinance(r.Context(), projectID(r), store.FinanceFilter{
		StartDate: q.Get("start"),
		EndDate:   q.Get("end"),
		Search:    q.Get("search"),
	})
	respond(w, http.StatusOK, items, err)
}

type saveFinanceRequest struct {
	Item    store.FinanceItem    `json:"item"`
	Content store.FinanceContent `json:"content"`
}

func (s *Server) handleSaveFinance(w http.ResponseWriter, r *http.Request) {
	var req saveFinanceRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	req.Item.ProjectID = projectID(r)
	err := s.tracer.SaveFinance(r.Context(), &req.Item, req.Content)
	respond(w, http.StatusOK, &req.Item, err)
}

func (s *Server) handleExportFinance(w http.ResponseWriter, r *http.Request) {
	currency := r.URL.Query().Get("currency")
	if currency == "" {
		currency = "IDR"
	}
	exp, err := s.tracer.ExportFinance(r.Context(), projectID(r), currency)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="`+exp.Filename+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(exp.PDF)))
	w.WriteHeader(http.StatusOK)
	w.Write(exp.PDF)
}

func (s *Server) deleteHandler(del func(r *http.Request, id string) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := del(r, chi.URLParam(r, "id")); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) tracerDeleteLog(r *http.Request, id string) error {
	return s.tracer.DeleteLog(r.Context(), id)
}

func (s *Server) tracerUnlink(r *http.Request, id string) error {
	return s.tracer.UnlinkReference(r.Context(), id)
}

func (s *Server) tracerDeleteTodo(r *http.Request, id string) error {
	return s.tracer.DeleteTodo(r.Context(), id)
}

func (s *Server) tracerDeleteFinance(r *http.Request, id string) error {
	return s.tracer.DeleteFinance(r.Context(), id)
}
