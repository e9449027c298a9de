// Package server exposes storefront controllers over HTTP, one per visitor
// session.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/luansfranca/sopromocoes/models"
	"github.com/luansfranca/sopromocoes/presenter"
	"github.com/luansfranca/sopromocoes/storefront"
)

const sessionCookie = "sessionId"

// Options configures a Server.
type Options struct {
	Factory        ControllerFactory
	Store          SelectionStore
	MaxSessions    int
	SessionTTL     time.Duration
	AllowedOrigins []string
	// Metrics may be nil; /metrics is then not served.
	Metrics *storefront.Metrics
}

// Server routes visitor intents to their session's controller.
type Server struct {
	sessions *Sessions
	ttl      time.Duration
	router   *mux.Router
	handler  http.Handler
	requests *prometheus.CounterVec
}

func New(opts Options) (*Server, error) {
	if opts.Factory == nil {
		return nil, errors.New("server: controller factory must be non-nil")
	}
	if opts.MaxSessions <= 0 {
		opts.MaxSessions = 10000
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = 30 * time.Minute
	}
	if opts.Store == nil {
		opts.Store = NewMemoryStore(opts.MaxSessions*4, opts.SessionTTL*4)
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}

	s := &Server{
		sessions: NewSessions(opts.Factory, opts.Store, opts.MaxSessions, opts.SessionTTL),
		ttl:      opts.SessionTTL,
		router:   mux.NewRouter(),
	}
	if opts.Metrics != nil {
		requests, err := registerRequestCounter(opts.Metrics.Registry)
		if err != nil {
			return nil, err
		}
		s.requests = requests
	}

	r := s.router
	r.Use(recoverMiddleware, s.logMiddleware)
	r.HandleFunc("/health", s.health).Methods(http.MethodGet)
	if opts.Metrics != nil {
		r.Handle("/metrics", promhttp.HandlerFor(opts.Metrics.Registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/categories", s.categories).Methods(http.MethodGet)
	api.HandleFunc("/categories/select", s.selectCategoryBody).Methods(http.MethodPost)
	api.HandleFunc("/categories/{slug}/select", s.selectCategory).Methods(http.MethodPost)
	api.HandleFunc("/view", s.view).Methods(http.MethodGet)
	api.HandleFunc("/page", s.page).Methods(http.MethodGet)
	api.HandleFunc("/search", s.search).Methods(http.MethodPost)
	api.HandleFunc("/suggestions", s.suggestions).Methods(http.MethodGet)
	api.HandleFunc("/suggestions", s.clearSuggestions).Methods(http.MethodDelete)
	api.HandleFunc("/suggestions/select", s.selectSuggestion).Methods(http.MethodPost)
	api.HandleFunc("/display/toggle", s.toggleDisplay).Methods(http.MethodPost)
	api.HandleFunc("/reviews", s.reviews).Methods(http.MethodGet)

	s.handler = cors.New(cors.Options{
		AllowedOrigins:   opts.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type"},
		AllowCredentials: true,
	}).Handler(r)
	return s, nil
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Sessions exposes the live session table.
func (s *Server) Sessions() *Sessions {
	return s.sessions
}

func registerRequestCounter(reg *prometheus.Registry) (*prometheus.CounterVec, error) {
	requests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_http_requests_total",
			Help: "HTTP requests served, by route and status code.",
		},
		[]string{"route", "code"},
	)
	if err := reg.Register(requests); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			return already.ExistingCollector.(*prometheus.CounterVec), nil
		}
		return nil, fmt.Errorf("register request counter: %w", err)
	}
	return requests, nil
}

// session resolves the caller's controller and refreshes the cookie.
func (s *Server) session(w http.ResponseWriter, r *http.Request) (*storefront.Controller, string, bool) {
	var id string
	if c, err := r.Cookie(sessionCookie); err == nil {
		id = c.Value
	}
	ctrl, id, err := s.sessions.Get(r.Context(), id)
	if err != nil {
		slog.Error("create session", slog.Any("error", err))
		http.Error(w, "server error", http.StatusInternalServerError)
		return nil, "", false
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    id,
		Path:     "/",
		MaxAge:   int(s.ttl.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return ctrl, id, true
}

// selectionContext outlives the request so a client that disconnects
// mid-selection still leaves the session on the selection it asked for.
// Catalog queries stay bounded by the controller's query timeout.
func selectionContext(r *http.Request) context.Context {
	return context.WithoutCancel(r.Context())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("write response", slog.Any("error", err))
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<16)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		slog.Debug("bad request body", slog.Any("error", err))
		http.Error(w, "bad request", http.StatusBadRequest)
		return false
	}
	return true
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "healthy",
		"sessions": s.sessions.Len(),
	})
}

func (s *Server) categories(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, models.DefaultCategories)
}

func (s *Server) view(w http.ResponseWriter, r *http.Request) {
	ctrl, _, ok := s.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, ctrl.View())
}

func (s *Server) page(w http.ResponseWriter, r *http.Request) {
	ctrl, _, ok := s.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, presenter.Build(ctrl.View()))
}

func (s *Server) selectCategory(w http.ResponseWriter, r *http.Request) {
	s.applyCategory(w, r, mux.Vars(r)["slug"])
}

func (s *Server) selectCategoryBody(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Slug string `json:"slug"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	s.applyCategory(w, r, body.Slug)
}

func (s *Server) applyCategory(w http.ResponseWriter, r *http.Request, slug string) {
	ctrl, id, ok := s.session(w, r)
	if !ok {
		return
	}
	ctx := selectionContext(r)
	ctrl.SelectCategory(ctx, slug)
	s.sessions.Save(ctx, id, ctrl)
	writeJSON(w, http.StatusOK, presenter.Build(ctrl.View()))
}

func (s *Server) search(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Query string `json:"query"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	ctrl, id, ok := s.session(w, r)
	if !ok {
		return
	}
	ctrl.ClearSuggestions()
	ctx := selectionContext(r)
	ctrl.Search(ctx, body.Query)
	s.sessions.Save(ctx, id, ctrl)
	writeJSON(w, http.StatusOK, presenter.Build(ctrl.View()))
}

func (s *Server) suggestions(w http.ResponseWriter, r *http.Request) {
	ctrl, _, ok := s.session(w, r)
	if !ok {
		return
	}
	ctrl.Suggest(r.Context(), r.URL.Query().Get("q"))
	suggestions := ctrl.View().Suggestions
	if suggestions == nil {
		suggestions = []models.Suggestion{}
	}
	writeJSON(w, http.StatusOK, suggestions)
}

func (s *Server) clearSuggestions(w http.ResponseWriter, r *http.Request) {
	ctrl, _, ok := s.session(w, r)
	if !ok {
		return
	}
	ctrl.ClearSuggestions()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) selectSuggestion(w http.ResponseWriter, r *http.Request) {
	var body models.Suggestion
	if !decodeBody(w, r, &body) {
		return
	}
	ctrl, id, ok := s.session(w, r)
	if !ok {
		return
	}
	ctx := selectionContext(r)
	ctrl.SelectSuggestion(ctx, body)
	s.sessions.Save(ctx, id, ctrl)
	writeJSON(w, http.StatusOK, presenter.Build(ctrl.View()))
}

func (s *Server) toggleDisplay(w http.ResponseWriter, r *http.Request) {
	ctrl, id, ok := s.session(w, r)
	if !ok {
		return
	}
	dark := ctrl.ToggleDarkMode()
	s.sessions.Save(r.Context(), id, ctrl)
	writeJSON(w, http.StatusOK, map[string]any{
		"dark_mode": dark,
		"theme":     presenter.Theme(dark),
	})
}

func (s *Server) reviews(w http.ResponseWriter, r *http.Request) {
	ctrl, _, ok := s.session(w, r)
	if !ok {
		return
	}
	if refresh, _ := strconv.ParseBool(r.URL.Query().Get("refresh")); refresh {
		ctrl.LoadReviews(r.Context())
	}
	writeJSON(w, http.StatusOK, ctrl.View().Reviews)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := r.URL.Path
		if current := mux.CurrentRoute(r); current != nil {
			if tmpl, err := current.GetPathTemplate(); err == nil {
				route = tmpl
			}
		}
		if s.requests != nil {
			s.requests.WithLabelValues(route, strconv.Itoa(rec.status)).Inc()
		}
		slog.Debug("http request",
			slog.String("method", r.Method),
			slog.String("route", route),
			slog.Int("status", rec.status),
			slog.Duration("elapsed", time.Since(start)),
		)
	})
}

func recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				slog.Error("panic serving request",
					slog.Any("panic", rec),
					slog.String("stack", string(debug.Stack())),
				)
				http.Error(w, "server error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
