package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"

	"github.com/pavelanni/docexam/internal/exam"
	"github.com/pavelanni/docexam/internal/export"
	"github.com/pavelanni/docexam/internal/i18n"
	"github.com/pavelanni/docexam/internal/metrics"
)

// Store is the persisted state the handlers read directly.
type Store interface {
	AdminPasswordHash() (string, error)
	Ping() error
}

// Config holds HTTP-level settings.
type Config struct {
	MaxUploadBytes int64
	SecureCookies  bool
	AllowedOrigins []string
	// RateLimit is the number of generation requests a client IP may make
	// per RateWindow. Zero disables limiting.
	RateLimit  int
	RateWindow time.Duration
}

// DefaultConfig returns the settings used when none are given.
func DefaultConfig() Config {
	return Config{
		MaxUploadBytes: 20 << 20,
		SecureCookies:  true,
		RateLimit:      10,
		RateWindow:     time.Minute,
	}
}

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	svc      *exam.Service
	store    Store
	metrics  *metrics.Metrics
	config   Config
	limiter  *rateLimiter
	upgrader websocket.Upgrader
}

// New creates a new Handler. m may be nil.
func New(svc *exam.Service, s Store, m *metrics.Metrics, cfg Config) *Handler {
	h := &Handler{
		svc:     svc,
		store:   s,
		metrics: m,
		config:  cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(cfg.AllowedOrigins),
		},
	}
	if cfg.RateLimit > 0 && cfg.RateWindow > 0 {
		h.limiter = newRateLimiter(cfg.RateLimit, cfg.RateWindow)
	}
	return h
}

// Close stops background cleanup.
func (h *Handler) Close() {
	if h.limiter != nil {
		h.limiter.close()
	}
}

// Router builds the full middleware stack and registers all routes.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	if h.metrics != nil {
		r.Use(h.metrics.Middleware)
	}
	if len(h.config.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   h.config.AllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
			AllowedHeaders:   []string{"Accept-Language", "Content-Type"},
			ExposedHeaders:   []string{"Content-Disposition", "Content-Language"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}
	r.Use(i18n.Middleware())
	h.Routes(r)
	return r
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/healthz", h.handleHealth)
	if h.metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.metrics.Handler())
	}

	r.Group(func(r chi.Router) {
		r.Use(h.withSession)

		r.Route("/api/session", func(r chi.Router) {
			r.Get("/", h.handleSnapshot)
			r.With(h.rateLimit).Post("/upload", h.handleUpload)
			r.With(h.rateLimit).Post("/regenerate", h.handleRegenerate)
			r.Post("/answer", h.handleAnswer)
			r.Post("/navigate", h.handleNavigate)
			r.Post("/submit", h.handleSubmit)
			r.Post("/reset", h.handleReset)
			r.Get("/export", h.handleExport)
			r.Get("/events", h.handleEvents)
		})
		r.Put("/api/settings/api-key", h.handleSetAPIKey)
	})
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(); err != nil {
		slog.Error("health check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

type errorBody struct {
	Error string `json:"error"`
}

// writeError sends a localized {"error": ...} body.
func writeError(w http.ResponseWriter, r *http.Request, status int, msgID string) {
	writeJSON(w, status, errorBody{Error: i18n.T(r.Context(), msgID)})
}

// errorStatus maps domain errors to a status code and message ID.
var errorStatus = []struct {
	err    error
	status int
	msgID  string
}{
	{exam.ErrSessionNotFound, http.StatusNotFound, "ErrSessionNotFound"},
	{exam.ErrNotInExam, http.StatusConflict, "ErrNotInExam"},
	{exam.ErrNoDocument, http.StatusConflict, "ErrNoDocument"},
	{exam.ErrNoQuestions, http.StatusConflict, "ErrNoQuestions"},
	{export.ErrNoQuestions, http.StatusConflict, "ErrNoQuestions"},
	{exam.ErrIndexOutOfRange, http.StatusBadRequest, "ErrIndexOutOfRange"},
	{exam.ErrUnknownQuestion, http.StatusBadRequest, "ErrUnknownQuestion"},
	{exam.ErrOptionOutOfRange, http.StatusBadRequest, "ErrOptionOutOfRange"},
}

func (h *Handler) writeErr(w http.ResponseWriter, r *http.Request, err error) {
	for _, e := range errorStatus {
		if errors.Is(err, e.err) {
			writeError(w, r, e.status, e.msgID)
			return
		}
	}
	slog.Error("request failed", "path", r.URL.Path, "request_id", middleware.GetReqID(r.Context()), "error", err)
	writeError(w, r, http.StatusInternalServerError, "ErrInternal")
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
