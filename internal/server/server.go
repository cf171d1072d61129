package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	rerrors "github.com/lazypower/rapport/internal/errors"
	"github.com/lazypower/rapport/internal/scheduler"
	"github.com/lazypower/rapport/internal/service"
	"github.com/lazypower/rapport/internal/store"
	"github.com/rs/zerolog"
)

// Server is the rapport HTTP API server.
type Server struct {
	db      *store.DB
	svc     *service.Service
	log     zerolog.Logger
	router  chi.Router
	version string
	started time.Time
}

// New creates a Server over svc. db is only used for health reporting.
func New(db *store.DB, svc *service.Service, version string, log zerolog.Logger) *Server {
	s := &Server{
		db:      db,
		svc:     svc,
		log:     log,
		version: version,
		started: time.Now(),
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Get("/contacts", s.handleListContacts)
		r.Post("/contacts", s.handleCreateContact)
		r.Get("/contacts/{contactID}/score", s.handleScore)
		r.Post("/contacts/{contactID}/interactions", s.handleLogInteraction)

		r.Get("/rules", s.handleListRules)
		r.Post("/rules", s.handleAddRule)

		r.Get("/reminders", s.handleListReminders)
		r.Post("/reminders/{reminderID}/dismiss", s.handleDismissReminder)
		r.Post("/reminders/{reminderID}/sent", s.handleMarkSent)

		r.Post("/evaluate", s.handleEvaluate)
	})

	s.router = r
}

// requestLogger logs one line per request at debug, or warn for 5xx.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		ev := s.log.Debug()
		if ww.Status() >= 500 {
			ev = s.log.Warn()
		}
		ev.Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("elapsed", time.Since(start)).
			Msg("http: request")
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	dbOK := true
	if err := s.db.Ping(); err != nil {
		dbOK = false
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
		"uptime":  time.Since(s.started).Seconds(),
		"db":      dbOK,
		"db_path": s.db.Path,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps err onto a status and a {"error","code"} body.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := rerrors.StatusOf(err)
	body := map[string]any{"error": err.Error()}

	var rErr *rerrors.Error
	switch {
	case errors.As(err, &rErr):
		body["code"] = rErr.Code
		body["error"] = rErr.Message
		if len(rErr.Details) > 0 {
			body["details"] = rErr.Details
		}
	case errors.Is(err, scheduler.ErrCycleInProgress):
		status = http.StatusConflict
	default:
		body["code"] = rerrors.ErrInternal
	}

	if status >= 500 {
		s.log.Error().Err(err).Msg("http: handler failed")
	}
	writeJSON(w, status, body)
}

func decodeBody(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return rerrors.NewInvalidRequest("invalid json: " + err.Error())
	}
	return nil
}
