package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/lazypower/rapport/internal/engine"
	rerrors "github.com/lazypower/rapport/internal/errors"
	"github.com/lazypower/rapport/internal/model"
	"github.com/lazypower/rapport/internal/rules"
	"github.com/lazypower/rapport/internal/scheduler"
)

func (s *Server) handleListContacts(w http.ResponseWriter, r *http.Request) {
	contacts, err := s.svc.Contacts()
	if err != nil {
		s.writeError(w, err)
		return
	}
	if contacts == nil {
		contacts = []model.Contact{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"count":    len(contacts),
		"contacts": contacts,
	})
}

func (s *Server) handleCreateContact(w http.ResponseWriter, r *http.Request) {
	var req model.Contact
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}

	c, err := s.svc.CreateContact(r.Context(), req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (s *Server) handleScore(w http.ResponseWriter, r *http.Request) {
	score, err := s.svc.Score(chi.URLParam(r, "contactID"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, score)
}

type interactionRequest struct {
	Type      string     `json:"type"`
	Timestamp *time.Time `json:"timestamp"`
	Duration  *float64   `json:"duration"`
	Notes     *string    `json:"notes"`
	Quality   float64    `json:"quality"`
}

func (s *Server) handleLogInteraction(w http.ResponseWriter, r *http.Request) {
	var req interactionRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if req.Duration != nil && *req.Duration < 0 {
		s.writeError(w, rerrors.NewInvalidParameter("duration", *req.Duration, ">= 0"))
		return
	}

	i := model.Interaction{
		ContactID: chi.URLParam(r, "contactID"),
		Type:      model.InteractionType(strings.ToLower(req.Type)),
		Duration:  req.Duration,
		Notes:     req.Notes,
		Quality:   req.Quality,
	}
	if req.Timestamp != nil {
		i.Timestamp = req.Timestamp.UTC()
	}

	stored, err := s.svc.LogInteraction(r.Context(), i)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, loggedInteraction{
		Interaction: *stored,
		Signals:     engine.ExtractSignals(*stored),
	})
}

// loggedInteraction is the stored interaction plus the signals read from it.
type loggedInteraction struct {
	model.Interaction
	Signals engine.Signals `json:"signals"`
}

func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	list, err := s.svc.Rules()
	if err != nil {
		s.writeError(w, err)
		return
	}
	if list == nil {
		list = []rules.Rule{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"count": len(list),
		"rules": list,
	})
}

func (s *Server) handleAddRule(w http.ResponseWriter, r *http.Request) {
	var spec rules.Spec
	if err := decodeBody(r, &spec); err != nil {
		s.writeError(w, err)
		return
	}

	rule, err := s.svc.AddRule(r.Context(), spec)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rule)
}

func (s *Server) handleListReminders(w http.ResponseWriter, r *http.Request) {
	status := model.ReminderStatus(r.URL.Query().Get("status"))
	list, err := s.svc.Reminders(status)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeReminders(w, http.StatusOK, list)
}

func (s *Server) handleDismissReminder(w http.ResponseWriter, r *http.Request) {
	rem, err := s.svc.DismissReminder(r.Context(), chi.URLParam(r, "reminderID"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rem)
}

func (s *Server) handleMarkSent(w http.ResponseWriter, r *http.Request) {
	rem, err := s.svc.MarkSent(chi.URLParam(r, "reminderID"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rem)
}

// handleEvaluate runs one cycle now. ?dry_run=true previews without storing.
func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	dryRun := false
	if v := r.URL.Query().Get("dry_run"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			s.writeError(w, rerrors.NewInvalidRequest("dry_run must be a boolean"))
			return
		}
		dryRun = b
	}

	var (
		list []scheduler.Reminder
		err  error
	)
	if dryRun {
		list, err = s.svc.Preview(r.Context())
	} else {
		list, err = s.svc.EvaluateNow(r.Context())
	}
	// A cycle that produced reminders despite per-contact or sink failures
	// still reports them; the failures ride along as warnings.
	if err != nil && (len(list) == 0 || errors.Is(err, scheduler.ErrCycleInProgress)) {
		s.writeError(w, err)
		return
	}
	if list == nil {
		list = []scheduler.Reminder{}
	}
	body := map[string]any{
		"count":     len(list),
		"reminders": list,
	}
	if err != nil {
		s.log.Warn().Err(err).Int("reminders", len(list)).Msg("http: evaluate finished with errors")
		body["warnings"] = warnings(err)
	}
	writeJSON(w, http.StatusOK, body)
}

// warnings flattens a joined cycle error into one message per failure.
func warnings(err error) []string {
	joined, ok := err.(interface{ Unwrap() []error })
	if !ok {
		return []string{err.Error()}
	}
	var out []string
	for _, e := range joined.Unwrap() {
		out = append(out, e.Error())
	}
	return out
}

func writeReminders(w http.ResponseWriter, status int, list []scheduler.Reminder) {
	if list == nil {
		list = []scheduler.Reminder{}
	}
	writeJSON(w, status, map[string]any{
		"count":     len(list),
		"reminders": list,
	})
}
