package console

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/Vovarama1992/chatra-operator-console/internal/ai"
	"github.com/Vovarama1992/chatra-operator-console/internal/api"
	"github.com/Vovarama1992/chatra-operator-console/internal/chat"
	"github.com/Vovarama1992/chatra-operator-console/internal/notify"
)

// Handler exposes operator intents over HTTP for the console UI.
type Handler struct {
	engine *Engine
	alerts AlertReader
	log    *slog.Logger
}

func NewHandler(engine *Engine, alerts AlertReader, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{engine: engine, alerts: alerts, log: logger.With("component", "http")}
}

type timelineView struct {
	SessionID string         `json:"sessionId"`
	Messages  []chat.Message `json:"messages"`
}

type notificationsView struct {
	notify.State
	LastNotice *Notice `json:"lastNotice,omitempty"`
}

// Gesture counts every state-changing request as an operator gesture,
// which unlocks audio.
func (h *Handler) Gesture(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead && r.Method != http.MethodOptions {
			h.engine.Unlock()
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	sessions := h.engine.Directory().Search(q)
	if sessions == nil {
		sessions = []chat.Session{}
	}
	writeJSON(w, http.StatusOK, sessions)
}

func (h *Handler) Reload(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.LoadAll(r.Context()); err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.engine.Directory().List())
}

func (h *Handler) Select(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.engine.Select(r.Context(), id); err != nil {
		h.fail(w, err)
		return
	}
	h.writeTimeline(w)
}

func (h *Handler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.DeleteSession(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Reply(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Body string `json:"body"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if err := h.engine.SendReply(r.Context(), chi.URLParam(r, "id"), payload.Body); err != nil {
		h.fail(w, err)
		return
	}
	// the message shows up once the server confirms it
	w.WriteHeader(http.StatusAccepted)
}

func (h *Handler) DeleteMessage(w http.ResponseWriter, r *http.Request) {
	err := h.engine.DeleteMessage(r.Context(), chi.URLParam(r, "messageId"), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *Handler) Draft(w http.ResponseWriter, r *http.Request) {
	draft, err := h.engine.Draft(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"draft": draft})
}

func (h *Handler) Timeline(w http.ResponseWriter, _ *http.Request) {
	h.writeTimeline(w)
}

func (h *Handler) Notifications(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, notificationsView{
		State:      h.engine.Notifier().State(),
		LastNotice: h.engine.LastNotice(),
	})
}

func (h *Handler) Unlock(w http.ResponseWriter, _ *http.Request) {
	h.engine.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Alerts(w http.ResponseWriter, r *http.Request) {
	if h.alerts == nil {
		http.Error(w, "alert journal disabled", http.StatusNotImplemented)
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = min(n, 500)
	}
	alerts, err := h.alerts.Recent(r.Context(), limit)
	if err != nil {
		h.fail(w, err)
		return
	}
	if alerts == nil {
		alerts = []notify.Alert{}
	}
	writeJSON(w, http.StatusOK, alerts)
}

func (h *Handler) writeTimeline(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, timelineView{
		SessionID: h.engine.Timeline().SessionID(),
		Messages:  h.engine.Timeline().Messages(),
	})
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	var se *api.StatusError
	switch {
	case errors.Is(err, ErrNoSession), errors.Is(err, ErrEmptyReply):
		status = http.StatusBadRequest
	case errors.Is(err, ErrNotSelected), errors.Is(err, ai.ErrEmptyHistory):
		status = http.StatusConflict
	case errors.Is(err, ErrDraftsDisabled):
		status = http.StatusNotImplemented
	case errors.Is(err, ErrStopped):
		status = http.StatusServiceUnavailable
	case errors.As(err, &se):
		status = http.StatusBadGateway
	}
	if status >= 500 {
		h.log.Error("request failed", slog.Int("status", status), slog.Any("error", err))
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// writeJSON encodes v before touching the response, so an encoding failure
// still produces a 500 instead of an empty success.
func writeJSON(w http.ResponseWriter, status int, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		slog.Error("encode response", slog.Any("error", err))
		status = http.StatusInternalServerError
		b, _ = json.Marshal(map[string]string{"error": "encode response"})
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(append(b, '\n'))
}
