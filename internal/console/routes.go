package console

import "github.com/go-chi/chi/v5"

func RegisterRoutes(r chi.Router, h *Handler) {
	r.Group(func(r chi.Router) {
		r.Use(h.Gesture)

		r.Get("/sessions", h.ListSessions)
		r.Post("/sessions/reload", h.Reload)
		r.Post("/sessions/{id}/select", h.Select)
		r.Delete("/sessions/{id}", h.DeleteSession)
		r.Post("/sessions/{id}/reply", h.Reply)
		r.Delete("/sessions/{id}/messages/{messageId}", h.DeleteMessage)
		r.Post("/sessions/{id}/draft", h.Draft)

		r.Get("/timeline", h.Timeline)
		r.Get("/notifications", h.Notifications)
		r.Post("/unlock", h.Unlock)
		r.Get("/alerts", h.Alerts)
	})
}
