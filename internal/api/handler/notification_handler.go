package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/notifyhub/quicksched/internal/service"
)

// NotificationHandler serves the archive of published posts.
type NotificationHandler struct {
	svc *service.ScheduleService
}

func NewNotificationHandler(svc *service.ScheduleService) *NotificationHandler {
	return &NotificationHandler{svc: svc}
}

// List handles GET /api/v1/notifications
//
// @Summary  List archived notifications, newest first
// @Tags     notifications
// @Produce  json
// @Success  200  {object}  map[string]any
// @Router   /api/v1/notifications [get]
func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	notifications, err := h.svc.ListNotifications(r.Context())
	if err != nil {
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"data": notifications, "total": len(notifications)})
}

// GetByID handles GET /api/v1/notifications/{id}
//
// @Summary  Get an archived notification
// @Tags     notifications
// @Produce  json
// @Param    id   path      string  true  "Notification UUID"
// @Success  200  {object}  domain.ArchivedNotification
// @Failure  404  {object}  map[string]string
// @Router   /api/v1/notifications/{id} [get]
func (h *NotificationHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	n, err := h.svc.GetNotification(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, n)
}

// Delete handles DELETE /api/v1/notifications/{id}
//
// @Summary  Remove an archived notification
// @Tags     notifications
// @Param    id   path      string  true  "Notification UUID"
// @Success  204
// @Failure  404  {object}  map[string]string
// @Router   /api/v1/notifications/{id} [delete]
func (h *NotificationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteNotification(r.Context(), chi.URLParam(r, "id")); err != nil {
		mapError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
