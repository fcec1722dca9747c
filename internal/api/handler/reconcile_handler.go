package handler

import (
	"net/http"

	"github.com/notifyhub/quicksched/internal/worker"
)

// ReconcileController is the part of worker.ReconcileScheduler the admin
// endpoints use.
type ReconcileController interface {
	TriggerNow() (worker.PassReport, error)
	Running() bool
	LastReport() (worker.PassReport, bool)
}

// ReconcileHandler exposes on-demand passes and pass status.
type ReconcileHandler struct {
	ctrl ReconcileController
}

func NewReconcileHandler(ctrl ReconcileController) *ReconcileHandler {
	return &ReconcileHandler{ctrl: ctrl}
}

// Trigger handles POST /api/v1/reconcile
//
// @Summary  Run a reconciliation pass now
// @Tags     reconcile
// @Produce  json
// @Success  200  {object}  worker.PassReport
// @Failure  409  {object}  map[string]string
// @Failure  503  {object}  map[string]string
// @Router   /api/v1/reconcile [post]
func (h *ReconcileHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	report, err := h.ctrl.TriggerNow()
	if err != nil {
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, report)
}

// Status handles GET /api/v1/reconcile/status
//
// @Summary  Last pass report and whether a pass is running
// @Tags     reconcile
// @Produce  json
// @Success  200  {object}  map[string]any
// @Router   /api/v1/reconcile/status [get]
func (h *ReconcileHandler) Status(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{"running": h.ctrl.Running()}
	if last, ok := h.ctrl.LastReport(); ok {
		body["last_pass"] = last
	}
	respondJSON(w, http.StatusOK, body)
}
