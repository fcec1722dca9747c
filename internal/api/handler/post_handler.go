package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	apimw "github.com/notifyhub/quicksched/internal/api/middleware"
	"github.com/notifyhub/quicksched/internal/domain"
	"github.com/notifyhub/quicksched/internal/service"
)

// PostHandler handles scheduled post endpoints.
type PostHandler struct {
	svc    *service.ScheduleService
	logger *zap.Logger
}

func NewPostHandler(svc *service.ScheduleService, logger *zap.Logger) *PostHandler {
	return &PostHandler{svc: svc, logger: logger}
}

// Create handles POST /api/v1/posts
//
// @Summary     Schedule a post
// @Tags        posts
// @Accept      json
// @Produce     json
// @Param       body  body      domain.CreatePostRequest  true  "Post payload"
// @Success     201   {object}  domain.ScheduledPost
// @Failure     422   {object}  map[string]string
// @Failure     502   {object}  map[string]string
// @Router      /api/v1/posts [post]
func (h *PostHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req domain.CreatePostRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	p, err := h.svc.Create(r.Context(), req)
	if err != nil {
		apimw.Logger(r.Context(), h.logger).Warn("create post failed", zap.Error(err))
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, p)
}

// List handles GET /api/v1/posts
//
// @Summary  List scheduled posts, soonest first
// @Tags     posts
// @Produce  json
// @Param    category  query     string  false  "Filter by category"
// @Success  200       {object}  map[string]any
// @Router   /api/v1/posts [get]
func (h *PostHandler) List(w http.ResponseWriter, r *http.Request) {
	if c := r.URL.Query().Get("category"); c != "" {
		h.listByCategory(w, r, domain.Category(c))
		return
	}
	posts, err := h.svc.List(r.Context())
	if err != nil {
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"data": posts, "total": len(posts)})
}

// ListByCategory handles GET /api/v1/posts/category/{category}
//
// @Summary  List scheduled posts of one category
// @Tags     posts
// @Produce  json
// @Param    category  path      string  true  "general, birthday, event or holiday"
// @Success  200       {object}  map[string]any
// @Failure  422       {object}  map[string]string
// @Router   /api/v1/posts/category/{category} [get]
func (h *PostHandler) ListByCategory(w http.ResponseWriter, r *http.Request) {
	h.listByCategory(w, r, domain.Category(chi.URLParam(r, "category")))
}

func (h *PostHandler) listByCategory(w http.ResponseWriter, r *http.Request, c domain.Category) {
	posts, err := h.svc.ListByCategory(r.Context(), c)
	if err != nil {
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"data": posts, "total": len(posts)})
}

// GetByID handles GET /api/v1/posts/{id}
//
// @Summary  Get a scheduled post
// @Tags     posts
// @Produce  json
// @Param    id   path      string  true  "Post UUID"
// @Success  200  {object}  domain.ScheduledPost
// @Failure  404  {object}  map[string]string
// @Router   /api/v1/posts/{id} [get]
func (h *PostHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	p, err := h.svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

// Update handles PUT and PATCH /api/v1/posts/{id}. Only the fields present
// in the body change; external_ref is not accepted.
//
// @Summary  Edit a scheduled post
// @Tags     posts
// @Accept   json
// @Produce  json
// @Param    id    path      string             true  "Post UUID"
// @Param    body  body      domain.PostUpdate  true  "Fields to change"
// @Success  200   {object}  domain.ScheduledPost
// @Failure  400   {object}  map[string]string
// @Failure  404   {object}  map[string]string
// @Failure  422   {object}  map[string]string
// @Router   /api/v1/posts/{id} [patch]
func (h *PostHandler) Update(w http.ResponseWriter, r *http.Request) {
	var u domain.PostUpdate
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&u); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	p, err := h.svc.Update(r.Context(), chi.URLParam(r, "id"), u)
	if err != nil {
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

// Submit handles POST /api/v1/posts/{id}/submit
//
// @Summary  Submit a draft to the platform
// @Tags     posts
// @Produce  json
// @Param    id   path      string  true  "Post UUID"
// @Success  200  {object}  domain.ScheduledPost
// @Failure  404  {object}  map[string]string
// @Failure  409  {object}  map[string]string
// @Failure  502  {object}  map[string]string
// @Router   /api/v1/posts/{id}/submit [post]
func (h *PostHandler) Submit(w http.ResponseWriter, r *http.Request) {
	p, err := h.svc.Submit(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		apimw.Logger(r.Context(), h.logger).Warn("submit post failed", zap.Error(err))
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

// Delete handles DELETE /api/v1/posts/{id}
//
// @Summary  Delete a scheduled post
// @Tags     posts
// @Param    id   path      string  true  "Post UUID"
// @Success  204
// @Failure  404  {object}  map[string]string
// @Router   /api/v1/posts/{id} [delete]
func (h *PostHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		mapError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
