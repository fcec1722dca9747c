package handler

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	apimw "github.com/notifyhub/quicksched/internal/api/middleware"
	"github.com/notifyhub/quicksched/internal/service"
)

// AssetHandler forwards uploaded images to the asset host.
type AssetHandler struct {
	svc      *service.ScheduleService
	maxBytes int64
	logger   *zap.Logger
}

func NewAssetHandler(svc *service.ScheduleService, maxBytes int64, logger *zap.Logger) *AssetHandler {
	return &AssetHandler{svc: svc, maxBytes: maxBytes, logger: logger}
}

// Upload handles POST /api/v1/assets
//
// @Summary  Upload an image and get a URL usable in media_refs
// @Tags     assets
// @Accept   multipart/form-data
// @Produce  json
// @Param    file  formData  file  true  "Image"
// @Success  201   {object}  map[string]string
// @Failure  400   {object}  map[string]string
// @Failure  413   {object}  map[string]string
// @Failure  502   {object}  map[string]string
// @Router   /api/v1/assets [post]
func (h *AssetHandler) Upload(w http.ResponseWriter, r *http.Request) {
	if r.ContentLength > h.maxBytes {
		respondError(w, http.StatusRequestEntityTooLarge, "file exceeds upload limit")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)
	if err := r.ParseMultipartForm(h.maxBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, http.StatusRequestEntityTooLarge, "file exceeds upload limit")
			return
		}
		respondError(w, http.StatusBadRequest, "expected multipart/form-data with a file field")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, http.StatusBadRequest, "missing file field")
		return
	}
	defer file.Close()

	url, err := h.svc.UploadAsset(r.Context(), header.Filename, header.Size, file)
	if err != nil {
		apimw.Logger(r.Context(), h.logger).Warn("asset upload failed", zap.Error(err))
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]string{"url": url})
}
