package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/rohits-web03/vectorvault/internal/utils"
)

// UploadFile godoc
// @Summary Upload a PDF or TXT document
// @Description Stores the file with status Pending. Call POST /process/{id} to index it.
// @Tags Files
// @Accept multipart/form-data
// @Produce json
// @Security BearerAuth
// @Param file formData file true "PDF or TXT document"
// @Success 200 {object} models.File
// @Failure 400 {object} utils.ErrorPayload
// @Failure 413 {object} utils.ErrorPayload
// @Failure 415 {object} utils.ErrorPayload
// @Router /upload/ [post]
func (h *Handler) UploadFile(w http.ResponseWriter, r *http.Request) {
	maxUpload := h.cfg.Pipeline.MaxUploadMB << 20
	// leave room for the multipart envelope, the pipeline enforces the exact limit
	r.Body = http.MaxBytesReader(w, r.Body, maxUpload+1<<20)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			h.writeError(w, r, err, "File")
			return
		}
		h.writeError(w, r, fmt.Errorf("%w: invalid file upload form", errMalformed), "File")
		return
	}
	defer r.MultipartForm.RemoveAll()

	part, header, err := r.FormFile("file")
	if err != nil {
		h.writeError(w, r, fmt.Errorf("%w: no file provided", errMalformed), "File")
		return
	}
	defer part.Close()

	file, err := h.pipeline.Upload(r.Context(), header.Filename, header.Header.Get("Content-Type"), part)
	if err != nil {
		h.writeError(w, r, err, "File")
		return
	}
	utils.JSONResponse(w, http.StatusOK, file)
}
