package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rohits-web03/vectorvault/internal/models"
	"github.com/rohits-web03/vectorvault/internal/repositories"
	"github.com/rohits-web03/vectorvault/internal/utils"
)

const presignTTL = 15 * time.Minute

type FileDetailResponse struct {
	models.File
	Chunks []models.Chunk `json:"chunks"`
}

type ProcessingResponse struct {
	ID       string            `json:"id"`
	Filename string            `json:"filename"`
	Status   models.FileStatus `json:"status"`
	Message  string            `json:"message"`
}

// ListFiles godoc
// @Summary List uploaded files
// @Tags Files
// @Produce json
// @Security BearerAuth
// @Success 200 {array} models.File
// @Failure 401 {object} utils.ErrorPayload
// @Router /files/ [get]
func (h *Handler) ListFiles(w http.ResponseWriter, r *http.Request) {
	files, err := h.files.ListFiles(r.Context())
	if err != nil {
		h.writeError(w, r, err, "File")
		return
	}
	if files == nil {
		files = []models.File{}
	}
	utils.JSONResponse(w, http.StatusOK, files)
}

// GetFile godoc
// @Summary Get a file with its chunks
// @Tags Files
// @Produce json
// @Security BearerAuth
// @Param id path string true "File ID"
// @Success 200 {object} FileDetailResponse
// @Failure 404 {object} utils.ErrorPayload
// @Router /files/{id} [get]
func (h *Handler) GetFile(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.writeError(w, r, err, "File")
		return
	}
	file, chunks, err := h.files.GetFileWithChunks(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err, "File")
		return
	}
	utils.JSONResponse(w, http.StatusOK, FileDetailResponse{File: *file, Chunks: chunks})
}

// DeleteFile godoc
// @Summary Delete a file and its chunks
// @Tags Files
// @Produce json
// @Security BearerAuth
// @Param id path string true "File ID"
// @Success 200 {object} utils.MessagePayload
// @Failure 404 {object} utils.ErrorPayload
// @Router /files/{id} [delete]
func (h *Handler) DeleteFile(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.writeError(w, r, err, "File")
		return
	}
	if _, err := h.pipeline.Delete(r.Context(), id); err != nil {
		h.writeError(w, r, err, "File")
		return
	}
	utils.JSONResponse(w, http.StatusOK, utils.MessagePayload{Message: "File deleted successfully"})
}

// DownloadFile godoc
// @Summary Download the original file
// @Description Redirects to a presigned URL when the object store supports it, otherwise streams the bytes.
// @Tags Files
// @Produce octet-stream
// @Security BearerAuth
// @Param id path string true "File ID"
// @Success 200 {file} binary
// @Success 307
// @Failure 404 {object} utils.ErrorPayload
// @Router /files/{id}/download [get]
func (h *Handler) DownloadFile(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.writeError(w, r, err, "File")
		return
	}
	file, err := h.files.GetFile(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err, "File")
		return
	}

	if p, ok := h.objects.(repositories.Presigner); ok {
		url, err := p.PresignGet(r.Context(), file.ObjectKey, presignTTL)
		if err != nil {
			h.writeError(w, r, fmt.Errorf("presign download: %w", err), "File")
			return
		}
		http.Redirect(w, r, url, http.StatusTemporaryRedirect)
		return
	}

	data, err := h.objects.GetObject(r.Context(), file.ObjectKey)
	if errors.Is(err, repositories.ErrNotFound) {
		h.writeError(w, r, err, "Stored file")
		return
	}
	if err != nil {
		h.writeError(w, r, err, "File")
		return
	}
	w.Header().Set("Content-Type", file.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", file.Filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// ProcessFile godoc
// @Summary Start (re)processing a file
// @Description Claims the file and runs extraction, chunking and embedding in the background. Poll GET /files/{id} for the outcome.
// @Tags Files
// @Produce json
// @Security BearerAuth
// @Param id path string true "File ID"
// @Success 202 {object} ProcessingResponse
// @Failure 404 {object} utils.ErrorPayload
// @Failure 409 {object} utils.ErrorPayload
// @Router /process/{id} [post]
func (h *Handler) ProcessFile(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.writeError(w, r, err, "File")
		return
	}
	file, err := h.pipeline.Start(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err, "File")
		return
	}
	utils.JSONResponse(w, http.StatusAccepted, ProcessingResponse{
		ID:       file.ID.String(),
		Filename: file.Filename,
		Status:   file.Status,
		Message:  "Processing started",
	})
}
