package handlers

import (
	"errors"
	"net/http"

	"github.com/rohits-web03/vectorvault/internal/api/middleware"
	"github.com/rohits-web03/vectorvault/internal/auth"
	"github.com/rohits-web03/vectorvault/internal/embedding"
	"github.com/rohits-web03/vectorvault/internal/pipeline"
	"github.com/rohits-web03/vectorvault/internal/repositories"
	"github.com/rohits-web03/vectorvault/internal/search"
	"github.com/rohits-web03/vectorvault/internal/utils"
)

var errMalformed = errors.New("malformed request")

// writeError maps err to a status and a {"detail"} body. resource names
// the thing that was looked up, for 404 details.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error, resource string) {
	var maxBytes *http.MaxBytesError
	switch {
	case errors.Is(err, errMalformed):
		utils.ErrorResponse(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &maxBytes), errors.Is(err, pipeline.ErrFileTooLarge):
		utils.ErrorResponse(w, http.StatusRequestEntityTooLarge, pipeline.ErrFileTooLarge.Error())
	case errors.Is(err, pipeline.ErrUnsupportedType):
		utils.ErrorResponse(w, http.StatusUnsupportedMediaType, pipeline.ErrUnsupportedType.Error())
	case errors.Is(err, search.ErrEmptyQuery),
		errors.Is(err, search.ErrInvalidLimit),
		errors.Is(err, search.ErrNoSearchableTerms),
		errors.Is(err, repositories.ErrInvalidLimit),
		errors.Is(err, auth.ErrInvalidEmail),
		errors.Is(err, auth.ErrWeakPassword),
		errors.Is(err, auth.ErrSelfAction):
		utils.ErrorResponse(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, auth.ErrInvalidCredentials):
		middleware.Unauthorized(w, "Incorrect email or password")
	case errors.Is(err, auth.ErrUnauthenticated):
		middleware.Unauthorized(w, "Could not validate credentials")
	case errors.Is(err, auth.ErrInactiveUser):
		utils.ErrorResponse(w, http.StatusForbidden, "Inactive user")
	case errors.Is(err, auth.ErrForbidden):
		utils.ErrorResponse(w, http.StatusForbidden, "Not enough privileges")
	case errors.Is(err, repositories.ErrNotFound):
		utils.ErrorResponse(w, http.StatusNotFound, resource+" not found")
	case errors.Is(err, repositories.ErrConflict),
		errors.Is(err, repositories.ErrEmailTaken),
		errors.Is(err, repositories.ErrLastAdmin):
		utils.ErrorResponse(w, http.StatusConflict, err.Error())
	case embedding.IsTransient(err):
		h.logger.Warn("embedding provider unavailable", "path", r.URL.Path, "error", err)
		utils.ErrorResponse(w, http.StatusServiceUnavailable, "Embedding service unavailable, retry later")
	default:
		h.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		utils.ErrorResponse(w, http.StatusInternalServerError, "Internal server error")
	}
}
