package handlers

import (
	"net/http"

	"github.com/rohits-web03/vectorvault/internal/search"
	"github.com/rohits-web03/vectorvault/internal/utils"
)

type QueryRequest struct {
	Query string `json:"query"`
	Limit *int   `json:"limit"`
}

// Query godoc
// @Summary Semantic search over stored chunks
// @Tags Query
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body QueryRequest true "Query and optional limit (default 10)"
// @Success 200 {object} search.Result
// @Failure 400 {object} utils.ErrorPayload
// @Router /query/ [post]
func (h *Handler) Query(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err, "Query")
		return
	}
	limit := search.DefaultLimit
	if req.Limit != nil {
		limit = *req.Limit
	}
	res, err := h.search.Search(r.Context(), req.Query, limit)
	if err != nil {
		h.writeError(w, r, err, "Query")
		return
	}
	utils.JSONResponse(w, http.StatusOK, res)
}
