package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/sskim91/bookbrain/internal/service"
)

// SearchHandler serves similarity queries over indexed chunks.
type SearchHandler struct {
	searcher *service.Searcher
	logger   *zap.Logger
}

func NewSearchHandler(searcher *service.Searcher, logger *zap.Logger) *SearchHandler {
	return &SearchHandler{searcher: searcher, logger: logger}
}

type searchRequest struct {
	Query    string  `json:"query" binding:"required"`
	Limit    int     `json:"limit"`
	Offset   int     `json:"offset"`
	MinScore float64 `json:"min_score"`
}

// Search embeds the query and ranks stored chunks by cosine similarity.
func (h *SearchHandler) Search(c *gin.Context) {
	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", "query is required", nil)
		return
	}
	if req.Limit <= 0 || req.Limit > 50 {
		req.Limit = 10
	}
	if req.Offset < 0 {
		req.Offset = 0
	}

	resp, err := h.searcher.Search(c.Request.Context(), req.Query, req.Limit, req.Offset, req.MinScore)
	if err != nil {
		h.logger.Error("search failed", zap.Error(err))
		respondError(c, http.StatusInternalServerError, "SEARCH_FAILED", err.Error(), nil)
		return
	}

	c.JSON(http.StatusOK, resp)
}
