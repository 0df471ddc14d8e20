package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	postingdomain "github.com/smallbiznis/millroll/internal/posting/domain"
)

func (s *Server) ListERPPostings(c *gin.Context) {
	var query struct {
		Status        string `form:"status"`
		ReferenceType string `form:"reference_type"`
		ReferenceID   string `form:"reference_id"`
		Limit         string `form:"limit"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	limit, err := parseOptionalInt(query.Limit)
	if err != nil || limit < 0 {
		AbortWithError(c, newValidationError("limit", "invalid_limit", "invalid limit"))
		return
	}

	items, err := s.postingSvc.List(c.Request.Context(), postingdomain.ListRequest{
		Status:        query.Status,
		ReferenceType: query.ReferenceType,
		ReferenceID:   query.ReferenceID,
		Limit:         limit,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": items})
}
