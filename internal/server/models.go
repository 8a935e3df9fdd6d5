package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	aimodeldomain "github.com/smallbiznis/genstudio/internal/aimodel/domain"
)

// ListModels returns the catalog. Only models accepting jobs are listed
// unless active_only=false.
func (s *Server) ListModels(c *gin.Context) {
	var query struct {
		Kind       string `form:"kind"`
		Provider   string `form:"provider"`
		ActiveOnly string `form:"active_only"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	activeOnly, err := parseOptionalBool(query.ActiveOnly)
	if err != nil {
		AbortWithError(c, newValidationError("active_only", "invalid_active_only", "invalid active_only"))
		return
	}

	resp, err := s.aimodelSvc.List(c.Request.Context(), aimodeldomain.ListRequest{
		Kind:       strings.TrimSpace(query.Kind),
		Provider:   strings.TrimSpace(query.Provider),
		ActiveOnly: activeOnly == nil || *activeOnly,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
