package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	generationdomain "github.com/smallbiznis/genstudio/internal/generation/domain"
)

type submitGenerationRequest struct {
	Kind       string         `json:"kind"`
	ModelKey   string         `json:"model_key"`
	Parameters map[string]any `json:"parameters"`
}

func (s *Server) SubmitGeneration(c *gin.Context) {
	var req submitGenerationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.generationSvc.Submit(c.Request.Context(), generationdomain.SubmitRequest{
		UserID:     userIDFromContext(c),
		Kind:       strings.TrimSpace(req.Kind),
		ModelKey:   strings.TrimSpace(req.ModelKey),
		Parameters: req.Parameters,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"data": resp})
}

func (s *Server) QuoteGeneration(c *gin.Context) {
	var req submitGenerationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.generationSvc.Quote(c.Request.Context(), generationdomain.QuoteRequest{
		Kind:       strings.TrimSpace(req.Kind),
		ModelKey:   strings.TrimSpace(req.ModelKey),
		Parameters: req.Parameters,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetGeneration(c *gin.Context) {
	id, err := parseSnowflakeID(c.Param("id"))
	if err != nil {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid id"))
		return
	}

	resp, err := s.generationSvc.Get(c.Request.Context(), generationdomain.GetRequest{
		UserID: userIDFromContext(c),
		JobID:  id,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListGenerations(c *gin.Context) {
	var query struct {
		Kind      string `form:"kind"`
		Status    string `form:"status"`
		ModelKey  string `form:"model_key"`
		PageToken string `form:"page_token"`
		PageSize  string `form:"page_size"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	pageSize, err := parsePageSize(query.PageSize)
	if err != nil {
		AbortWithError(c, newValidationError("page_size", "invalid_page_size", "page_size must be between 1 and 100"))
		return
	}

	resp, err := s.generationSvc.List(c.Request.Context(), generationdomain.ListRequest{
		UserID:    userIDFromContext(c),
		Kind:      strings.TrimSpace(query.Kind),
		Status:    strings.TrimSpace(query.Status),
		ModelKey:  strings.TrimSpace(query.ModelKey),
		PageToken: strings.TrimSpace(query.PageToken),
		PageSize:  pageSize,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
