package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	aimodeldomain "github.com/smallbiznis/genstudio/internal/aimodel/domain"
	ledgerdomain "github.com/smallbiznis/genstudio/internal/ledger/domain"
)

// RequirePermission lets the request through only when the calling operator
// holds action on object.
func (s *Server) RequirePermission(object, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := s.authz.Authorize(c.Request.Context(), userIDFromContext(c), object, action); err != nil {
			AbortWithError(c, err)
			return
		}
		c.Next()
	}
}

func parseUserIDParam(c *gin.Context) (int64, bool) {
	userID, err := strconv.ParseInt(strings.TrimSpace(c.Param("user_id")), 10, 64)
	if err != nil || userID <= 0 {
		AbortWithError(c, newValidationError("user_id", "invalid_user_id", "user_id must be a positive integer"))
		return 0, false
	}
	return userID, true
}

type grantCreditsRequest struct {
	Amount int64  `json:"amount"`
	Reason string `json:"reason"`
}

func (s *Server) GrantCredits(c *gin.Context) {
	userID, ok := parseUserIDParam(c)
	if !ok {
		return
	}
	var req grantCreditsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		reason = "admin_grant"
	}
	txn, err := s.ledgerSvc.Grant(c.Request.Context(), ledgerdomain.GrantRequest{
		UserID: userID,
		Amount: req.Amount,
		Reason: reason,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": txn})
}

func (s *Server) ReconcileCredits(c *gin.Context) {
	userID, ok := parseUserIDParam(c)
	if !ok {
		return
	}

	result, err := s.ledgerSvc.Reconcile(c.Request.Context(), userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}

type updateModelRequest struct {
	IsActive           *bool  `json:"is_active"`
	IsMaintenanceMode  *bool  `json:"is_maintenance_mode"`
	CreditCostOverride *int64 `json:"credit_cost_override"`
	ClearOverride      bool   `json:"clear_override"`
	MaxDurationSeconds *int   `json:"max_duration_seconds"`
}

func (s *Server) UpdateModel(c *gin.Context) {
	var req updateModelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	model, err := s.aimodelSvc.Update(c.Request.Context(), aimodeldomain.UpdateRequest{
		ModelKey:           strings.TrimSpace(c.Param("model_key")),
		IsActive:           req.IsActive,
		IsMaintenanceMode:  req.IsMaintenanceMode,
		CreditCostOverride: req.CreditCostOverride,
		ClearOverride:      req.ClearOverride,
		MaxDurationSeconds: req.MaxDurationSeconds,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": model})
}
