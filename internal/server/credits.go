package server

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	ledgerdomain "github.com/smallbiznis/genstudio/internal/ledger/domain"
	"github.com/smallbiznis/genstudio/internal/providers/pdf"
)

func (s *Server) GetCreditBalance(c *gin.Context) {
	userID := userIDFromContext(c)
	balance, err := s.ledgerSvc.GetBalance(c.Request.Context(), userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"user_id": userID,
		"credits": balance,
	}})
}

func (s *Server) ListCreditTransactions(c *gin.Context) {
	var query struct {
		Type      string `form:"type"`
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

	resp, err := s.ledgerSvc.ListTransactions(c.Request.Context(), ledgerdomain.ListTransactionsRequest{
		UserID:    userIDFromContext(c),
		Type:      strings.TrimSpace(query.Type),
		PageToken: strings.TrimSpace(query.PageToken),
		PageSize:  pageSize,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

// statementRowLimit caps how much history one statement walks.
const statementRowLimit = 1000

// DownloadCreditStatement renders the caller's balance and newest credit
// movements as a PDF.
func (s *Server) DownloadCreditStatement(c *gin.Context) {
	ctx := c.Request.Context()
	userID := userIDFromContext(c)

	balance, err := s.ledgerSvc.GetBalance(ctx, userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	data := pdf.StatementData{
		UserID:      userID,
		Balance:     balance,
		GeneratedAt: time.Now().UTC(),
	}
	pageToken := ""
	for {
		page, err := s.ledgerSvc.ListTransactions(ctx, ledgerdomain.ListTransactionsRequest{
			UserID:    userID,
			PageToken: pageToken,
			PageSize:  100,
		})
		if err != nil {
			AbortWithError(c, err)
			return
		}
		for _, txn := range page.Transactions {
			if len(data.Lines) == statementRowLimit {
				data.Truncated = true
				break
			}
			line := pdf.StatementLine{
				Date:         txn.CreatedAt,
				Type:         string(txn.Type),
				Reason:       txn.Reason,
				Amount:       txn.Amount,
				BalanceAfter: txn.BalanceAfter,
			}
			if txn.RelatedJobID != nil {
				line.JobID = txn.RelatedJobID.String()
			}
			data.Lines = append(data.Lines, line)
		}
		if data.Truncated || !page.HasMore || page.NextPageToken == "" {
			break
		}
		pageToken = page.NextPageToken
	}

	doc, err := s.statements.RenderStatement(ctx, data)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="credit-statement-%d.pdf"`, userID))
	c.Data(http.StatusOK, "application/pdf", doc)
}
