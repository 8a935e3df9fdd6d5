package server

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	generationdomain "github.com/smallbiznis/genstudio/internal/generation/domain"
	"github.com/smallbiznis/genstudio/internal/observability/logger"
	providerdomain "github.com/smallbiznis/genstudio/internal/provider/domain"
	"go.uber.org/zap"
)

const maxCallbackBodyBytes = 1 << 20

// HandleProviderCallback applies a provider's completion push. Events the
// provider sends for states we do not track are acknowledged so it stops
// retrying.
func (s *Server) HandleProviderCallback(c *gin.Context) {
	provider := strings.ToLower(strings.TrimSpace(c.Param("provider")))

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxCallbackBodyBytes))
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	result, err := s.generationSvc.HandleCallback(c.Request.Context(), generationdomain.CallbackRequest{
		Provider: provider,
		Token:    strings.TrimSpace(c.Query("token")),
		Payload:  body,
		Headers:  c.Request.Header,
	})
	if errors.Is(err, providerdomain.ErrCallbackIgnored) {
		logger.FromContext(c.Request.Context()).Debug("provider callback ignored",
			zap.String("provider", provider),
		)
		c.JSON(http.StatusOK, gin.H{"data": generationdomain.CallbackResult{Ignored: true}})
		return
	}
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}
