package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	aimodeldomain "github.com/smallbiznis/genstudio/internal/aimodel/domain"
	"github.com/smallbiznis/genstudio/internal/authorization"
	"github.com/smallbiznis/genstudio/internal/config"
	generationdomain "github.com/smallbiznis/genstudio/internal/generation/domain"
	ledgerdomain "github.com/smallbiznis/genstudio/internal/ledger/domain"
	"github.com/smallbiznis/genstudio/internal/observability"
	obsmiddleware "github.com/smallbiznis/genstudio/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/genstudio/internal/observability/metrics"
	obstracing "github.com/smallbiznis/genstudio/internal/observability/tracing"
	"github.com/smallbiznis/genstudio/internal/providers/pdf"
	"github.com/smallbiznis/genstudio/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	fx.Provide(NewServer),
	fx.Invoke(func(s *Server) {
		s.RegisterRoutes()
	}),
	fx.Invoke(RunHTTP),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	if !obsCfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func RunHTTP(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine        *gin.Engine
	cfg           config.Config
	generationSvc generationdomain.Service
	ledgerSvc     ledgerdomain.Service
	aimodelSvc    aimodeldomain.Service
	submitLimiter *ratelimit.SubmissionLimiter
	statements    pdf.Renderer
	authz         authorization.Service
}

type ServerParams struct {
	fx.In

	Gin           *gin.Engine
	Cfg           config.Config
	GenerationSvc generationdomain.Service
	LedgerSvc     ledgerdomain.Service
	AIModelSvc    aimodeldomain.Service
	SubmitLimiter *ratelimit.SubmissionLimiter `optional:"true"`
	Statements    pdf.Renderer                 `optional:"true"`
	Authz         authorization.Service        `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	statements := p.Statements
	if statements == nil {
		statements = pdf.New()
	}
	return &Server{
		engine:        p.Gin,
		cfg:           p.Cfg,
		generationSvc: p.GenerationSvc,
		ledgerSvc:     p.LedgerSvc,
		aimodelSvc:    p.AIModelSvc,
		submitLimiter: p.SubmitLimiter,
		statements:    statements,
		authz:         p.Authz,
	}
}

func (s *Server) RegisterRoutes() {
	v1 := s.engine.Group("/v1")

	// Providers authenticate with the shared callback token, not a user.
	v1.POST("/callbacks/:provider", s.HandleProviderCallback)

	user := v1.Group("", UserRequired())
	{
		user.POST("/generations", s.SubmissionRateLimit(), s.SubmitGeneration)
		user.GET("/generations", s.ListGenerations)
		user.POST("/generations/quote", s.QuoteGeneration)
		user.GET("/generations/:id", s.GetGeneration)

		user.GET("/credits/balance", s.GetCreditBalance)
		user.GET("/credits/transactions", s.ListCreditTransactions)
		user.GET("/credits/statement.pdf", s.DownloadCreditStatement)

		user.GET("/models", s.ListModels)
	}

	if s.authz == nil {
		return
	}
	admin := v1.Group("/admin", UserRequired())
	{
		admin.POST("/users/:user_id/credits",
			s.RequirePermission(authorization.ObjectCredits, authorization.ActionCreditsGrant), s.GrantCredits)
		admin.GET("/users/:user_id/reconcile",
			s.RequirePermission(authorization.ObjectCredits, authorization.ActionCreditsReconcile), s.ReconcileCredits)
		admin.PATCH("/models/:model_key",
			s.RequirePermission(authorization.ObjectModel, authorization.ActionModelUpdate), s.UpdateModel)
	}
}
