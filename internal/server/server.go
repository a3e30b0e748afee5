package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/sentinel/internal/apikey"
	apikeydomain "github.com/smallbiznis/sentinel/internal/apikey/domain"
	"github.com/smallbiznis/sentinel/internal/clock"
	"github.com/smallbiznis/sentinel/internal/config"
	"github.com/smallbiznis/sentinel/internal/ingest"
	ingestdomain "github.com/smallbiznis/sentinel/internal/ingest/domain"
	"github.com/smallbiznis/sentinel/internal/observability"
	obsmiddleware "github.com/smallbiznis/sentinel/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/sentinel/internal/observability/metrics"
	obstracing "github.com/smallbiznis/sentinel/internal/observability/tracing"
	"github.com/smallbiznis/sentinel/internal/portfolio"
	portfoliodomain "github.com/smallbiznis/sentinel/internal/portfolio/domain"
	"github.com/smallbiznis/sentinel/internal/providers/pdf"
	"github.com/smallbiznis/sentinel/internal/ranking"
	"github.com/smallbiznis/sentinel/internal/ratelimit"
	"github.com/smallbiznis/sentinel/internal/reference"
	referencedomain "github.com/smallbiznis/sentinel/internal/reference/domain"
	"github.com/smallbiznis/sentinel/internal/risk"
	riskdomain "github.com/smallbiznis/sentinel/internal/risk/domain"
	"github.com/smallbiznis/sentinel/internal/rollup"
	"github.com/smallbiznis/sentinel/internal/socrata"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	config.Module,
	fx.Provide(registerGin),
	socrata.Module,
	ingest.Module,
	rollup.Module,
	risk.Module,
	ranking.Module,
	portfolio.Module,
	apikey.Module,
	reference.Module,
	pdf.Module,
	ratelimit.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
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

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config) {
	port := strings.TrimSpace(cfg.HTTPPort)
	if port == "" {
		port = "8080"
	}
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
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
	engine       *gin.Engine
	cfg          config.Config
	db           *gorm.DB
	log          *zap.Logger
	riskSvc      riskdomain.Service
	ingestSvc    ingestdomain.Service
	rankingSvc   *ranking.Service
	portfolioSvc portfoliodomain.Service
	apiKeySvc    apikeydomain.Service
	refrepo      referencedomain.Repository
	pdf          pdf.Provider
	clock        clock.Clock
	limiter      apiLimiter
	obsMetrics   *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin          *gin.Engine
	Cfg          config.Config
	DB           *gorm.DB
	Log          *zap.Logger
	RiskSvc      riskdomain.Service
	IngestSvc    ingestdomain.Service
	RankingSvc   *ranking.Service
	PortfolioSvc portfoliodomain.Service
	APIKeySvc    apikeydomain.Service
	Refrepo      referencedomain.Repository
	PDF          pdf.Provider
	Clock        clock.Clock
	Limiter      *ratelimit.APILimiter `optional:"true"`
	ObsMetrics   *obsmetrics.Metrics   `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:       p.Gin,
		cfg:          p.Cfg,
		db:           p.DB,
		log:          p.Log.Named("server"),
		riskSvc:      p.RiskSvc,
		ingestSvc:    p.IngestSvc,
		rankingSvc:   p.RankingSvc,
		portfolioSvc: p.PortfolioSvc,
		apiKeySvc:    p.APIKeySvc,
		refrepo:      p.Refrepo,
		pdf:          p.PDF,
		clock:        p.Clock,
		limiter:      p.Limiter,
		obsMetrics:   p.ObsMetrics,
	}

	svc.registerAPIRoutes()
	svc.registerAdminRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/v1")
	api.Use(s.APIKeyRequired())
	api.Use(s.APIRateLimit())

	// -------- Properties --------
	api.GET("/properties/:bbl/risk", s.GetPropertyRisk)
	api.GET("/properties/:bbl/violations", s.GetViolationSummary)
	api.GET("/properties/:bbl/heat", s.GetHeatRisk)
	api.GET("/properties/:bbl/benchmark", s.GetBenchmark)
	api.GET("/properties/:bbl/report.pdf", s.GetPropertyReport)

	// -------- Rankings --------
	api.GET("/rankings", s.ListRankings)

	// -------- Portfolios --------
	api.GET("/portfolios", s.ListPortfolios)
	api.POST("/portfolios", s.CreatePortfolio)
	api.GET("/portfolios/:slug", s.GetPortfolio)
	api.GET("/portfolios/:slug/risk", s.GetPortfolioRisk)
	api.GET("/portfolios/:slug/report.pdf", s.GetPortfolioReport)

	// -------- Reference --------
	api.GET("/reference/boroughs", s.ListBoroughs)
	api.GET("/reference/datasets", s.ListDatasets)

	// -------- Exports --------
	api.GET("/exports/latest.csv", s.LatestExportCSV)
	api.GET("/exports/latest.json", s.LatestExportJSON)
}

func (s *Server) registerAdminRoutes() {
	admin := s.engine.Group("/v1/admin")

	// --- global middlewares ---
	admin.Use(s.APIKeyRequired())
	admin.Use(s.AdminScopeRequired())
	admin.Use(s.APIRateLimit())

	// -------- Pipeline --------
	admin.POST("/refresh", s.TriggerRefresh)
	admin.GET("/runs", s.ListRuns)
	admin.GET("/runs/:id", s.GetRun)

	// -------- API keys --------
	admin.GET("/api-keys", s.ListAPIKeys)
	admin.POST("/api-keys", s.CreateAPIKey)
	admin.POST("/api-keys/:id/rotate", s.RotateAPIKey)
	admin.DELETE("/api-keys/:id", s.RevokeAPIKey)
}
