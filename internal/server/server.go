package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	auditdomain "github.com/smallbiznis/wealthdesk/internal/audit/domain"
	"github.com/smallbiznis/wealthdesk/internal/config"
	importdomain "github.com/smallbiznis/wealthdesk/internal/importjob/domain"
	"github.com/smallbiznis/wealthdesk/internal/importjob/progress"
	"github.com/smallbiznis/wealthdesk/internal/observability"
	obsmiddleware "github.com/smallbiznis/wealthdesk/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/wealthdesk/internal/observability/metrics"
	obstracing "github.com/smallbiznis/wealthdesk/internal/observability/tracing"
	organizationdomain "github.com/smallbiznis/wealthdesk/internal/organization/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug: obsCfg.Debug(),
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
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
	engine          *gin.Engine
	cfg             config.Config
	db              *gorm.DB
	genID           *snowflake.Node
	organizationSvc organizationdomain.Service
	importSvc       importdomain.Service
	undoSvc         importdomain.UndoService
	auditSvc        auditdomain.Service
	progressHub     *progress.Hub
}

type ServerParams struct {
	fx.In

	Gin             *gin.Engine
	Cfg             config.Config
	DB              *gorm.DB
	GenID           *snowflake.Node
	OrganizationSvc organizationdomain.Service
	ImportSvc       importdomain.Service
	UndoSvc         importdomain.UndoService
	AuditSvc        auditdomain.Service
	ProgressHub     *progress.Hub `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:          p.Gin,
		cfg:             p.Cfg,
		db:              p.DB,
		genID:           p.GenID,
		organizationSvc: p.OrganizationSvc,
		importSvc:       p.ImportSvc,
		undoSvc:         p.UndoSvc,
		auditSvc:        p.AuditSvc,
		progressHub:     p.ProgressHub,
	}

	svc.registerAPIRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	v1 := s.engine.Group("/v1")

	v1.POST("/organizations", s.CreateOrganization)
	v1.GET("/organizations/:id", s.OrgRequired(), s.GetOrganization)

	// -------- Imports --------
	v1.POST("/imports", s.OrgRequired(), s.StartImport)
	v1.GET("/imports", s.OrgRequired(), s.ListImports)
	v1.GET("/imports/:id", s.OrgRequired(), s.GetImport)
	v1.GET("/imports/:id/events", s.OrgRequired(), s.StreamImportEvents)

	// -------- Undo --------
	v1.POST("/imports/:id/undo", s.OrgRequired(), s.RequestUndo)
	v1.GET("/imports/:id/undo", s.OrgRequired(), s.GetUndoState)

	// -------- Audit --------
	v1.GET("/audit-logs", s.OrgRequired(), s.ListAuditLogs)
}
