package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/millroll/internal/config"
	inputrolldomain "github.com/smallbiznis/millroll/internal/inputroll/domain"
	jobdomain "github.com/smallbiznis/millroll/internal/job/domain"
	machinedomain "github.com/smallbiznis/millroll/internal/machine/domain"
	"github.com/smallbiznis/millroll/internal/observability"
	obsmiddleware "github.com/smallbiznis/millroll/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/millroll/internal/observability/metrics"
	obstracing "github.com/smallbiznis/millroll/internal/observability/tracing"
	outputrolldomain "github.com/smallbiznis/millroll/internal/outputroll/domain"
	postingdomain "github.com/smallbiznis/millroll/internal/posting/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
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
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	if httpMetrics != nil {
		r.Use(httpMetrics.GinMiddleware())
	}
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

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Info("http server listening", zap.String("addr", srv.Addr))
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
	db            *gorm.DB
	machineSvc    machinedomain.Service
	jobSvc        jobdomain.Service
	inputRollSvc  inputrolldomain.Service
	outputRollSvc outputrolldomain.Service
	postingSvc    postingdomain.Service
}

type ServerParams struct {
	fx.In

	Gin           *gin.Engine
	Cfg           config.Config
	DB            *gorm.DB
	MachineSvc    machinedomain.Service
	JobSvc        jobdomain.Service
	InputRollSvc  inputrolldomain.Service
	OutputRollSvc outputrolldomain.Service
	PostingSvc    postingdomain.Service
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:        p.Gin,
		cfg:           p.Cfg,
		db:            p.DB,
		machineSvc:    p.MachineSvc,
		jobSvc:        p.JobSvc,
		inputRollSvc:  p.InputRollSvc,
		outputRollSvc: p.OutputRollSvc,
		postingSvc:    p.PostingSvc,
	}
	svc.registerAPIRoutes()
	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api", UserIdentity())

	// -------- Machines --------
	api.GET("/machines", s.ListMachines)
	api.GET("/machines/:id", s.GetMachineByID)

	// -------- Jobs --------
	api.GET("/jobs", s.ListActiveJobs)
	api.POST("/jobs", s.OpenJob)
	api.GET("/jobs/:id", s.GetJobByID)
	api.POST("/jobs/:id/end", s.EndJob)

	// -------- Input Rolls --------
	api.POST("/input-rolls", s.CreateInputRoll)
	api.GET("/input-rolls/:id", s.GetInputRollByID)
	api.POST("/input-rolls/:id/end", s.EndInputRoll)

	// -------- Output Rolls --------
	api.GET("/output-rolls", s.ListOutputRolls)
	api.POST("/output-rolls", s.CreateOutputRoll)
	api.GET("/output-rolls/:id", s.GetOutputRollByID)
	api.GET("/output-rolls/:id/lineage", s.GetOutputRollLineage)
	api.PUT("/output-rolls/:id/final-weight", s.ApplyFinalWeight)

	// -------- ERP Postings --------
	api.GET("/erp-postings", s.ListERPPostings)
}
