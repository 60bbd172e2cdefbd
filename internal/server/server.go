package server

import (
	"context"
	"net/http"
	"time"

	"github.com/geocubed/cubehub/internal/auth"
	"github.com/geocubed/cubehub/internal/callback"
	callbackdomain "github.com/geocubed/cubehub/internal/callback/domain"
	"github.com/geocubed/cubehub/internal/config"
	"github.com/geocubed/cubehub/internal/cubegen"
	cubegendomain "github.com/geocubed/cubehub/internal/cubegen/domain"
	"github.com/geocubed/cubehub/internal/estimator"
	"github.com/geocubed/cubehub/internal/ledger"
	ledgerdomain "github.com/geocubed/cubehub/internal/ledger/domain"
	"github.com/geocubed/cubehub/internal/observability"
	obslogger "github.com/geocubed/cubehub/internal/observability/logger"
	obstracing "github.com/geocubed/cubehub/internal/observability/tracing"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Module wires the HTTP surface together with the domain services it serves.
var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	auth.Module,
	estimator.Module,
	ledger.Module,
	cubegen.Module,
	callback.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

// NewEngine assembles the gin engine with the shared middleware chain.
func NewEngine(obsCfg observability.Config) *gin.Engine {
	if !obsCfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(obslogger.MiddlewareConfig{
		Debug: obsCfg.Debug(),
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config) *gin.Engine {
	return NewEngine(obsCfg)
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config, log *zap.Logger) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			_ = ctx
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http server failed", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

// Server holds handler dependencies.
type Server struct {
	engine      *gin.Engine
	cfg         config.Config
	log         *zap.Logger
	verifier    *auth.Verifier
	cubegenSvc  cubegendomain.Service
	callbackSvc callbackdomain.Service
	ledgerSvc   ledgerdomain.Service
}

// Params collects server dependencies.
type Params struct {
	fx.In

	Engine      *gin.Engine
	Cfg         config.Config
	Log         *zap.Logger
	Verifier    *auth.Verifier
	CubegenSvc  cubegendomain.Service
	CallbackSvc callbackdomain.Service
	LedgerSvc   ledgerdomain.Service
}

// NewServer registers all routes on the engine.
func NewServer(p Params) *Server {
	s := &Server{
		engine:      p.Engine,
		cfg:         p.Cfg,
		log:         p.Log.Named("server"),
		verifier:    p.Verifier,
		cubegenSvc:  p.CubegenSvc,
		callbackSvc: p.CallbackSvc,
		ledgerSvc:   p.LedgerSvc,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	authorized := s.engine.Group("/", s.AuthRequired())

	authorized.PUT("/cubegens", s.CreateCubegen)
	authorized.GET("/cubegens", s.ListCubegens)
	authorized.GET("/cubegens/:id", s.GetCubegen)
	authorized.DELETE("/cubegens", s.DeleteCubegens)
	authorized.DELETE("/cubegens/:id", s.DeleteCubegen)
	authorized.POST("/cubegens/info", s.CubegenInfo)
	authorized.PUT("/cubegens/:id/callbacks", s.PutCubegenCallback)

	authorized.GET("/users/:user/punits", s.GetPunits)
	authorized.PUT("/users/:user/punits", s.UpdatePunits)
	authorized.DELETE("/users/:user/punits", s.DeletePunits)
}
