package httpapi

import (
	"gato-backoffice/pkg/config"
	"gato-backoffice/pkg/health"
	"gato-backoffice/pkg/identity"
	"gato-backoffice/pkg/middleware"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/fx"
)

var Module = fx.Module("httpapi",
	fx.Provide(
		identity.NewVerifier,
		NewRouter,
		func(r *Router) *gin.Engine { return r.Engine },
	),
)

// Router holds the gin engine and the authenticated /api/v1 group that
// service modules mount their routes on.
type Router struct {
	Engine *gin.Engine
	API    *gin.RouterGroup
}

func NewRouter(cfg *config.Config, verifier *identity.Verifier, h health.HealthService) *Router {
	if cfg.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery(), otelgin.Middleware(cfg.AppName))
	if cfg.Server.MaxUploadMB > 0 {
		engine.MaxMultipartMemory = cfg.Server.MaxUploadMB << 20
	}

	engine.GET("/healthz", h.Liveness)
	engine.GET("/readyz", h.Readiness)

	return Mount(engine, verifier)
}

// Mount adds the authenticated /api/v1 group to engine.
func Mount(engine *gin.Engine, verifier *identity.Verifier) *Router {
	api := engine.Group("/api/v1", middleware.Error(), middleware.Authenticate(verifier))
	return &Router{Engine: engine, API: api}
}
