package api

import (
	"github.com/gin-gonic/gin"
	"github.com/obralink/obralink/internal/api/handler"
	"github.com/obralink/obralink/internal/api/middleware"
	"github.com/obralink/obralink/internal/logger"
)

// RouterConfig holds router-level configuration.
type RouterConfig struct {
	Mode string
	CORS middleware.CORSConfig
}

// SetupRouter configures the Gin router with all routes
func SetupRouter(
	jobHandler *handler.JobHandler,
	auth middleware.Authenticator,
	log *logger.Logger,
	cfg *RouterConfig,
) *gin.Engine {
	// Set Gin mode
	switch cfg.Mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	r := gin.New()

	// Add middleware
	r.Use(gin.Recovery())
	r.Use(middleware.LoggerMiddleware(log))
	r.Use(middleware.CORS(cfg.CORS))

	// Health check
	healthHandler := handler.NewHealthHandler()
	r.GET("/health", healthHandler.Health)

	// API v1 routes, all behind bearer auth
	v1 := r.Group("/api/v1")
	v1.Use(middleware.Auth(auth))
	{
		v1.POST("/jobs", jobHandler.Submit)
		v1.POST("/jobs/:id/run", jobHandler.Run)
		v1.GET("/jobs/:id/status", jobHandler.Status)
	}

	return r
}
