package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/smallbiznis/integration-hub/internal/config"
	"github.com/smallbiznis/integration-hub/internal/http/handler"
	httpmiddleware "github.com/smallbiznis/integration-hub/internal/http/middleware"
	"github.com/smallbiznis/integration-hub/internal/middleware"
)

// NewRouter wires Gin routes and middleware.
func NewRouter(cfg config.Config, integrations *handler.IntegrationHandler, logs *handler.LogsHandler, rateLimiter *middleware.RateLimiter) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(httpmiddleware.RequestLogger(nil))
	if rateLimiter != nil {
		r.Use(rateLimiter.Handler())
	}
	r.Use(middleware.CORS(cfg))
	r.Use(otelgin.Middleware(cfg.ServiceName))

	group := r.Group("/integrations/:integration")
	{
		group.POST("/authorize", integrations.Authorize)
		group.GET("/oauth2callback", integrations.OAuthCallback)
		group.POST("/credentials", integrations.Credentials)
		group.POST("/load", integrations.Load)
	}

	r.POST("/logs", logs.Store)

	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	})
	r.GET("/healthcheck", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	return r
}
