package app

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"elevate.dev/elevate/internal/api/handlers"
	"elevate.dev/elevate/internal/api/middleware"
	"elevate.dev/elevate/internal/api/openapi"
	"elevate.dev/elevate/internal/config"
)

func newRouter(cfg *config.Config, server *handlers.Server) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestID())
	if cors := middleware.CORS(cfg.Server); cors != nil {
		router.Use(cors)
	}

	// The validator wraps the error handler so rendered errors are checked too.
	api := router.Group(openapi.BasePath,
		middleware.MustOpenAPIValidator(openapi.BasePath),
		middleware.ErrorHandler(),
	)
	handlers.RegisterRoutes(api, server)

	router.GET("/openapi.yaml", func(c *gin.Context) {
		c.Data(http.StatusOK, "application/yaml", openapi.Raw())
	})
	return router
}
