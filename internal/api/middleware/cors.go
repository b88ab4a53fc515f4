package middleware

import (
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"elevate.dev/elevate/internal/config"
	"elevate.dev/elevate/internal/pkg/logger"
)

// BuildCORSConfig derives the CORS policy from server settings.
// With no allowed origins and no explicit opt-in, cross-origin requests are refused.
// A "*" entry is ignored unless UnsafeAllowAllOrigins is set.
func BuildCORSConfig(cfg config.ServerConfig) cors.Config {
	cc := cors.Config{
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", RequestIDHeader},
		ExposeHeaders:    []string{"Content-Length", RequestIDHeader},
		AllowCredentials: cfg.AllowCredentials,
		AllowWebSockets:  true,
		MaxAge:           12 * time.Hour,
	}
	if cfg.UnsafeAllowAllOrigins {
		// Browsers reject credentials with a wildcard origin.
		cc.AllowAllOrigins = true
		cc.AllowCredentials = false
		return cc
	}
	for _, origin := range cfg.AllowedOrigins {
		origin = strings.TrimSpace(origin)
		// A wildcard needs the explicit unsafe opt-in.
		if origin == "" || origin == "*" {
			continue
		}
		cc.AllowOrigins = append(cc.AllowOrigins, origin)
	}
	return cc
}

// CORS returns the gin CORS middleware, or nil when no origin is allowed.
func CORS(cfg config.ServerConfig) gin.HandlerFunc {
	cc := BuildCORSConfig(cfg)
	if !cc.AllowAllOrigins && len(cc.AllowOrigins) == 0 {
		logger.Info("CORS disabled: no allowed origins configured")
		return nil
	}
	return cors.New(cc)
}
