package middleware

import (
	"slices"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/robcowart/docsign/internal/config"
)

// CORSMiddleware configures CORS based on configuration. A "*" origin
// allows every origin but then credentials are not allowed.
func CORSMiddleware(cfg *config.Config) gin.HandlerFunc {
	if !cfg.Security.CORSEnabled {
		return func(c *gin.Context) {
			c.Next()
		}
	}

	corsConfig := cors.Config{
		AllowMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Authorization"},
		// Downloads need the suggested file name and the stored record id.
		ExposeHeaders: []string{"Content-Length", "Content-Disposition", "X-Certificate-ID"},
		MaxAge:        12 * time.Hour,
	}

	if slices.Contains(cfg.Security.CORSOrigins, "*") {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = cfg.Security.CORSOrigins
		corsConfig.AllowCredentials = true
	}

	return cors.New(corsConfig)
}
