// Package api provides HTTP routing for the docsign server.
// It wires together handlers and middleware over the certificate, CA and
// signing services.
package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/robcowart/docsign/internal/api/handlers"
	"github.com/robcowart/docsign/internal/api/middleware"
	"github.com/robcowart/docsign/internal/config"
	"go.uber.org/zap"
)

// Services are the collaborators the HTTP layer exposes.
type Services struct {
	Issuer    handlers.CertificateIssuer
	Store     handlers.CertificateStore
	Validator handlers.PassphraseChecker
	Signer    handlers.DocumentSigner
	Root      handlers.RootCertificateSource
}

// NewRouter creates and configures the HTTP router
func NewRouter(cfg *config.Config, svc Services, logger *zap.Logger) *gin.Engine {
	// Set Gin mode
	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.MaxMultipartMemory = cfg.Server.MaxUploadBytes

	// Global middleware
	router.Use(gin.Recovery())
	router.Use(middleware.LoggerMiddleware(logger))
	router.Use(middleware.CORSMiddleware(cfg))
	router.Use(middleware.BodyLimit(cfg.Server.MaxUploadBytes))

	caHandler := handlers.NewCAHandler(svc.Root, logger)
	certHandler := handlers.NewCertificateHandler(svc.Issuer, svc.Store, svc.Validator, cfg.Issuer.DefaultValidityDays, cfg.Server.MaxUploadBytes, logger)
	signHandler := handlers.NewSigningHandler(svc.Signer, cfg.Server.MaxUploadBytes, logger)

	// Public routes
	public := router.Group("/api/v1")
	{
		public.GET("/health", caHandler.Health)
	}

	// Protected routes (require authentication)
	protected := router.Group("/api/v1")
	protected.Use(middleware.AuthMiddleware(cfg))
	{
		protected.GET("/ca/certificate", caHandler.RootCertificate)

		// Certificates
		protected.POST("/certificates/generate", certHandler.Generate)
		protected.POST("/certificates/upload", certHandler.Upload)
		protected.GET("/certificates", certHandler.ListCertificates)
		protected.GET("/certificates/:id", certHandler.GetCertificate)
		protected.GET("/certificates/:id/download", certHandler.DownloadCertificate)
		protected.POST("/certificates/:id/validate", certHandler.ValidatePassword)
		protected.DELETE("/certificates/:id", certHandler.DeleteCertificate)

		// Documents
		protected.POST("/documents/sign", signHandler.SignDocument)
		protected.POST("/documents/verify", signHandler.VerifyDocument)
	}

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "route not found", "code": "not_found"})
	})

	return router
}
