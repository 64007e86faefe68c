package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robcowart/docsign/internal/api"
	"github.com/robcowart/docsign/internal/ca"
	"github.com/robcowart/docsign/internal/config"
	dscrypto "github.com/robcowart/docsign/internal/crypto"
	"github.com/robcowart/docsign/internal/database"
	"github.com/robcowart/docsign/internal/service"
	"github.com/robcowart/docsign/internal/signing"
	"go.uber.org/zap"
)

const version = "0.1.0"

func main() {
	// Parse command line flags
	flags, configFile, showVersion := config.ParseFlags()

	if showVersion {
		fmt.Printf("docsign v%s\n", version)
		os.Exit(0)
	}

	cfg, err := config.Load(configFile, flags)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := initLogger(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("Starting docsign",
		zap.String("version", version),
		zap.String("database", cfg.Database.Type),
	)

	db, err := database.New(cfg)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		logger.Fatal("Failed to run migrations", zap.Error(err))
	}

	provider, err := dscrypto.NewSoftwareProvider(cfg.Crypto.PKCS12Encoding)
	if err != nil {
		logger.Fatal("Failed to initialize crypto provider", zap.Error(err))
	}
	validator := service.NewPassphraseValidator(provider)

	masterKey, err := service.LoadMasterKey(context.Background(), cfg, db, logger)
	if err != nil {
		logger.Fatal("Failed to load store master key", zap.Error(err))
	}

	store, err := service.NewCertificateStore(db, validator, masterKey, logger)
	if err != nil {
		logger.Fatal("Failed to initialize certificate store", zap.Error(err))
	}

	if flags.SweepCorrupted() {
		removed, err := store.SweepCorrupted(context.Background())
		if err != nil {
			logger.Fatal("Failed to sweep corrupted certificates", zap.Error(err))
		}
		logger.Info("Swept corrupted certificates", zap.Int64("removed", removed))
		return
	}

	root := ca.NewRootManager(ca.Config{
		Dir:          cfg.CA.Dir,
		KeyBits:      cfg.CA.KeyBits,
		CommonName:   cfg.CA.CommonName,
		Organization: cfg.CA.Organization,
		Country:      cfg.CA.Country,
		ValidityDays: cfg.CA.ValidityDays,
	}, provider, logger)
	if _, err := root.EnsureRoot(); err != nil {
		logger.Fatal("Failed to initialize certificate authority", zap.Error(err))
	}

	limiter := service.NewLimiter(cfg.Crypto.MaxConcurrentOperations)

	engine, err := signing.NewEngine(cfg, store, validator, root, limiter, logger)
	if err != nil {
		logger.Fatal("Failed to initialize signing engine", zap.Error(err))
	}

	router := api.NewRouter(cfg, api.Services{
		Issuer:    service.NewIssuer(cfg, provider, root, limiter, logger),
		Store:     store,
		Validator: validator,
		Signer:    engine,
		Root:      root,
	}, logger)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info("Starting HTTP server",
			zap.String("address", srv.Addr),
			zap.Bool("tls", cfg.Server.TLSEnabled),
		)

		var err error
		if cfg.Server.TLSEnabled {
			err = srv.ListenAndServeTLS(cfg.Server.TLSCert, cfg.Server.TLSKey)
		} else {
			err = srv.ListenAndServe()
		}

		if err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server stopped")
}

func initLogger(cfg *config.Config) (*zap.Logger, error) {
	var zapConfig zap.Config

	if cfg.Logging.Format == "json" {
		zapConfig = zap.NewProductionConfig()
	} else {
		zapConfig = zap.NewDevelopmentConfig()
	}

	switch cfg.Logging.Level {
	case "debug":
		zapConfig.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "warn":
		zapConfig.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		zapConfig.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		zapConfig.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	if cfg.Logging.Output != "" && cfg.Logging.Output != "stdout" {
		zapConfig.OutputPaths = []string{cfg.Logging.Output}
	}

	return zapConfig.Build()
}
