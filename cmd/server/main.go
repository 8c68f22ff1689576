package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/jwtauth"
	"github.com/ilyakaznacheev/cleanenv"

	"github.com/tendant/simple-repo/pkg/simplerepo/api"
	"github.com/tendant/simple-repo/pkg/simplerepo/config"
)

// Config is the environment configuration of the repository server.
type Config struct {
	Port        string `env:"PORT" env-default:"8080"`
	Environment string `env:"ENVIRONMENT" env-default:"development"`

	DatabaseURL string `env:"DATABASE_URL" env-default:""`
	DBSchema    string `env:"DB_SCHEMA" env-default:"repo"`

	StorageURL        string `env:"STORAGE_URL" env-default:"file:///var/lib/simple-repo"`
	PathPattern       string `env:"PATH_PATTERN" env-default:"@{year}"`
	VersioningService string `env:"VERSIONING_SERVICE" env-default:""`

	ReadOnly  bool   `env:"READ_ONLY" env-default:"false"`
	JWTSecret string `env:"JWT_SECRET" env-default:""`
}

func main() {
	var envConfig Config
	if err := cleanenv.ReadEnv(&envConfig); err != nil {
		slog.Error("Failed to read configuration", "err", err)
		os.Exit(1)
	}

	logger := newLogger(envConfig.Environment)
	slog.SetDefault(logger)

	serverConfig, err := config.Load(withEnvConfig(envConfig), config.WithEnv(""))
	if err != nil {
		logger.Error("Failed to load server configuration", "err", err)
		os.Exit(1)
	}

	svc, err := serverConfig.BuildService(logger)
	if err != nil {
		logger.Error("Failed to build service", "err", err)
		os.Exit(1)
	}

	handler := api.NewResourceHandler(svc)

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(60 * time.Second))

	if serverConfig.JWTSecret != "" {
		r.Use(jwtauth.Verifier(api.NewTokenAuth(serverConfig.JWTSecret)))
	}
	r.Use(api.Authenticator)
	r.Use(api.ReadOnly(serverConfig.ReadOnly))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, `{"status": "healthy", "environment": "%s", "versioning_service": "%s"}`,
			serverConfig.Environment, serverConfig.VersioningService)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Mount("/dataresources", handler.Routes())
	})

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%s", serverConfig.Port),
		Handler: r,
	}

	go func() {
		logger.Info("Simple Repo Server starting",
			"port", serverConfig.Port,
			"env", serverConfig.Environment,
			"database", serverConfig.DatabaseType,
			"versioning_service", serverConfig.VersioningService,
			"read_only", serverConfig.ReadOnly)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Server error", "err", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", "err", err)
		os.Exit(1)
	}
	logger.Info("Server exiting")
}

// withEnvConfig seeds the server configuration from the cleanenv struct.
// config.WithEnv applies on top so direct environment overrides win.
func withEnvConfig(envConfig Config) config.Option {
	return func(c *config.ServerConfig) error {
		c.Port = envConfig.Port
		c.Environment = envConfig.Environment
		c.DBSchema = envConfig.DBSchema
		c.PathPattern = envConfig.PathPattern
		c.ReadOnly = envConfig.ReadOnly
		c.JWTSecret = envConfig.JWTSecret
		if envConfig.VersioningService != "" {
			c.VersioningService = envConfig.VersioningService
		}
		return nil
	}
}

func newLogger(environment string) *slog.Logger {
	if environment == "production" {
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
}
