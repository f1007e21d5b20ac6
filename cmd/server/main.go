package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/cors"

	"scielocore/internal/config"
	"scielocore/internal/handler"
	"scielocore/internal/middleware"
	"scielocore/internal/repository/postgres"
	"scielocore/internal/service/idprovider"
)

func main() {
	// Load .env file (silently ignore if it doesn't exist - for production)
	_ = godotenv.Load()

	cfg := config.Load()

	logger, closeLog, err := config.NewLogger(cfg)
	if err != nil {
		log.Fatalf("Failed to set up logging: %v", err)
	}
	defer closeLog()

	logger.Info("server starting",
		"environment", cfg.Environment,
		"port", cfg.Port,
		"table_prefix", cfg.TablePrefix,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := postgres.CreateConnectionPool(ctx, cfg.IDPDatabaseURL)
	if err != nil {
		log.Fatalf("Failed to create connection pool: %v", err)
	}
	defer pool.Close()

	logger.Info("database connected")

	tables := postgres.NewTableNames(cfg.TablePrefix)
	repoConfig := &postgres.RepositoryConfig{
		Pool:   pool,
		Tables: tables,
		Logger: logger,
	}
	docStore := postgres.NewDocumentStore(repoConfig)
	requestLog := postgres.NewRequestLog(repoConfig)

	pipeline := idprovider.NewPipeline(docStore, requestLog, logger)
	pidHandler := handler.NewPidHandler(pipeline, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", pidHandler.HealthCheck)
	mux.HandleFunc("POST /api/requests", pidHandler.RequestID)
	mux.HandleFunc("GET /api/documents/{v3}/xml", pidHandler.GetXML)

	var h http.Handler = mux
	h = middleware.Recovery(logger)(h)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins: strings.Split(cfg.CORSOrigins, ","),
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Origin", "Content-Type", "Accept", "X-User"},
	})
	h = corsHandler.Handler(h)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      h,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown failed", "error", err)
		}
	}()

	logger.Info("listening", "port", cfg.Port)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("Failed to start server: %v", err)
	}

	if errors.Is(ctx.Err(), context.Canceled) {
		logger.Info("server stopped")
		os.Exit(130)
	}
}
