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

	"github.com/robrotell/vril/app/api"
	"github.com/robrotell/vril/app/auth"
	"github.com/robrotell/vril/app/cache"
	"github.com/robrotell/vril/app/cfg"
	"github.com/robrotell/vril/app/database"
	"github.com/robrotell/vril/app/images"
	"github.com/robrotell/vril/app/ingest"
	"github.com/robrotell/vril/app/scrape"
	"github.com/robrotell/vril/app/taxonomy"
	"github.com/robrotell/vril/app/tmdb"
)

func main() {
	appCfg, err := cfg.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if appCfg == nil {
		// Help was shown, exit gracefully
		return
	}

	logLevel := slog.LevelInfo
	if appCfg.Debug {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	slog.Info("Starting Vril server", "version", appCfg.Version)

	db, err := database.NewConnection(appCfg.DBPath)
	if err != nil {
		slog.Error("Failed to open database", "path", appCfg.DBPath, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	version, dirty, err := database.RunMigrations(db)
	if err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}
	slog.Info("Database ready", "path", appCfg.DBPath, "schema_version", version, "dirty", dirty)

	// Repositories
	movieRepo := database.NewMovieRepository(db)
	articleRepo := database.NewArticleRepository(db)
	termRepo := database.NewTermRepository(db)
	assetRepo := database.NewAssetRepository(db)
	metaRepo := database.NewMetaRepository(db)

	httpTimeout := time.Duration(appCfg.HTTPTimeout) * time.Second

	// Upstream clients
	tmdbClient := tmdb.NewClient(appCfg.TMDbAPIKey, appCfg.UserAgent, httpTimeout)

	var optimizer images.Optimizer = images.NoopOptimizer{}
	if appCfg.TinifyAPIKey != "" {
		optimizer = images.NewTinifyOptimizer(appCfg.TinifyAPIKey, httpTimeout)
		slog.Info("Image optimization enabled")
	} else {
		slog.Info("Image optimization disabled (no Tinify API key)")
	}

	store, err := images.NewStore(appCfg.MediaDir)
	if err != nil {
		slog.Error("Failed to open media directory", "dir", appCfg.MediaDir, "error", err)
		os.Exit(1)
	}

	// Core components
	resolver := taxonomy.NewResolver(termRepo)
	fetcher := images.NewFetcher(optimizer, store, appCfg.UserAgent, httpTimeout)
	pipeline := ingest.NewPipeline(tmdbClient, resolver, fetcher, store, movieRepo, assetRepo, metaRepo)
	articleIngestor := ingest.NewArticleIngestor(scrape.NewScraper(appCfg.UserAgent, httpTimeout), resolver, articleRepo, metaRepo)
	queryCache := cache.NewQueryCache(metaRepo)

	var tokens *auth.TokenService
	if appCfg.AuthEnabled() {
		tokens = auth.NewTokenService(
			appCfg.AuthSecret,
			appCfg.AuthUsername,
			appCfg.AuthAppPasswordHash,
			time.Duration(appCfg.TokenTTLHours)*time.Hour,
		)
	}

	handler := api.NewHandler(pipeline, articleIngestor, tmdbClient, queryCache,
		movieRepo, articleRepo, termRepo, assetRepo, tokens, appCfg.Debug, appCfg.Version)
	server := api.NewServer(handler, appCfg.MediaDir)

	httpServer := &http.Server{
		Addr:         ":" + appCfg.Port,
		Handler:      server,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "port", appCfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		slog.Info("Received signal", "signal", sig.String())
	case err := <-serverErrChan:
		slog.Error("Server error", "error", err)
	}

	slog.Info("Shutting down gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	slog.Info("Shutdown complete")
}
