package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"planet-defense/internal/encounter"
)

const (
	preloadTimeout  = 10 * time.Second
	shutdownTimeout = 5 * time.Second
)

func main() {
	configDir := flag.String("config", "", "Directory holding planet-defense.yaml (default: working directory)")
	flag.Parse()

	cfg, err := LoadConfig(*configDir)
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	setupLogging(cfg.Log, os.Stderr)

	clientDir := cfg.Server.ClientDir
	if clientDir == "" {
		exe, _ := os.Executable()
		clientDir = filepath.Join(filepath.Dir(exe), "..", "client")
		// Fallback for development
		if _, err := os.Stat(clientDir); os.IsNotExist(err) {
			clientDir = "../client"
		}
	}

	db, err := OpenDB(cfg.DB.Path)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DB.Path).Msg("open database")
	}
	analytics := NewAnalytics(db)
	auth, err := NewAuth(db)
	if err != nil {
		log.Fatal().Err(err).Msg("set up auth")
	}

	var loader encounter.ArchetypeLoader = encounter.BuiltinLoader()
	if cfg.Assets.Dir != "" {
		loader = encounter.FSLoader{FS: os.DirFS(cfg.Assets.Dir)}
	}
	cache := encounter.NewResourceCache(loader)
	ctx, cancel := context.WithTimeout(context.Background(), preloadTimeout)
	if err := cache.Preload(ctx, cfg.Assets.Archetype); err != nil {
		cancel()
		log.Fatal().Err(err).Str("archetype", cfg.Assets.Archetype).Msg("preload archetype")
	}
	cancel()

	if cfg.Server.SessionIdle > 0 {
		SessionIdleTimeout = cfg.Server.SessionIdle
	}

	hub := NewHub(GameDeps{
		DB:        db,
		Analytics: analytics,
		Cache:     cache,
		Tuning:    cfg.Encounter,
		Archetype: cfg.Assets.Archetype,
	}, auth)
	go hub.Run()

	mux := SetupRoutes(hub, clientDir, cfg.Server.PublicURL)
	server := &http.Server{Addr: cfg.Server.Addr, Handler: mux}

	// Graceful shutdown
	stop, stopSignals := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stopSignals()

	go func() {
		log.Info().Str("addr", cfg.Server.Addr).Str("client", clientDir).Msg("server starting")
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("listen")
		}
	}()

	<-stop.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("http shutdown")
	}
	hub.sessions.StopAll()
	analytics.Stop()
	if err := db.Close(); err != nil {
		log.Warn().Err(err).Msg("close database")
	}
}
