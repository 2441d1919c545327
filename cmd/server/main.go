package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	router "github.com/sharecast/relay/internal/adapters/http"
	"github.com/sharecast/relay/internal/config"
	"github.com/sharecast/relay/internal/gate"
	"github.com/sharecast/relay/internal/hub"
	"github.com/sharecast/relay/internal/service"
	sig "github.com/sharecast/relay/internal/signal"
	"github.com/sharecast/relay/internal/state"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	// Human-friendly output for terminal; in production you may want JSON only.
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Error().Err(err).Msg("failed to load config")
	}

	var store state.Store
	if cfg.RedisURL != "" {
		redisStore, err := state.NewRedisStore(ctx, cfg.RedisURL, cfg.GuestSessionTTL, cfg.ActiveUserTTL)
		if err != nil {
			log.Fatal().Err(err).Msg("redis unreachable")
		}
		store = redisStore
		log.Info().Str("module", "main").Msg("using redis state store")
	} else {
		memStore := state.NewMemoryStore(cfg.GuestSessionTTL, cfg.ActiveUserTTL)
		memStore.StartSweeper(ctx, cfg.SweepInterval)
		store = memStore
		log.Info().Str("module", "main").Msg("no redis url configured, using in-memory state store")
	}
	defer store.Close()

	rooms := service.NewRooms()
	files := service.NewCatalog()
	docs := service.NewDocs()

	g := gate.New(gate.NewHMACVerifier(cfg.JWTSecret), store, rooms)
	registry := hub.NewRegistry(cfg.MaxPresenters)
	governor := sig.NewGovernor(cfg.Rate)

	roomCtl := sig.NewRoomController(registry, g, governor, files, store, cfg)
	docCtl := sig.NewDocController(registry, g, governor, docs, store, cfg)
	handlers := router.NewHandlers(cfg, store, registry, g, rooms, docs)

	r := router.SetupRouter(ctx, cfg, handlers, roomCtl, docCtl)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("relay server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited gracefully")
}
