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

	router "github.com/KwakOri/vshot-server/internal/adapters/http"
	"github.com/KwakOri/vshot-server/internal/adapters/mergeclient"
	wsignal "github.com/KwakOri/vshot-server/internal/adapters/signal"
	"github.com/KwakOri/vshot-server/internal/app"
	"github.com/KwakOri/vshot-server/internal/config"
	"github.com/KwakOri/vshot-server/internal/layout"
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

	layouts := layout.BuiltIn()
	sched := app.NewScheduler()
	store := app.NewStore(sched, cfg.GracePeriod)
	if cfg.CountdownSeconds > 0 {
		store.Defaults.Timing.CountdownSeconds = cfg.CountdownSeconds
	}
	merger := mergeclient.New(cfg.MergeServiceURL, cfg.MergeTimeout)
	coordinator := app.NewCoordinator(store, sched, merger, layouts)
	coordinator.MergeTimeout = cfg.MergeTimeout
	registry := app.NewRegistry()

	ctl := wsignal.NewController(registry, store, coordinator, layouts)
	ctl.ReadLimit = cfg.ReadLimit
	ctl.PingPeriod = cfg.PingPeriod
	coordinator.Events = ctl
	store.NotifyDeleted = ctl.OnRoomExpired

	r := router.SetupRouter(ctx, cfg, store, layouts, ctl)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("vshot server started")
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
