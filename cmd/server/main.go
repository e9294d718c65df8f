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

	router "github.com/sergiobarbero91-prog/airband/internal/adapters/http"
	"github.com/sergiobarbero91-prog/airband/internal/app"
	"github.com/sergiobarbero91-prog/airband/internal/config"
	"github.com/sergiobarbero91-prog/airband/internal/domain"
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
		log.Fatal().Err(err).Msg("failed to load config")
	}

	roster := make([]domain.Channel, 0, len(cfg.Channels))
	for _, entry := range cfg.Channels {
		roster = append(roster, domain.Channel{
			ID:          domain.ChannelID(entry.ID),
			DisplayName: entry.Name,
		})
	}

	channels := app.NewChannelManager(roster, cfg.LeaseDuration, app.ThresholdPolicy{Limit: cfg.KickThreshold})
	defer channels.StopAll()

	coord := &app.Coordinator{
		Registry: app.NewRegistry(),
		Channels: channels,
	}

	sweeper := &app.Sweeper{Channels: channels, Interval: cfg.SweepInterval}
	go sweeper.Run(ctx)

	r := router.SetupRouter(ctx, cfg, coord)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("Radio server started")
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
