package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	router "github.com/dkeye/GameFinder/internal/adapters/http"
	"github.com/dkeye/GameFinder/internal/adapters/steam"
	"github.com/dkeye/GameFinder/internal/adapters/ws"
	"github.com/dkeye/GameFinder/internal/app"
	"github.com/dkeye/GameFinder/internal/config"
	"github.com/dkeye/GameFinder/internal/core"
	"github.com/dkeye/GameFinder/internal/protocol"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if cfg.Mode == "release" {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}
	if cfg.Steam.APIKey == "" {
		log.Warn().Msg("PLAY_API_KEY not set, catalog requests will be rejected upstream")
	}

	reg := core.NewRegistry()
	dispatcher := app.NewDispatcher(app.SimplePolicy{})
	wsSrv := ws.NewServer(dispatcher, ws.OptionsFrom(cfg))
	catalog := steam.NewClient(cfg.Steam, afero.NewOsFs(), nil)

	log.Debug().Strs("tags", protocol.Tags()).Msg("accepting frame types")

	r := router.SetupRouter(cfg, reg, wsSrv, catalog)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", addr).Msg("GameFinder server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Int("sessions", reg.Len()).Msg("Shutting down")
		log.Debug().Interface("ids", reg.IDs()).Msg("sessions still live")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Server forced to shutdown")
		}
		return wsSrv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("server error")
		os.Exit(1)
	}
	log.Info().Msg("Server exited gracefully")
}
