package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Relay/internal/app"
	"github.com/dkeye/Relay/internal/config"
	"github.com/dkeye/Relay/internal/core"
	"github.com/dkeye/Relay/internal/gateway"
	"github.com/dkeye/Relay/internal/signature"
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
		os.Exit(1)
	}

	// Credential material is validated up front; without it the process
	// refuses to accept any session.
	sig, err := signature.New(cfg.ClientID, cfg.ClientSecret, cfg.SecretToken)
	if err != nil {
		log.Error().Err(err).Msg("invalid credentials")
		os.Exit(1)
	}

	bus := core.NewBus()
	forwarder := app.NewForwarder(cfg.ConsumerBaseURL, cfg.ForwardTimeout)
	sink := func(ev core.Event) {
		bus.Publish(ev)
		forwarder.Send(ev)
	}
	registry := app.NewRegistry(cfg, sig, sink)

	go forwarder.Run(ctx)
	go registry.Run(ctx, bus)

	ctrl := &gateway.Controller{
		Sig:          sig,
		Bus:          bus,
		DefaultMedia: cfg.SubscribedMedia(),
	}
	r := gateway.SetupRouter(cfg, ctrl)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("Relay server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()
	registry.CloseAll(shutdownCtx)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited gracefully")
}
