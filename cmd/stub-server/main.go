package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/autonex-ai/autonex-client/internal/config"
	"github.com/autonex-ai/autonex-client/internal/logger"
	"github.com/autonex-ai/autonex-client/internal/stub"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.StubPort).
		Str("mode", cfg.GinMode).
		Msg("Starting Autonex stub backend")

	// ─── Build Stub with Demo Data ─────────────────────────────────────
	server := stub.New(cfg.JWTSecret, cfg.JWTExpiry, cfg.BcryptCost, log)

	if _, err := server.SeedUser("admin", "admin123", true); err != nil {
		log.Fatal().Err(err).Msg("Failed to seed admin account")
	}
	if _, err := server.SeedUser("agent", "agent123", false); err != nil {
		log.Fatal().Err(err).Msg("Failed to seed agent account")
	}
	testID := server.SeedTest("Browser automation demo", 60, []string{
		"https://demo.autonex.ai/tasks/checkout-flow",
		"https://demo.autonex.ai/tasks/form-fill",
		"https://demo.autonex.ai/tasks/table-extract",
	})
	log.Info().Int64("test_id", testID).Msg("Seeded demo accounts and test")

	// ─── Create HTTP Server ────────────────────────────────────────────
	srv := &http.Server{
		Addr:    ":" + cfg.StubPort,
		Handler: server.Engine(cfg.GinMode),
	}

	// ─── Start Server in Goroutine ─────────────────────────────────────
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("Stub listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	// ─── Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
