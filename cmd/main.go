package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"

	"voicehub/admission"
	"voicehub/analysis"
	"voicehub/coordinator"
	"voicehub/domain"
	"voicehub/handlers"
	"voicehub/infrastructure/ws"
	"voicehub/internal"
	"voicehub/moderation"
	"voicehub/observability"
	"voicehub/repositories"
	"voicehub/runtime"
	"voicehub/runtime/workers"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// run initializes all components, manages the server lifecycle, and centralizes error reporting.
// This pattern is preferred over calling os.Exit or panic directly because:
// 1. It ensures all 'defer' statements (like database cleanup) are executed before the program exits.
// 2. It improves testability by decoupling the initialization logic from the main entry point.
// 3. It provides a structured way to handle graceful shutdowns for the servers and background workers.
func run() error {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	// 2. Database (BadgerDB)
	db, err := badger.Open(badger.DefaultOptions(config.BadgerFilepath).
		WithLoggingLevel(badger.INFO))
	if err != nil {
		return fmt.Errorf("database opening failed: %w", err)
	}
	//  Defer will be executed before run() returned anything to main()
	defer func() {
		log.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	// 3. Persistence collaborators & participant coordination
	audit := repositories.NewAuditRepository(db, log)
	directory := repositories.NewUserDirectory(db)
	coord := coordinator.NewCoordinator(log, directory, audit, config.SpeakingThreshold)

	// 4. Admission pipeline
	replacement, err := CharacterRune(config.ModerationCharReplacement)
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	moderator, err := moderation.NewModerator(moderation.DefaultWords, replacement)
	if err != nil {
		return fmt.Errorf("moderator init failed: %w", err)
	}
	validator := admission.NewValidator(log, moderator)
	limiter := admission.NewRateLimiter(map[domain.Priority]admission.Quota{
		domain.PriorityLow:    {Cap: config.RateCapLow, Window: config.RateWindow},
		domain.PriorityNormal: {Cap: config.RateCapNormal, Window: config.RateWindow},
		domain.PriorityHigh:   {Cap: config.RateCapHigh, Window: config.RateWindow},
		domain.PriorityUrgent: {Cap: config.RateCapUrgent, Window: config.RateWindow},
	}, time.Now)

	// 5. Dispatch engine & workers
	stats := observability.NewStatsManager(log)
	registry := runtime.NewRegistry(log)
	table := runtime.NewHandlerTable(log)
	engine := analysis.NewEngine(log, registry, config.AnalysisStepDelay)
	handlers.NewSet(log, coord, registry, engine).RegisterAll(table)

	sup := workers.NewSupervisor(log, config.RestartInterval)
	router := runtime.NewRouter(log, validator, limiter, registry, table, stats, sup, runtime.RouterConfig{
		LaneBuffer:  config.LaneBufferSize,
		RetryBuffer: config.RetryBufferSize,
		DefaultTTL:  config.MessageTTL,
		MaxRetries:  config.MaxRetries,
		BackoffBase: config.BackoffBase,
	})
	health := workers.NewHealthWorker(log, config.HealthInterval, stats)

	// 6. Context & Signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errChan := make(chan error, 3)
	go func() {
		if err := router.Start(ctx, engine, health); err != nil {
			errChan <- fmt.Errorf("router failed to start: %w", err)
		}
	}()

	// 7. HTTP surfaces: websocket front door + admin side port
	wsServer := ws.NewServer(log, router, registry, coord, limiter, config.WSReadLimit, config.AllowedOrigins)
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", wsServer.Handle)

	address := fmt.Sprintf("%s:%d", config.Host, config.Port)
	srv := &http.Server{Addr: address, Handler: mux}
	go func() {
		log.Info("Starting websocket server", "address", address, "at", time.Now().UTC())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("websocket server error: %w", err)
		}
	}()

	admin := internal.NewAdminServer(log, fmt.Sprintf("%s:%d", config.Host, config.AdminPort), stats, registry, audit, config.IdleCleanupAge)
	go func() {
		if err := admin.Start(); err != nil {
			errChan <- err
		}
	}()

	// 8. Wait for Stop or Error
	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
	case err := <-errChan:
		return err
	}

	// 9. Final Cleanup
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	_ = admin.Shutdown(shutdownCtx)
	router.Stop()
	log.Info("Program stopped cleanly")

	return nil
}
