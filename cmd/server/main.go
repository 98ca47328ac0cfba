package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/llmrace/llmrace-backend/internal/api/middleware"
	"github.com/llmrace/llmrace-backend/internal/api/rest"
	"github.com/llmrace/llmrace-backend/internal/config"
	"github.com/llmrace/llmrace-backend/internal/executor"
	"github.com/llmrace/llmrace-backend/internal/judge"
	"github.com/llmrace/llmrace-backend/internal/models"
	"github.com/llmrace/llmrace-backend/internal/pkg/tracing"
	"github.com/llmrace/llmrace-backend/internal/providers"
	"github.com/llmrace/llmrace-backend/internal/repository"
	"github.com/llmrace/llmrace-backend/internal/seed"
	"github.com/llmrace/llmrace-backend/internal/telemetry"
	"github.com/llmrace/llmrace-backend/internal/views"
	"github.com/llmrace/llmrace-backend/migrations"
)

func main() {
	log.Println("🏁 llmrace-backend starting...")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		log.Printf("⚠️  Warning: Failed to load config: %v. Using defaults.", err)
		cfg = &config.Config{
			Port:           8090,
			DatabaseURL:    "./llmrace.db",
			LogLevel:       "info",
			LogFormat:      "json",
			AllowedOrigins: []string{"*"},
			ToolLoopLimit:  3,
			JudgeMaxTokens: 300,
			AuthMode:       "disabled",
			SeedDemoSuite:  true,
		}
	}
	log.Printf("📋 Configuration loaded: port=%d, db=%s, auth_mode=%s", cfg.Port, cfg.DatabaseURL, cfg.AuthMode)

	logLevel := slog.LevelInfo
	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	}
	var logHandler slog.Handler
	if strings.ToLower(cfg.LogFormat) == "text" {
		logHandler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})
	} else {
		logHandler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})
	}
	appLog := slog.New(logHandler)

	if cfg.TracingEnabled {
		cleanup, err := tracing.Init(cfg.TracingServiceName, cfg.TracingEndpoint, cfg.TracingSamplingRate)
		if err != nil {
			log.Printf("⚠️  Warning: tracing init failed: %v", err)
		} else {
			defer cleanup()
			log.Println("📡 Tracing initialized")
		}
	}

	log.Println("💾 Initializing store...")
	store, err := openStore(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("❌ Failed to initialize store: %v", err)
	}
	defer store.Close()

	migrationSQL, err := migrations.FS.ReadFile("001_initial_schema.sql")
	if err != nil {
		log.Fatalf("❌ Failed to read embedded migration: %v", err)
	}
	if err := store.RunMigrations(string(migrationSQL)); err != nil {
		log.Fatalf("❌ Failed to run migrations: %v", err)
	}
	log.Println("✅ Migrations applied")

	if err := reconcileStaleRuns(ctx, store); err != nil {
		log.Printf("⚠️  Warning: startup run reconciliation failed: %v", err)
	}

	if err := seed.ProviderSettingsDefaults(ctx, store); err != nil {
		log.Printf("⚠️  Warning: seeding provider settings failed: %v", err)
	}
	if cfg.SeedDemoSuite {
		if err := seed.DemoSuites(ctx, store); err != nil {
			log.Printf("⚠️  Warning: seeding demo suites failed: %v", err)
		} else {
			log.Println("✅ Demo suites present")
		}
	}

	log.Println("⚙️  Initializing race engine...")
	providerClient := providers.NewClient()
	telemetryLog := telemetry.New(store)
	raceExecutor := executor.New(store, providerClient, telemetryLog, cfg.SecretKey, cfg.ToolLoopLimit, appLog)
	raceExecutor.Start(ctx)

	judgeTimeoutMs := cfg.RequestTimeoutSec * 1000
	if judgeTimeoutMs <= 0 {
		judgeTimeoutMs = 60000
	}
	judgePipeline := judge.New(store, providerClient, telemetryLog, cfg.SecretKey, judgeTimeoutMs, appLog)
	raceViews := views.New(store)
	log.Println("✅ Race engine started")

	handler := rest.NewHandler(store, raceExecutor, judgePipeline, raceViews, telemetryLog, providerClient, cfg, appLog)

	router := mux.NewRouter()
	rest.SetupRoutes(router, handler)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"error": "not found"})
	})

	router.Use(middleware.SecureHeaders)
	router.Use(middleware.RequestID)
	router.Use(middleware.Tracing)
	router.Use(middleware.CORSValidation(cfg, appLog))
	router.Use(middleware.RateLimit())
	router.Use(middleware.MaxBodySize(middleware.DefaultMaxBodyBytes))
	router.Use(middleware.RequireAuth(cfg))
	router.Use(middleware.StructuredLog)
	router.Use(middleware.Recovery(appLog.Error))

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization", "Last-Event-ID"},
		AllowCredentials: true,
	}).Handler(router)

	readTimeout := 30 * time.Second
	if cfg.RequestTimeoutSec > 0 {
		readTimeout = time.Duration(cfg.RequestTimeoutSec) * time.Second
	}
	shutdownTimeout := 15 * time.Second
	if cfg.ShutdownTimeoutSec > 0 {
		shutdownTimeout = time.Duration(cfg.ShutdownTimeoutSec) * time.Second
	}

	// Bind to the first available port in [cfg.Port, cfg.Port+99]; the SSE stream handler
	// needs to hold connections open past any fixed write deadline, so WriteTimeout is unset.
	maxPort := cfg.Port + 99
	var listener net.Listener
	for port := cfg.Port; port <= maxPort; port++ {
		l, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
		if err != nil {
			var errno *syscall.Errno
			if errors.As(err, &errno) && *errno == syscall.EADDRINUSE {
				continue
			}
			log.Fatalf("❌ Failed to listen: %v", err)
		}
		listener = l
		break
	}
	if listener == nil {
		log.Fatalf("❌ No port available in range %d..%d", cfg.Port, maxPort)
	}
	defer listener.Close()
	actualPort := listener.Addr().(*net.TCPAddr).Port

	srv := &http.Server{
		Handler:     corsHandler,
		ReadTimeout: readTimeout,
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		log.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
		log.Printf("🌐 Server listening on http://localhost:%d", actualPort)
		log.Printf("📡 API available at http://localhost:%d/api", actualPort)
		log.Printf("❤️  Health check at http://localhost:%d/api/health", actualPort)
		log.Printf("📊 Metrics at http://localhost:%d/metrics", actualPort)
		log.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
		if err := srv.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.Fatalf("❌ Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("🛑 Shutting down server...")
	raceExecutor.Stop()
	log.Println("✅ Race engine stopped")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("⚠️  Server forced to shutdown: %v", err)
	}
	log.Println("✅ Server exited gracefully")
}

func openStore(databaseURL string) (repository.Store, error) {
	if strings.HasPrefix(databaseURL, "postgres://") || strings.HasPrefix(databaseURL, "postgresql://") {
		return repository.NewPostgresStore(databaseURL)
	}
	return repository.NewSQLiteStore(databaseURL)
}

// reconcileStaleRuns marks any Run still RUNNING at boot as FAILED: the in-memory worker
// pool driving it did not survive the restart, so it can never reach a terminal state on
// its own. Emits a synthetic run.completed event so stream subscribers see it close out.
func reconcileStaleRuns(ctx context.Context, store repository.Store) error {
	runs, err := store.ListRuns(ctx)
	if err != nil {
		return fmt.Errorf("listing runs: %w", err)
	}
	telemetryLog := telemetry.New(store)
	now := time.Now().UTC()
	for _, run := range runs {
		if run.Status != models.RunRunning {
			continue
		}
		run.Status = models.RunFailed
		run.FinishedAt = &now
		if err := store.UpdateRun(ctx, run); err != nil {
			return fmt.Errorf("failing stale run %s: %w", run.ID, err)
		}
		if _, err := telemetryLog.Emit(ctx, run.ID, nil, models.EventRunCompleted, map[string]interface{}{
			"status": string(models.RunFailed),
			"error":  "recovered after restart",
		}); err != nil {
			return fmt.Errorf("emitting recovery event for run %s: %w", run.ID, err)
		}
		log.Printf("♻️  Recovered stale run %s (was RUNNING) as FAILED", run.ID)
	}
	return nil
}
