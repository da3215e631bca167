package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/pannenhilfe24/callcore/internal/api"
	"github.com/pannenhilfe24/callcore/internal/auth"
	"github.com/pannenhilfe24/callcore/internal/config"
	"github.com/pannenhilfe24/callcore/internal/directory"
	"github.com/pannenhilfe24/callcore/internal/ledger"
	"github.com/pannenhilfe24/callcore/internal/metrics"
	"github.com/pannenhilfe24/callcore/internal/monitor"
	"github.com/pannenhilfe24/callcore/internal/objectstore"
	"github.com/pannenhilfe24/callcore/internal/playback"
	"github.com/pannenhilfe24/callcore/internal/policy"
	"github.com/pannenhilfe24/callcore/internal/queue"
	"github.com/pannenhilfe24/callcore/internal/recorder"
	"github.com/pannenhilfe24/callcore/internal/signaling"
	"github.com/pannenhilfe24/callcore/internal/storage"
	"github.com/pannenhilfe24/callcore/pkg/middleware"
)

func main() {
	// Configure logger
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	// Set log level
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Warn().Str("level", cfg.LogLevel).Msg("invalid log level, using info")
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	log.Info().
		Str("port", cfg.Port).
		Strs("allowed_origins", cfg.AllowedOrigins).
		Str("log_level", cfg.LogLevel).
		Msg("starting callcore server")

	// Initialize JWKS for token verification unless auth is bypassed
	if os.Getenv("SKIP_AUTH") != "true" {
		if issuerURL := os.Getenv("AUTH_ISSUER_URL"); issuerURL != "" {
			if err := auth.InitJWKS(issuerURL); err != nil {
				log.Fatal().Err(err).Msg("failed to initialize JWKS")
			}
		}
	}

	// Create context for background services
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Persistence and object storage
	store, err := storage.NewStore(ctx, log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize store")
	}
	objects, err := objectstore.NewS3Store(ctx, objectstore.LoadS3Config(), log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize object store")
	}

	// Call ledger with its change feed
	callLedger := ledger.New(cfg.RingingTimeout, log.Logger)
	callLedger.SetStore(store)
	callLedger.SetDirectory(directory.NewStatic(nil))

	// Policy engine (no credit ledger attached disables charging)
	policyEngine := policy.NewEngine(nil, cfg.LeadPriceCents)

	// Signaling relay, torn down by terminal call transitions
	relay := signaling.NewRelay(log.Logger)
	go relay.WatchLedger(callLedger.Feed().Subscribe(0))

	// Support queue and agent assignment
	tracker := queue.NewAgentTracker()
	queueMgr := queue.NewManager(callLedger, tracker, log.Logger)
	go queueMgr.WatchLedger(callLedger.Feed().Subscribe(0))
	assignLoop := queue.NewAssignLoop(queueMgr, time.Second, log.Logger)
	go assignLoop.Start(ctx)

	// Recording pipeline
	pipeline := recorder.NewPipeline(store, objects, cfg.EncodeWorkers, cfg.EncodeMaxRetries, cfg.EncodeRetryBackoff, log.Logger)
	recorderSvc := recorder.NewService(cfg, callLedger, store, pipeline, log.Logger)
	go recorderSvc.Run(callLedger.Feed().Subscribe(0))

	// Playback gateway and retention
	gateway := playback.NewGateway(store, objects, cfg.PlaybackURLTTL, log.Logger)
	retention := playback.NewRetention(store, objects, cfg.RetentionMaxAge, cfg.RetentionInterval, log.Logger)
	go retention.Start(ctx)

	// Live monitor dashboards
	hub := monitor.NewHub(log.Logger)
	go hub.Run()
	mon := monitor.NewMonitor(callLedger, hub, log.Logger)
	go mon.Run(callLedger.Feed().Subscribe(0))
	broadcaster := monitor.NewBroadcaster(mon, queueMgr, 2*time.Second, log.Logger)
	go broadcaster.Start(ctx)

	// HTTP handlers
	callHandler := api.NewCallHandler(callLedger, queueMgr, policyEngine, mon, store, log.Logger)
	recordingHandler := api.NewRecordingHandler(gateway, log.Logger)
	agentHandler := api.NewAgentHandler(tracker, queueMgr, log.Logger)
	mediaHandler := api.NewMediaHandler(recorderSvc, callLedger, log.Logger)
	signalHandler := signaling.NewHandler(relay, callLedger, cfg, log.Logger)
	monitorHandler := monitor.NewHandler(hub, cfg, log.Logger)

	// Create router
	r := chi.NewRouter()

	// Add middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logger(log.Logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.AllowedOrigins))

	// Register public routes (no auth required)
	r.Get("/health", healthHandler)
	r.Get("/metrics", metrics.Get().Handler)

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware)

		r.Route("/api/calls", func(r chi.Router) {
			r.Post("/", callHandler.CreateCall)
			r.Get("/{callID}", callHandler.GetCall)
			r.Post("/{callID}/answer", callHandler.Answer)
			r.Post("/{callID}/reject", callHandler.Reject)
			r.Post("/{callID}/hangup", callHandler.Hangup)
			r.Post("/{callID}/media", mediaHandler.Ingest)
			r.Get("/{callID}/signal", signalHandler.ServeHTTP)
		})

		r.Route("/api/admin", func(r chi.Router) {
			r.Use(auth.RequireAdmin)

			r.Get("/calls/active", callHandler.ActiveCalls)
			r.Get("/calls/history", callHandler.History)
			r.Post("/calls/{callID}/force-end", callHandler.ForceEnd)

			r.Get("/recordings/{recordingID}", recordingHandler.GetRecording)
			r.Get("/recordings/{recordingID}/url", recordingHandler.GetPlaybackURL)
			r.Get("/recordings/{recordingID}/download", recordingHandler.Download)

			r.Post("/agents/status", agentHandler.SetStatus)
			r.Get("/agents", agentHandler.ListAgents)
			r.Get("/queue", agentHandler.QueueSnapshot)

			r.Get("/monitor/ws", monitorHandler.ServeHTTP)
		})
	})

	// Create HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Info().Msgf("server listening on :%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	// Wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server...")

	// Stop background loops
	cancel()

	// Create shutdown context with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Attempt graceful shutdown
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("server forced to shutdown")
	}

	// Let in-flight encode jobs finish
	pipeline.Close()

	log.Info().Msg("server stopped")
}

// healthHandler handles health check requests
func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"ok","service":"callcore"}`)
}
