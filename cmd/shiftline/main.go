package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/shiftline/shiftline/internal/api"
	"github.com/shiftline/shiftline/internal/auth"
	"github.com/shiftline/shiftline/internal/callserver"
	"github.com/shiftline/shiftline/internal/cascade"
	"github.com/shiftline/shiftline/internal/catalog"
	"github.com/shiftline/shiftline/internal/clock"
	"github.com/shiftline/shiftline/internal/config"
	"github.com/shiftline/shiftline/internal/eventstream"
	"github.com/shiftline/shiftline/internal/messaging"
	"github.com/shiftline/shiftline/internal/metrics"
	"github.com/shiftline/shiftline/internal/recording"
	"github.com/shiftline/shiftline/internal/session"
	"github.com/shiftline/shiftline/internal/telephony"
	"github.com/shiftline/shiftline/internal/voice"

	"log/slog"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	logger := slog.New(cfg.SlogHandler(os.Stdout))
	slog.SetDefault(logger)

	slog.Info("starting shiftline", "http_port", cfg.HTTPPort)

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		slog.Error("failed to parse redis-url", "error", err)
		os.Exit(1)
	}
	redisClient := redis.NewClient(redisOpts)
	defer redisClient.Close()

	clk := clock.New()

	catalogClient := catalog.NewClient(cfg.CatalogBaseURL, cfg.CatalogAPIKey, 10*time.Second)
	catalogRepo := catalog.NewRepository(catalogClient, clk)
	cascadeCatalog := catalog.NewCascadeAdapter(catalogClient)

	credStore := auth.NewRedisCredentialStore(redisClient)
	authenticator := auth.NewAuthenticator(catalogRepo, credStore)

	queue := cascade.NewQueue(redisClient)
	messagingClient := messaging.NewClient(cfg.MessageGatewayURL, cfg.MessageGatewayServiceID, cfg.MessageGatewayFrom)
	voiceClient := voice.NewClient(cfg.VoiceOfferGatewayURL, cfg.VoiceOfferGatewayAPIKey, cfg.VoiceOfferTimeout)

	cascadeCfg := cascade.DefaultConfig()
	cascadeCfg.LinkBaseURL = "https://" + cfg.PublicBaseDomain

	coordinator := cascade.New(queue, cascadeCatalog, cascadeCatalog, messagingClient, voiceClient, clk, logger, cascadeCfg)
	coordinator.Start(queue)
	defer coordinator.Stop()

	events := eventstream.New(redisClient, clk)

	ctx := context.Background()
	objectStore, err := recording.NewObjectStore(ctx, recording.ObjectStoreConfig{
		Bucket:   cfg.ObjectStoreBucket,
		Region:   cfg.ObjectStoreRegion,
		Prefix:   cfg.ObjectStorePrefix,
		Endpoint: cfg.ObjectStoreEndpoint,
	})
	if err != nil {
		slog.Error("failed to build object store", "error", err)
		os.Exit(1)
	}

	carrierClient := telephony.NewCarrierClient(cfg.CarrierAPIBaseURL, cfg.CarrierAuthToken, cfg.CarrierAPITimeout)
	callLog := recording.NewRedisCallLog(redisClient)
	pipeline := recording.New(objectStore, carrierClient, callLog, clk, logger)

	if cfg.RecordingRetentionDays > 0 {
		recording.StartRetentionTicker(ctx, objectStore, clk, cfg.RecordingRetentionInterval, time.Duration(cfg.RecordingRetentionDays)*24*time.Hour)
	}

	store := session.NewRedisStore(redisClient, cfg.SessionIdleTTL)

	fsmConfig := session.DefaultFSMConfig()
	fsmConfig.PinLength = cfg.PinLength
	fsmConfig.ShiftListPageSize = cfg.ShiftListPageSize
	fsmConfig.DefaultTransferNumber = cfg.DefaultTransferFallbackNumber

	caps := session.Capabilities{
		Auth:    authenticator,
		Catalog: catalogRepo,
		Cascade: coordinator,
		Clock:   clk,
		Config:  fsmConfig,
	}

	runner := callserver.New(store, caps, clk, events, logger)

	// No concrete text-to-speech vendor is wired in (§1's Non-goals exclude
	// picking one); deployments supply their own telephony.Synthesizer.
	mediaHandler := telephony.NewHandler(runner, telephony.UnconfiguredSynthesizer{}, logger)

	webhookHandlers := &telephony.Handlers{
		Starter:       runner,
		PhoneFetcher:  carrierClient,
		Pipeline:      pipeline,
		Sessions:      runner,
		PublicBaseURL: cfg.PublicBaseDomain,
		Logger:        logger,
	}

	jwtSecret, err := cfg.JWTSecretBytes()
	if err != nil {
		slog.Error("failed to resolve jwt secret", "error", err)
		os.Exit(1)
	}
	operatorAPI := api.NewServer(queue, events, callLog, messagingClient, voiceClient, jwtSecret)

	registry := prometheus.NewRegistry()
	registry.MustRegister(metrics.NewCollector(queue, messagingClient, voiceClient, clk.Now()))

	mux := http.NewServeMux()
	mux.Handle("/api/v1/", operatorAPI)
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("POST /webhooks/session-start", webhookHandlers.HandleSessionStart)
	mux.HandleFunc("POST /webhooks/recording-status", webhookHandlers.HandleRecordingStatus)
	mux.HandleFunc("/media-stream/{sessionID}", func(w http.ResponseWriter, r *http.Request) {
		sessionID := r.PathValue("sessionID")
		mediaHandler.ServeHTTP(w, r, sessionID, carrierClient.ForSession(sessionID))
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		slog.Info("received shutdown signal", "signal", sig.String())
	case err := <-errCh:
		slog.Error("http server error", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http server shutdown error", "error", err)
		os.Exit(1)
	}

	slog.Info("shiftline stopped")
}
