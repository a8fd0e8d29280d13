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

	"github.com/gin-gonic/gin"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/sumangalagouda/DEV-HACK/internal/analysis"
	"github.com/sumangalagouda/DEV-HACK/internal/config"
	"github.com/sumangalagouda/DEV-HACK/internal/credentials"
	"github.com/sumangalagouda/DEV-HACK/internal/database"
	"github.com/sumangalagouda/DEV-HACK/internal/detect"
	"github.com/sumangalagouda/DEV-HACK/internal/events"
	"github.com/sumangalagouda/DEV-HACK/internal/handlers"
	"github.com/sumangalagouda/DEV-HACK/internal/imagestore"
	"github.com/sumangalagouda/DEV-HACK/internal/logging"
	"github.com/sumangalagouda/DEV-HACK/internal/metrics"
	"github.com/sumangalagouda/DEV-HACK/internal/natsserver"
	"github.com/sumangalagouda/DEV-HACK/internal/services"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger := logging.Must(cfg.Log)
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("Server failed", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Connect(cfg.Database, logger)
	if err != nil {
		return err
	}
	defer database.Close(db)

	store := database.NewStore(db, cfg.Database.Timeout, cfg.Database.SwitchRole)

	images, err := imagestore.New(cfg.Storage)
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	// Without an external server the event stream runs in-process
	var conn *nats.Conn
	var embedded *natsserver.EmbeddedNATS
	if cfg.NATS.URL == "" {
		embedded, err = natsserver.New(natsserver.DefaultConfig(cfg.NATS.Port), logger)
		if err != nil {
			return err
		}
		defer embedded.Shutdown()
		conn = embedded.Conn()
	} else {
		conn, err = nats.Connect(cfg.NATS.URL,
			nats.Name("ppe-server"),
			nats.ReconnectWait(time.Second),
			nats.MaxReconnects(-1))
		if err != nil {
			return err
		}
		defer conn.Close()
		logger.Info("Connected to NATS", zap.String("url", cfg.NATS.URL))
	}

	bus := events.NewBus(conn, logger)
	bus.SetObserver(m)

	chain := analysis.NewChain(logger,
		analysis.Precomputed{},
		analysis.NewGateway(cfg.AI, nil, logger),
		analysis.Placeholder{},
	)
	chain.SetObserver(m)
	if !cfg.AI.Enabled() {
		logger.Warn("AI_GATEWAY_KEY not set, frames without labels get the placeholder analysis")
	}

	pipeline := detect.NewPipeline(store, chain, images, logger)
	pipeline.SetPublisher(bus)
	pipeline.SetMetrics(m)

	hub := services.NewLiveHub(bus, services.StoreFetcher(store), cfg.Live.QuietPeriod, logger)
	hub.SetMetrics(m)
	go hub.Run(ctx)

	h := handlers.New(pipeline, store, credentials.NewResolver(cfg.Auth), logger)
	h.SetLiveHub(hub)
	if embedded != nil {
		h.SetEmbeddedNATS(embedded)
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	opts := handlers.RouterOptions{
		Metrics: promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
	}
	if cfg.Storage.Driver == config.StorageLocal {
		opts.UploadDir = cfg.Storage.UploadDir
	}
	router := handlers.NewRouter(h, opts)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Server starting", zap.String("port", cfg.Port), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
