package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/FairForge/meshcache/internal/api"
	"github.com/FairForge/meshcache/internal/cache"
	"github.com/FairForge/meshcache/internal/config"
	"github.com/FairForge/meshcache/internal/transport"
)

func main() {
	configPath := flag.String("config", "", "path to yaml config")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		// Logger isn't up yet.
		fmt.Fprintln(os.Stderr, "meshcache:", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Server.LogLevel)
	defer func() { _ = logger.Sync() }()

	if cfg.Cluster.NodeID == "" {
		cfg.Cluster.NodeID = uuid.NewString()
	}
	logger.Info("starting meshcache",
		zap.String("node_id", cfg.Cluster.NodeID),
		zap.String("consistency", cfg.Cache.ConsistencyLevel),
		zap.String("eviction", cfg.Cache.EvictionPolicy))

	engineCfg, err := cfg.EngineConfig()
	if err != nil {
		logger.Fatal("invalid engine config", zap.Error(err))
	}

	client := transport.NewClient(2*time.Second, logger.Named("transport"))

	var opts []cache.Option
	tf, err := cfg.Transform()
	if err != nil {
		logger.Fatal("invalid transform config", zap.Error(err))
	}
	if tf != nil {
		opts = append(opts, cache.WithTransform(tf))
	}

	engine, err := cache.New(engineCfg, client, client, logger.Named("cache"), opts...)
	if err != nil {
		logger.Fatal("building cache engine", zap.Error(err))
	}

	for _, seed := range cfg.Cluster.Seeds {
		node, err := cache.NewNode(seed.ID, seed.Address)
		if err != nil {
			logger.Fatal("invalid seed node", zap.String("id", seed.ID), zap.Error(err))
		}
		if err := engine.AddNode(node); err != nil {
			logger.Fatal("registering seed node", zap.String("id", seed.ID), zap.Error(err))
		}
		client.Register(seed.ID, "http://"+seed.Address)
	}

	scheduler := cache.NewScheduler(engine, logger.Named("scheduler"))
	scheduler.Start()

	peerSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.TransportPort),
		Handler:           transport.NewHandler(engine, logger.Named("transport")),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("transport listening", zap.String("addr", peerSrv.Addr))
		if err := peerSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("transport server failed", zap.Error(err))
		}
	}()

	adminSrv := api.NewServer(cfg.Server.Port, engine, logger.Named("api"))
	go func() {
		if err := adminSrv.Start(); err != nil {
			logger.Fatal("admin server failed", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info("shutting down")

	scheduler.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := adminSrv.Shutdown(ctx); err != nil {
		logger.Warn("admin shutdown", zap.Error(err))
	}
	if err := peerSrv.Shutdown(ctx); err != nil {
		logger.Warn("transport shutdown", zap.Error(err))
	}
}

// newLogger builds a production zap logger at the configured level.
func newLogger(level string) *zap.Logger {
	cfg := zap.NewProductionConfig()
	if lvl, err := zap.ParseAtomicLevel(level); err == nil {
		cfg.Level = lvl
	}
	logger, err := cfg.Build()
	if err != nil {
		logger, _ = zap.NewProduction()
	}
	return logger
}
