package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/Aidin1998/dexroute/internal/config"
	"github.com/Aidin1998/dexroute/internal/dex"
	"github.com/Aidin1998/dexroute/internal/dispatch"
	"github.com/Aidin1998/dexroute/internal/events"
	"github.com/Aidin1998/dexroute/internal/pipeline"
	"github.com/Aidin1998/dexroute/internal/redisdb"
	"github.com/Aidin1998/dexroute/internal/routing"
	"github.com/Aidin1998/dexroute/internal/server"
	"github.com/Aidin1998/dexroute/internal/statushub"
	"github.com/Aidin1998/dexroute/internal/store"
	"github.com/Aidin1998/dexroute/pkg/logger"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found, using environment variables")
	}

	cfg := config.Load()

	zapLogger, err := logger.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer zapLogger.Sync()

	// Durable store, or in-memory when the database never comes up.
	var st store.Store
	if cfg.DatabaseDSN != "" {
		db, err := store.NewPostgresDB(cfg.DatabaseDSN, cfg.DBConnRetries, cfg.DBConnRetryWait, zapLogger)
		if err == nil {
			st, err = store.NewGormStore(db)
			if err != nil {
				zapLogger.Fatal("Failed to initialize durable store", zap.Error(err))
			}
			zapLogger.Info("Connected to PostgreSQL")
		} else {
			zapLogger.Warn("Postgres unavailable, using in-memory store fallback", zap.Error(err))
		}
	}
	if st == nil {
		st = store.NewMemoryStore()
	}

	// Broker reachability decides dispatcher mode and active-marker
	// storage, once, at startup.
	rdb, err := redisdb.NewClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	var active statushub.ActiveStore
	if err != nil {
		zapLogger.Warn("Redis unavailable, dispatcher and active markers fall back in-process", zap.Error(err))
		rdb = nil
		active = statushub.NewMemoryActiveStore()
	} else {
		active = statushub.NewRedisActiveStore(rdb)
	}
	hub := statushub.NewHub(zapLogger, active)

	var publisher events.Publisher
	if kp, err := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.OrderTopic, zapLogger); err != nil {
		zapLogger.Warn("Kafka unavailable, status events will not be streamed", zap.Error(err))
		publisher = events.NopPublisher{}
	} else {
		publisher = kp
	}
	defer publisher.Close()

	sources := make([]dex.PriceSource, 0, len(cfg.Sources))
	for _, name := range cfg.Sources {
		sources = append(sources, dex.NewSimulatedSource(name))
	}

	engine := routing.NewEngine(zapLogger, sources, routing.Config{
		FeePct:             cfg.FeePct,
		DefaultSlippagePct: cfg.DefaultSlippagePct,
		QuoteTimeout:       cfg.QuoteTimeout,
	})
	pipe := pipeline.New(zapLogger, engine, sources, st, hub, publisher)

	dispCfg := dispatch.DefaultConfig()
	dispCfg.QueueKey = cfg.QueueKey
	dispCfg.Concurrency = cfg.WorkerConcurrency
	dispatcher := dispatch.New(zapLogger, pipe, rdb, dispCfg)
	dispatcher.Start()
	defer dispatcher.Close()

	srv := server.NewServer(zapLogger, st, dispatcher, hub)
	httpServer := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: srv.Router(),
	}

	go func() {
		zapLogger.Info("Server listening", zap.String("port", cfg.Port))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLogger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zapLogger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		zapLogger.Error("HTTP shutdown failed", zap.Error(err))
	}
}
