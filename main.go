package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"agrisense/internal/broker"
	"agrisense/internal/config"
	"agrisense/internal/db"
	"agrisense/internal/decoder"
	"agrisense/internal/dispatch"
	"agrisense/internal/downlink"
	"agrisense/internal/ingest"
	"agrisense/internal/logger"
	"agrisense/internal/notify"
	"agrisense/internal/rules"
	"agrisense/internal/scheduler"
	"agrisense/internal/taskqueue"
	"agrisense/internal/web"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zlog, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer zlog.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	database, err := db.New(ctx, cfg.DatabaseURL)
	cancel()
	if err != nil {
		zlog.Fatal("database connection failed", zap.Error(err))
	}
	defer database.Close()

	// Cooldown state: Redis survives restarts and coordinates multiple
	// instances, memory is enough for a single process.
	var cooldowns rules.CooldownStore
	if cfg.CooldownStore == "redis" {
		cooldowns = rules.NewRedisCooldown(redis.NewClient(&redis.Options{Addr: cfg.RedisAddr}))
	} else {
		cooldowns = rules.NewMemoryCooldown()
	}

	queueClient := taskqueue.NewClient(cfg.RedisAddr)
	defer queueClient.Close()

	engine := rules.NewEngine(database, cooldowns, queueClient, zlog)

	var box *notify.SecretBox
	if cfg.Notify.EncryptionKey != "" {
		box, err = notify.NewSecretBox(cfg.Notify.EncryptionKey)
		if err != nil {
			zlog.Fatal("invalid provider encryption key", zap.Error(err))
		}
	}
	smsChain := notify.NewChain(database, database, notify.ChainOptions{
		DefaultCountryCode: cfg.Notify.DefaultCountryCode,
		LogMessageContent:  cfg.Notify.LogMessageContent,
		RequestTimeout:     time.Duration(cfg.Notify.RequestTimeout) * time.Second,
		Box:                box,
	}, zlog)

	var mailer dispatch.Mailer
	if cfg.SMTP.Host != "" {
		mailer = dispatch.NewSMTPMailer(cfg.SMTP)
	} else {
		mailer = dispatch.NewLogMailer(zlog)
	}

	downlinks := downlink.NewService(database, cfg.NetworkServer.URL,
		cfg.NetworkServer.APIToken,
		time.Duration(cfg.Notify.RequestTimeout)*time.Second, zlog)

	dispatcher := dispatch.NewDispatcher(database, smsChain, mailer, downlinks,
		cfg.Notify.SenderID, zlog)

	worker := taskqueue.NewWorker(cfg.RedisAddr, cfg.DispatchConcurrency, dispatcher, zlog)
	if err := worker.Run(); err != nil {
		zlog.Fatal("task workers failed to start", zap.Error(err))
	}

	pipeline := ingest.NewPipeline(database, decoder.NewRegistry(zlog), engine, zlog)

	brokers := broker.NewManager(cfg.Brokers, pipeline, zlog)
	if err := brokers.Start(); err != nil {
		zlog.Fatal("broker startup failed", zap.Error(err))
	}

	sched := scheduler.New(zlog)
	if err := sched.RegisterSweep(engine, cfg.SweepIntervalSecs); err != nil {
		zlog.Fatal("sweep registration failed", zap.Error(err))
	}
	sched.Start()

	api := web.NewServer(pipeline, database, downlinks, zlog)
	httpSrv := &http.Server{Addr: cfg.HTTPAddr, Handler: api.Router()}
	go func() {
		zlog.Info("HTTP API listening", zap.String("addr", cfg.HTTPAddr))
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zlog.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	zlog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		zlog.Warn("HTTP shutdown incomplete", zap.Error(err))
	}
	brokers.Stop()
	sched.Stop()
	worker.Stop()
	zlog.Info("shutdown complete")
}
