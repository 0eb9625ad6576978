package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"diary/internal/config"
	"diary/internal/logger"
	"diary/internal/queue"
	"diary/internal/store"
)

// Worker consumes session events and writes the audit trail.
func main() {
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	std := logger.NewStd(os.Stderr, "WORKER : ", !config.IsProduction(cfg.Env))
	host, _ := os.Hostname()
	lg := logger.New(std, logger.RollbarOptions{
		Token:       cfg.RollbarToken,
		Environment: cfg.Env,
		Host:        host,
		CodeVersion: cfg.Build,
	})

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		lg.Info("shutdown signal received")
		cancel()
	}()

	if cfg.QueueBackend != "redis" {
		log.Fatalf("worker needs QUEUE_BACKEND=redis, got %q", cfg.QueueBackend)
	}
	redisClient := store.NewRedis(cfg.RedisAddr)
	defer redisClient.Close()
	if !redisClient.Healthy(ctx) {
		lg.Warn("redis not reachable, will keep retrying", map[string]interface{}{"addr": cfg.RedisAddr})
	}
	q := queue.NewRedisQueue(redisClient.Client, queue.DefaultKey)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	metricsSrv := &http.Server{Addr: ":" + cfg.MetricsPort, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lg.Error("metrics server failed", err)
		}
	}()

	messages, err := q.Consume(ctx)
	if err != nil {
		log.Fatalf("queue consume init failed: %v", err)
	}

	a := newAuditor(os.Stdout, lg)
	lg.Info("worker started, waiting for events")
	for msg := range messages {
		if err := a.handle(msg); err != nil {
			lg.Warn("skipping event", err, map[string]interface{}{"type": msg.Type})
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = metricsSrv.Shutdown(shutdownCtx)
	lg.Info("worker stopped")
}
