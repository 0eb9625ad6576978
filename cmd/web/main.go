package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"diary/internal/config"
	"diary/internal/gradebook"
	"diary/internal/handler"
	"diary/internal/httpmiddleware"
	"diary/internal/logger"
	"diary/internal/queue"
	"diary/internal/schoolapi"
	"diary/internal/session"
	"diary/internal/store"
)

func main() {
	cfg := config.Load()

	// Set Gin mode based on environment
	if config.IsProduction(cfg.Env) {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg); err != nil {
		log.Fatalf("http server failed: %v", err)
	}
}

func runHTTP(cfg config.App) error {
	std := logger.NewStd(os.Stdout, "WEB : ", !config.IsProduction(cfg.Env))
	host, _ := os.Hostname()
	lg := logger.New(std, logger.RollbarOptions{
		Token:       cfg.RollbarToken,
		Environment: cfg.Env,
		Host:        host,
		CodeVersion: cfg.Build,
	})

	var redisClient *store.Redis
	if cfg.SessionBackend == "redis" || cfg.QueueBackend == "redis" {
		redisClient = store.NewRedis(cfg.RedisAddr)
		defer redisClient.Close()
		if !redisClient.Healthy(context.Background()) {
			lg.Warn("redis not reachable", map[string]interface{}{"addr": cfg.RedisAddr})
		}
	}

	var (
		sessions session.Store
		memory   *session.MemoryStore
	)
	if cfg.SessionBackend == "redis" {
		sessions = store.NewSessions(redisClient, cfg.SessionTTL)
	} else {
		memory = session.NewMemoryStore(cfg.SessionTTL)
		sessions = memory
	}

	var q queue.Queue
	if cfg.QueueBackend == "redis" {
		q = queue.NewRedisQueue(redisClient.Client, queue.DefaultKey)
	} else {
		q = queue.NewInMemory(256)
	}

	school := schoolapi.New(schoolapi.Options{
		AuthURL:     cfg.AuthURL,
		GradesURL:   cfg.GradesURL,
		DirectorURL: cfg.DirectorURL,
		Timeout:     cfg.RequestTimeout,
		Demo:        cfg.DemoMode,
	})
	if cfg.DemoMode {
		lg.Info("demo mode: answering from the built-in school")
	}

	ctrl := session.NewController(sessions, school, gradebook.NewLoader(school), q, lg, session.Options{
		EchoCode: cfg.EchoCode,
		Timeout:  cfg.RequestTimeout,
	})
	h := handler.New(ctrl, sessions, school, handler.Tokens{
		Issuer: cfg.JWTIssuer,
		Key:    cfg.JWTSigningKey,
		TTL:    cfg.SessionTTL,
	}, lg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// the in-memory queue has no other reader in this process
	if mem, ok := q.(*queue.InMemory); ok {
		go drain(ctx, mem, lg)
	}

	limiter := httpmiddleware.NewTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin)
	go func() {
		t := time.NewTicker(10 * time.Minute)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				limiter.Sweep()
				if memory != nil {
					if n := memory.Sweep(); n > 0 {
						lg.Debug("expired sessions dropped", map[string]interface{}{"count": n})
					}
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	r := gin.New()

	// Recovery middleware
	r.Use(gin.Recovery())

	// Custom logger
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))

	// CORS middleware
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Retry-After"},
		AllowCredentials: false,
		MaxAge:           24 * time.Hour,
	}))

	// Security headers
	r.Use(httpmiddleware.SecurityHeaders())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	h.Register(r, limiter.GinMiddleware())

	// Graceful shutdown
	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.RequestTimeout*2 + 5*time.Second, // a code submit can make two upstream calls
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		lg.Info("starting server", map[string]interface{}{"port": cfg.HTTPPort, "env": cfg.Env})
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	lg.Info("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		lg.Error("server forced shutdown", err)
	}
	lg.Info("server exited")
	return nil
}

// drain logs events when no separate worker consumes them.
func drain(ctx context.Context, q *queue.InMemory, lg logger.Logger) {
	msgs, err := q.Consume(ctx)
	if err != nil {
		lg.Error("event queue consume failed", err)
		return
	}
	for msg := range msgs {
		lg.Debug("event", map[string]interface{}{"type": msg.Type, "body": string(msg.Body)})
	}
}
