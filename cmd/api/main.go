package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/successcugo/ULAS/internal/attendance"
	"github.com/successcugo/ULAS/internal/cache"
	"github.com/successcugo/ULAS/internal/catalog"
	"github.com/successcugo/ULAS/internal/config"
	"github.com/successcugo/ULAS/internal/ghstore"
	"github.com/successcugo/ULAS/internal/handler"
	"github.com/successcugo/ULAS/internal/httpmiddleware"
	"github.com/successcugo/ULAS/internal/identity"
	"github.com/successcugo/ULAS/internal/queue"
	"github.com/successcugo/ULAS/internal/settings"
)

// abbrevs joins the two sources of filename short codes: school codes live
// in the catalog, department codes in the advisor-editable settings.
type abbrevs struct {
	*catalog.Provider
	*settings.Service
}

func main() {
	cfg := config.Load()

	if cfg.Env == "production" || cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	var log *zap.Logger
	var err error
	if gin.Mode() == gin.ReleaseMode {
		log, err = zap.NewProduction()
	} else {
		log, err = zap.NewDevelopment()
	}
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	if err := runHTTP(cfg, log); err != nil {
		log.Fatal("http server failed", zap.Error(err))
	}
}

func runHTTP(cfg config.App, log *zap.Logger) error {
	dataStore := ghstore.New(cfg.GitHubAPIURL, cfg.DataOwner, cfg.DataRepo, cfg.GitHubToken)
	archiveStore := ghstore.New(cfg.GitHubAPIURL, cfg.ArchiveOwner, cfg.ArchiveRepo, cfg.GitHubToken)
	docCache := cache.New(dataStore)

	users := identity.NewService(docCache)
	st := settings.NewService(docCache)
	cat := catalog.NewProvider(dataStore)
	sessions := attendance.NewService(dataStore, archiveStore, abbrevs{cat, st})

	var redisClient *redis.Client
	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(256)
		log.Info("using in-memory event queue")
	} else {
		redisClient = queue.NewRedisClient(cfg.RedisAddr)
		q = queue.NewRedisQueue(redisClient, "")
		log.Info("using redis event queue", zap.String("addr", cfg.RedisAddr))
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(corsMiddleware())
	r.Use(securityHeaders())
	r.Use(httpmiddleware.NewSimpleTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin).GinMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/healthz", func(c *gin.Context) {
		storeHealthy := dataStore.Healthy(c.Request.Context())
		redisHealthy := redisClient == nil || queue.Healthy(c.Request.Context(), redisClient)
		status := http.StatusOK
		if !storeHealthy || !redisHealthy {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"status": "ok", "store": storeHealthy, "redis": redisHealthy})
	})

	h := handler.New(cfg, log, users, sessions, st, cat, q)
	h.Register(r)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("starting server", zap.String("port", cfg.HTTPPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down server")

	// Give outstanding requests 10 seconds to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("server forced shutdown", zap.Error(err))
	}

	log.Info("server exited")
	return nil
}

// CORS middleware for browser requests
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}

		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// Security headers middleware
func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-XSS-Protection", "1; mode=block")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")

		// Only add HSTS in production
		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		c.Next()
	}
}
