package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/flatdocs/flatdocs/handlers"
	"github.com/flatdocs/flatdocs/internal/config"
	"github.com/flatdocs/flatdocs/internal/schema"
	"github.com/flatdocs/flatdocs/internal/sessions"
	"github.com/flatdocs/flatdocs/internal/storage"
	"github.com/flatdocs/flatdocs/internal/store"
	"github.com/flatdocs/flatdocs/pkg/logger"
	"github.com/flatdocs/flatdocs/pkg/metrics"
	"github.com/flatdocs/flatdocs/pkg/middleware"
)

var startTime = time.Now()

func main() {
	// initialize logging (controlled with LOG_LEVEL env: debug|info|warn|error|fatal)
	logger.Init(os.Getenv("LOG_LEVEL"))
	logger.InitFile(os.Getenv("LOG_FILE"))
	logger.Debugf("startup: LOG_LEVEL=%s", logger.LevelString())

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}
	logger.Infof("config loaded: data=%s schemas=%s redis=%v permissions=%d",
		cfg.Store.DataDir, cfg.Store.SchemasDir, cfg.Redis.Host != "", len(cfg.Permissions))

	r := gin.New()

	// Lightweight CORS middleware for dev/test: set common headers and respond to OPTIONS.
	// (Keep this intentionally simple — production should use a stricter policy.)
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "Content-Length")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(200)
			return
		}
		c.Next()
	})

	// Global middlewares: logging + recovery + request ids
	r.Use(gin.Logger(), gin.Recovery(), middleware.RequestID())

	// Connect to Redis early so sessions and the rate-limiter can use it when configured
	var redisClient *redis.Client
	if cfg.Redis.Host != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.Redis.Host + ":" + cfg.Redis.Port, Password: cfg.Redis.Password})
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			logger.Warnf("failed to connect to Redis (%s:%s): %v", cfg.Redis.Host, cfg.Redis.Port, err)
			redisClient = nil
		} else {
			logger.Infof("Connected to Redis: %s:%s", cfg.Redis.Host, cfg.Redis.Port)
		}
	}

	// Document store (data + backup dirs are created on first use)
	st, err := store.New(cfg.Store.DataDir, cfg.Store.BackupDir)
	if err != nil {
		logger.Fatalf("failed to open document store: %v", err)
	}

	// Optional off-site backup target
	if mcfg := storage.LoadMinIOConfig(); mcfg.Endpoint != "" {
		offsite, err := storage.NewMinIOStorage(mcfg)
		if err != nil {
			logger.Warnf("off-site backups disabled: %v", err)
		} else {
			st.SetOffsite(offsite)
			logger.Infof("off-site backups enabled: %s/%s", mcfg.Endpoint, mcfg.Bucket)
		}
	}

	// Schema registry
	registry := schema.NewRegistry(cfg.Store.SchemasDir)
	logger.Infof("loaded %d schema(s)", len(registry.Names()))

	// Sessions: prefer Redis when available, fall back to the in-memory map
	var repo sessions.Repository
	if redisClient != nil {
		repo = sessions.NewRedisRepository(redisClient, "session:", cfg.Session.TTL)
		logger.Infof("Using Redis for session storage")
	} else {
		repo = sessions.NewMemoryRepository()
	}
	sessionsSvc := sessions.NewService(repo, cfg.Admin.Username, cfg.Admin.PasswordHash, cfg.Permissions, cfg.Session.TTL)

	// Optional global rate limiter, per-user when authenticated and per-IP
	// otherwise. OptionalSession annotates the request first so the limiter
	// sees the username.
	if cfg.RateLimit.Enabled {
		r.Use(middleware.OptionalSession(sessionsSvc))
		if cfg.RateLimit.UseRedis && redisClient != nil {
			win := time.Duration(cfg.RateLimit.WindowSeconds) * time.Second
			r.Use(middleware.RedisRateLimitMiddleware(redisClient, cfg.RateLimit.RPS, cfg.RateLimit.Burst, win))
		} else {
			r.Use(middleware.RateLimitMiddleware(cfg.RateLimit.RPS, cfg.RateLimit.Burst))
		}
	}

	// Route registration
	handlers.NewAuthHandler(sessionsSvc).Register(r.Group("/api"))
	handlers.NewFilesHandler(st, registry, sessionsSvc).Register(r)
	handlers.NewSchemaHandler(registry, sessionsSvc).Register(r)
	handlers.RegisterMeta(r)

	// readiness endpoint — return 200 only when critical dependencies are available
	r.GET("/ready", func(c *gin.Context) {
		ready := true
		deps := map[string]bool{}

		deps["store"] = st != nil
		deps["sessions"] = sessionsSvc != nil
		if cfg.Redis.Host != "" {
			deps["redis"] = redisClient != nil
			if !deps["redis"] {
				ready = false
			}
		} else {
			deps["redis"] = true
		}

		status := http.StatusOK
		state := "ready"
		if !ready {
			status = http.StatusServiceUnavailable
			state = "not_ready"
		}
		c.JSON(status, gin.H{"status": state, "deps": deps, "uptime": fmt.Sprintf("%s", time.Since(startTime))})
	})

	// Expose Prometheus metrics
	metrics.RegisterCollectors(prometheus.DefaultRegisterer)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	logger.Infof("Starting flatdocs on %s", addr)
	if err := r.Run(addr); err != nil {
		logger.Fatalf("server failed: %v", err)
	}
}
