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

	"bitbucket.org/avalia/dashboard_backend/config"
	"bitbucket.org/avalia/dashboard_backend/docstore"
	"bitbucket.org/avalia/dashboard_backend/middlewares"
	"bitbucket.org/avalia/dashboard_backend/models"
	"bitbucket.org/avalia/dashboard_backend/utils"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

func corsConfig() cors.Config {
	cfg := cors.DefaultConfig()
	// Production-safe CORS:
	// - In production, require explicit allowlist via CORS_ALLOWED_ORIGINS (comma-separated).
	// - In non-production, allow all (developer convenience).
	if config.IsProduction() {
		cfg.AllowOrigins = utils.SplitAndTrim(os.Getenv("CORS_ALLOWED_ORIGINS"))
		if len(cfg.AllowOrigins) == 0 {
			// cors.New rejects an empty allowlist, so deny through the func instead
			cfg.AllowOriginFunc = func(string) bool { return false }
		}
	} else {
		cfg.AllowAllOrigins = true
	}
	cfg.AddAllowMethods("GET", "POST", "PUT", "DELETE", "OPTIONS")
	cfg.AddAllowHeaders("Origin", "Content-Type", middlewares.CorrelationIdHeader)
	cfg.AddExposeHeaders("Content-Length", "Content-Disposition", middlewares.CorrelationIdHeader)
	cfg.AllowCredentials = true
	return cfg
}

func main() {
	port := config.Port()
	logger := config.GetLogger()
	if config.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	// Cloud Run sends SIGTERM on revision shutdown; handle it for graceful drain.
	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	extra := []gin.HandlerFunc{cors.New(corsConfig())}

	// Redis backs the limiter, so it has to be up before the router is built.
	enabled, limit, window := config.RateLimit()
	if enabled && config.RedisConfigured() {
		config.ConnectRedisWithRetry()
		rateLimiter := middlewares.NewRateLimiter(config.GetRedisDB(), limit, window)
		extra = append(extra, rateLimiter.RateLimitMiddleware)
	} else if enabled {
		logger.WithFields(logrus.Fields{"field": "rate_limit"}).Warn("RATE_LIMIT_ENABLED=true but REDIS_ADDRESS is empty; rate limiting disabled")
	}

	// Start the HTTP server ASAP so Cloud Run considers the revision healthy.
	// Until the store is open, /api routes answer 503.
	a := newAPI(logger)
	r := newRouter(a, extra...)
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}
	serverErrCh := make(chan error, 1)
	go func() {
		// ListenAndServe returns http.ErrServerClosed on graceful shutdown.
		serverErrCh <- srv.ListenAndServe()
	}()

	// Connect dependencies after the port is open.
	if config.RedisConfigured() && config.GetRedisDB() == nil {
		config.ConnectRedisWithRetry()
	}
	store, err := config.OpenDocumentStore()
	if err != nil {
		logger.WithFields(logrus.Fields{"field": "store", "backend": config.StoreBackend()}).Fatal(err.Error())
	}
	defer closeStore(store, logger)
	a.setService(models.NewServiceFromEnv(store))

	logger.WithFields(logrus.Fields{
		"info":    "Store Ready",
		"backend": config.StoreBackend(),
	}).Info("listening on :", port)
	log.Println("Server started successfully")

	// Block until shutdown or server error.
	select {
	case <-sigCtx.Done():
		// graceful shutdown below
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithFields(logrus.Fields{"field": "http"}).Error("server stopped unexpectedly: " + err.Error())
		}
	}

	// Drain HTTP requests.
	shutdownTimeout := 30 * time.Second
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithFields(logrus.Fields{"field": "http"}).Error("graceful shutdown failed: " + err.Error())
	}

	// Close Redis (best-effort).
	if rdb := config.GetRedisDB(); rdb != nil {
		_ = rdb.Close()
	}
}

func closeStore(store docstore.Store, logger *logrus.Logger) {
	if err := store.Close(); err != nil {
		logger.WithFields(logrus.Fields{"field": "store"}).Error("close store: " + err.Error())
	}
}
