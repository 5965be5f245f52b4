package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/edulms/api-gateway/internal/config"
	"github.com/edulms/api-gateway/internal/database"
	"github.com/edulms/api-gateway/internal/handlers"
	"github.com/edulms/api-gateway/internal/middleware"
	"github.com/edulms/api-gateway/internal/models"
	"github.com/edulms/api-gateway/internal/proxy"
	"github.com/edulms/api-gateway/internal/ratelimit"
	"github.com/edulms/api-gateway/internal/router"
	"github.com/edulms/api-gateway/internal/services"
	"github.com/edulms/api-gateway/internal/token"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		zap.NewExample().Fatal("couldn't load config", zap.Error(err))
	}

	logger := newLogger(cfg.LogLevel)
	defer logger.Sync()

	logger.Info("starting gateway", zap.String("port", cfg.Port))

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("database connection failed", zap.Error(err))
	}
	defer db.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisURL})
	defer redisClient.Close()
	{
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Fatal("redis connection failed", zap.Error(err))
		}
	}

	routeFile, err := config.LoadRoutes(cfg.RoutesFile)
	if err != nil {
		logger.Fatal("couldn't load route table", zap.Error(err))
	}
	routes, err := router.New(routeFile.Routes)
	if err != nil {
		logger.Fatal("invalid route table", zap.Error(err))
	}
	logger.Info("route table loaded",
		zap.Int("routes", len(routeFile.Routes)),
		zap.Int("public_paths", len(routeFile.PublicPaths)))

	tokens := token.NewService(
		cfg.JWTSecret, cfg.JWTIssuer,
		cfg.AccessTokenTTL, cfg.RefreshTokenTTL,
		token.NewRedisStore(redisClient),
		logger.Named("token"),
	)

	limiter := ratelimit.New(
		ratelimit.NewRedisCounterStore(redisClient),
		limitPolicies(routeFile.RateLimits),
		logger.Named("ratelimit"),
	)

	cacheService := services.NewCacheService(redisClient, cfg.CacheTTL)
	metrics := services.NewMetricsCollector()
	forwarder := proxy.NewForwarder(cfg.ProxyTimeout, logger.Named("proxy"))

	authMW := middleware.NewAuthMiddleware(tokens, db, metrics, routeFile.PublicPaths, logger.Named("auth"))
	rateLimitMW := middleware.NewRateLimitMiddleware(limiter, metrics, cfg.StoreTimeout, logger.Named("ratelimit"))
	cacheMW := middleware.NewCacheMiddleware(cacheService, routes, metrics, logger.Named("cache"))

	gatewayHandler := handlers.NewGatewayHandler(routes, forwarder, db, metrics, logger.Named("gateway"))
	authHandler := handlers.NewAuthHandler(tokens, nil, cfg.AuthServiceURL, cfg.UserServiceURL, logger.Named("auth"))
	adminHandler := handlers.NewAdminHandler(db, routes, cacheService, logger.Named("admin"))
	healthHandler := handlers.NewHealthHandler(db, redisClient, limiter, metrics, logger.Named("health"))

	mux := http.NewServeMux()

	mux.HandleFunc("/health", healthHandler.HealthCheck)
	mux.HandleFunc("/metrics", healthHandler.GetMetrics)

	mux.HandleFunc("/api/v1/auth/login", authHandler.Login)
	mux.HandleFunc("/api/v1/auth/refresh", authHandler.Refresh)
	mux.HandleFunc("/api/v1/auth/logout", authHandler.Logout)
	mux.Handle("/api/v1/auth/me", rateLimitMW.Middleware(http.HandlerFunc(authHandler.Me)))

	mux.HandleFunc("/admin/keys", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			adminHandler.CreateAPIKey(w, r)
		default:
			adminHandler.ListAPIKeys(w, r)
		}
	})
	mux.HandleFunc("/admin/keys/delete", adminHandler.DeleteAPIKey)
	mux.HandleFunc("/admin/keys/toggle", adminHandler.ToggleAPIKey)
	mux.HandleFunc("/admin/backends", adminHandler.Backends)
	mux.HandleFunc("/admin/backends/health", adminHandler.SetBackendHealth)
	mux.HandleFunc("/admin/cache/clear", adminHandler.ClearCache)

	// Everything else goes through the proxy pipeline.
	mux.Handle("/", authMW.Middleware(rateLimitMW.Middleware(cacheMW.Middleware(gatewayHandler))))

	handler := middleware.Recovery(logger.Named("recovery"))(middleware.RequestID(mux))

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()
	logger.Info("gateway ready")

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	case sig := <-stop:
		logger.Info("shutting down", zap.String("signal", sig.String()))
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			logger.Warn("shutdown incomplete", zap.Error(err))
		}
	}
}

// limitPolicies converts the route file's rate limit section into limiter
// policies. Unknown scope names are dropped rather than failing startup.
func limitPolicies(raw map[string]config.RateLimitPolicy) map[models.RateLimitKeyType]ratelimit.Policy {
	policies := make(map[models.RateLimitKeyType]ratelimit.Policy, len(raw))
	for scope, p := range raw {
		switch t := models.RateLimitKeyType(scope); t {
		case models.KeyTypeUser, models.KeyTypeIP, models.KeyTypeAPIKey, models.KeyTypeGlobal:
			policies[t] = ratelimit.Policy{Limit: p.Limit, Window: p.Window}
		}
	}
	return policies
}

func newLogger(level string) *zap.Logger {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := cfg.Build()
	if err != nil {
		return zap.NewExample()
	}
	return logger
}
