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

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/bangalienterprise/Bangalibusiness-sub000/internal/cache"
	"github.com/bangalienterprise/Bangalibusiness-sub000/internal/config"
	"github.com/bangalienterprise/Bangalibusiness-sub000/internal/httpapi"
	"github.com/bangalienterprise/Bangalibusiness-sub000/internal/reconcile"
	"github.com/bangalienterprise/Bangalibusiness-sub000/internal/service"
	"github.com/bangalienterprise/Bangalibusiness-sub000/internal/store"
	"github.com/bangalienterprise/Bangalibusiness-sub000/internal/store/memory"
	pgstore "github.com/bangalienterprise/Bangalibusiness-sub000/internal/store/postgres"
	sqlitestore "github.com/bangalienterprise/Bangalibusiness-sub000/internal/store/sqlite"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	logger, err := newLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid logging configuration: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)

	if err := validateSecurityConfig(cfg); err != nil {
		logger.Fatal("invalid security configuration", zap.Error(err))
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	repo, closers, err := openRepository(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("repository unavailable", zap.Error(err))
	}

	dueCache, cacheClosers := openDueCache(ctx, cfg, logger)
	closers = append(closers, cacheClosers...)

	reconciler := reconcile.NewEngine(repo, dueCache, cfg.DueCacheTTL(), logger.Named("reconcile"))
	svc := service.New(repo, reconciler, logger.Named("ledger"), cfg.DefaultBusinessID)
	auth := httpapi.NewAuthManager(cfg.AuthSecret, cfg.AccessTokenTTL(), repo, logger.Named("auth"))
	api := httpapi.New(svc, auth, cfg.AllowedOrigin, logger.Named("http"))

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("ledger backend listening", zap.String("addr", cfg.Address()), zap.String("business_id", cfg.DefaultBusinessID))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", zap.Error(err))
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			logger.Error("close error", zap.Error(err))
		}
	}

	logger.Info("server stopped")
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	if cfg.LogFormat == "console" {
		zcfg = zap.NewDevelopmentConfig()
	}
	level, err := zap.ParseAtomicLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	zcfg.Level = level
	return zcfg.Build()
}

// openRepository picks postgres when DATABASE_URL is set, SQLite when
// SQLITE_PATH is set and the seeded memory store otherwise. A configured
// database that cannot be reached is an error, never a silent fallback.
func openRepository(ctx context.Context, cfg config.Config, logger *zap.Logger) (store.Repository, []func() error, error) {
	switch {
	case cfg.DatabaseURL != "":
		if cfg.DBMigrate {
			if err := pgstore.Migrate(cfg.DatabaseURL); err != nil {
				return nil, nil, fmt.Errorf("migrate postgres: %w", err)
			}
			logger.Info("migrations applied")
		}
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("postgres unavailable and DATABASE_URL is set: %w", err)
		}
		logger.Info("repository: postgres")
		return pg, []func() error{pg.Close}, nil
	case cfg.SQLitePath != "":
		lite, err := sqlitestore.New(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("sqlite unavailable at %s: %w", cfg.SQLitePath, err)
		}
		logger.Info("repository: sqlite", zap.String("path", cfg.SQLitePath))
		return lite, []func() error{lite.Close}, nil
	default:
		logger.Info("repository: in-memory")
		return memory.NewSeeded(), nil, nil
	}
}

// openDueCache falls back to the in-process cache when Redis is not
// configured or does not answer.
func openDueCache(ctx context.Context, cfg config.Config, logger *zap.Logger) (cache.DueCache, []func() error) {
	if cfg.RedisAddr == "" {
		logger.Info("cache: memory")
		return cache.NewMemoryDueCache(), nil
	}

	redisCache := cache.NewRedisDueCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err := redisCache.Ping(ctx); err != nil {
		logger.Warn("redis unavailable, using memory cache", zap.Error(err))
		_ = redisCache.Close()
		return cache.NewMemoryDueCache(), nil
	}
	logger.Info("cache: redis", zap.String("addr", cfg.RedisAddr))
	return redisCache, []func() error{redisCache.Close}
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	return nil
}
