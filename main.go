package main

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/abdusco/shortlink/internal/db"
	"github.com/abdusco/shortlink/internal/handler"
	"github.com/abdusco/shortlink/internal/logger"
	"github.com/abdusco/shortlink/internal/redisstore"
	"github.com/abdusco/shortlink/internal/registry"
	"github.com/abdusco/shortlink/internal/repo"
	"github.com/abdusco/shortlink/internal/tagging"
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

const (
	storeMemory   = "memory"
	storeSQLite   = "sqlite"
	storePostgres = "postgres"
	storeRedis    = "redis"
)

type Config struct {
	Host           string
	Port           string
	BaseURL        string
	Store          string
	DBPath         string
	DatabaseURL    string `json:"-"`
	RedisAddr      string
	RedisPassword  string `json:"-"`
	RedisDB        int
	MaxActiveLinks int
	Tagger         string
	RateLimitRPS   float64
	LogLevel       string
	Debug          bool
}

func newConfigFromEnv() (Config, error) {
	// .env is optional; real environment variables win.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := Config{
		Host:          cmp.Or(os.Getenv("HOST"), "localhost"),
		Port:          cmp.Or(os.Getenv("PORT"), "8080"),
		Store:         cmp.Or(os.Getenv("STORE"), storeMemory),
		DBPath:        cmp.Or(os.Getenv("DB_PATH"), "shortlink.db"),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		RedisAddr:     cmp.Or(os.Getenv("REDIS_ADDR"), "localhost:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		Tagger:        cmp.Or(os.Getenv("TAGGER"), "headers"),
		LogLevel:      cmp.Or(os.Getenv("LOG_LEVEL"), "info"),
		Debug:         os.Getenv("DEBUG") == "1" || os.Getenv("ENV") == "development",
	}
	cfg.BaseURL = cmp.Or(os.Getenv("BASE_URL"), "http://"+cfg.Host+":"+cfg.Port)

	var err error
	if cfg.RedisDB, err = envInt("REDIS_DB", 0); err != nil {
		return Config{}, err
	}
	if cfg.MaxActiveLinks, err = envInt("MAX_ACTIVE_LINKS", registry.DefaultCapacity); err != nil {
		return Config{}, err
	}
	if cfg.MaxActiveLinks < 1 {
		return Config{}, fmt.Errorf("MAX_ACTIVE_LINKS must be positive, got %d", cfg.MaxActiveLinks)
	}
	if raw := os.Getenv("RATE_LIMIT_RPS"); raw != "" {
		if cfg.RateLimitRPS, err = strconv.ParseFloat(raw, 64); err != nil || cfg.RateLimitRPS < 0 {
			return Config{}, fmt.Errorf("invalid RATE_LIMIT_RPS %q", raw)
		}
	}

	switch cfg.Store {
	case storeMemory, storeSQLite, storeRedis:
	case storePostgres:
		if cfg.DatabaseURL == "" {
			return Config{}, errors.New("DATABASE_URL is required when STORE=postgres")
		}
	default:
		return Config{}, fmt.Errorf("unknown STORE %q", cfg.Store)
	}

	return cfg, nil
}

func envInt(key string, fallback int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return n, nil
}

func main() {
	cfg, err := newConfigFromEnv()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to parse configuration from environment")
	}

	if err := logger.Setup(cfg.LogLevel, cfg.Debug); err != nil {
		log.Fatal().Err(err).Str("level", cfg.LogLevel).Msg("failed to parse log level")
	}

	log.Info().
		Interface("config", cfg).
		Msg("current configuration")

	ctx := context.Background()
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg); err != nil {
		log.Fatal().Err(err).Msg("application error")
	}
}

func run(ctx context.Context, cfg Config) error {
	log.Info().
		Str("version", version).
		Str("build_time", buildTime).
		Msg("starting application")

	store, closer, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closer.Close()

	reg := registry.New(
		registry.WithStore(store),
		registry.WithCapacity(cfg.MaxActiveLinks),
	)
	if err := reg.Restore(ctx); err != nil {
		return fmt.Errorf("failed to restore links: %w", err)
	}

	e := newServer(cfg, reg, tagging.New(cfg.Tagger))
	defer e.Close()

	log.Info().Str("address", cfg.Port).Str("store", cfg.Store).Msg("server starting")

	// Run server and handle graceful shutdown
	return runServer(ctx, e, cfg.Port)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func openStore(ctx context.Context, cfg Config) (registry.Store, io.Closer, error) {
	switch cfg.Store {
	case storeSQLite, storePostgres:
		driver, dsn := db.DriverSQLite, cfg.DBPath
		if cfg.Store == storePostgres {
			driver, dsn = db.DriverPostgres, cfg.DatabaseURL
		}
		conn, err := db.Open(ctx, driver, dsn)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		return repo.NewStore(conn, db.Dialect(driver)), conn, nil
	case storeRedis:
		rdb, err := redisstore.NewClient(ctx, redisstore.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		return redisstore.New(rdb, redisstore.DefaultPrefix), rdb, nil
	default:
		return registry.MemoryStore{}, nopCloser{}, nil
	}
}

func newServer(cfg Config, reg *registry.Registry, tagger tagging.Tagger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = handler.ErrorHandler

	e.Use(middleware.RequestLogger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	if cfg.RateLimitRPS > 0 {
		e.Use(middleware.RateLimiter(middleware.NewRateLimiterMemoryStore(rate.Limit(cfg.RateLimitRPS))))
	}

	linkHandler := handler.NewLinkHandler(reg, tagger, cfg.BaseURL)
	analyticsHandler := handler.NewAnalyticsHandler(reg)

	api := e.Group("/api")
	api.POST("/links", linkHandler.CreateLink)
	api.GET("/links", linkHandler.ListLinks)
	api.GET("/links/:ref", linkHandler.GetLink)
	api.DELETE("/links/:id", linkHandler.DeleteLink)
	api.GET("/links/:ref/clicks", linkHandler.ListClicks)
	api.GET("/analytics", analyticsHandler.Report)

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	// Parameterized route (must be last)
	e.GET("/:code", linkHandler.Redirect)

	return e
}

func runServer(ctx context.Context, e *echo.Echo, port string) error {
	serverErr := make(chan error, 1)
	go func() {
		serverErr <- e.Start(":" + port)
	}()

	// Wait for context cancellation (Ctrl+C or SIGTERM) or a listener failure
	select {
	case err := <-serverErr:
		if !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("server error")
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("shutdown signal received, gracefully shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("error during graceful shutdown")
	}

	if err := <-serverErr; err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error().Err(err).Msg("server error")
		return err
	}

	log.Info().Msg("server stopped")
	return nil
}
