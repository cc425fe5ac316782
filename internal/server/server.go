package server

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/pss-rag/docqa/config"
	"github.com/pss-rag/docqa/internal/embedding"
	"github.com/pss-rag/docqa/internal/guard"
	"github.com/pss-rag/docqa/internal/index"
	"github.com/pss-rag/docqa/internal/indexer"
	"github.com/pss-rag/docqa/internal/llm"
	"github.com/pss-rag/docqa/internal/orchestrator"
	"github.com/pss-rag/docqa/internal/ratelimit"
	"github.com/pss-rag/docqa/internal/store"
	"github.com/pss-rag/docqa/internal/telemetry"
)

// Run wires the full service and blocks serving HTTP. All dependency
// failures are fatal here: a partially wired service must not start.
func Run(cfg *config.Config) error {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	// Unified HTTP error handler with structured JSON and logging
	baseLogger := log.New(log.Writer(), "[HTTP] ", log.LstdFlags)
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		baseLogger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
		if !c.Response().Committed {
			_ = c.JSON(code, map[string]interface{}{"error": msg})
		}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Cookie", "Authorization"},
		AllowCredentials: true,
	}))

	ctx := context.Background()

	// schema problems are fatal here, never at query time
	if err := Migrate("file://migrations", cfg.Storage.Postgres.DSN(), "up", 0); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}

	st, err := store.NewWithDSN(ctx, cfg.Storage.Postgres.DSN())
	if err != nil {
		return err
	}

	// Optional Redis: rate-limit counters shared across replicas plus the
	// scheduler lock. Without it the limiter is per-process.
	var rdb *redis.Client
	var limitStore ratelimit.Store
	if cfg.Storage.Redis.Enabled() {
		rdb = redis.NewClient(&redis.Options{
			Addr:     fmt.Sprintf("%s:%s", cfg.Storage.Redis.Host, cfg.Storage.Redis.Port),
			Password: cfg.Storage.Redis.Password,
			DB:       cfg.Storage.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis connection failed (%s:%s): %w", cfg.Storage.Redis.Host, cfg.Storage.Redis.Port, err)
		}
		limitStore = ratelimit.NewRedisStore(rdb)
	} else {
		limitStore = ratelimit.NewMemoryStore()
	}
	limiter := ratelimit.New(limitStore, cfg.RateLimit.PerWindow, cfg.RateLimit.Window)

	var reg *prometheus.Registry
	var tele *telemetry.Telemetry
	if cfg.Telemetry.Enabled {
		reg = prometheus.NewRegistry()
		tele = telemetry.New(reg)
	}

	encoder := embedding.NewClient(cfg.Embedding.BaseURL, cfg.Embedding.APIKey, cfg.Embedding.Model, cfg.Embedding.Timeout)

	// The index must exist before the first query is accepted. Build one
	// with the index command if this fails.
	ix, err := index.Load(cfg.Retrieval.IndexPath)
	if err != nil {
		return fmt.Errorf("load vector index %s: %w", cfg.Retrieval.IndexPath, err)
	}
	handle := index.NewHandle(ix)
	log.Printf("vector index loaded: %d chunks", ix.Len())

	provider := llm.NewOpenAIClient(cfg.LLM.BaseURL, cfg.LLM.APIKey, cfg.LLM.Model,
		cfg.LLM.Temperature, cfg.LLM.MaxTokens, cfg.LLM.TopP, cfg.LLM.Timeout)
	generator := llm.NewGenerator(provider, cfg.LLM.MaxRetries, tele)

	orch := orchestrator.New(
		guard.New(cfg.Guard.MaxQueryLength),
		limiter,
		encoder,
		handle,
		generator,
		cfg.Retrieval.TopK,
		tele,
	)

	reindexer := indexer.New(st, encoder, handle, cfg.Retrieval.IndexPath)

	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	if reg != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
	}

	secret := []byte(cfg.Server.JWTSecret)
	api := e.Group("/api")

	auth := &AuthHandler{Store: st, Secret: secret, TokenTTL: cfg.Server.SessionTimeout}
	auth.Register(api.Group("/auth"))

	qh := &QueryHandler{
		Orch:        orch,
		Generator:   generator,
		Store:       st,
		Reindexer:   reindexer,
		Limiter:     limiter,
		RequireAuth: cfg.Server.RequireAuth,
	}
	qh.Register(api, secret)

	if cfg.Reindex.Cron != "" {
		sched := &Scheduler{
			Cron:      cfg.Reindex.Cron,
			Reindexer: reindexer,
			Rdb:       rdb,
			Stop:      make(chan struct{}),
		}
		sched.Start()
		defer close(sched.Stop)
	}

	addr := cfg.Server.Address
	if addr == "" {
		addr = ":10080"
	}
	log.Printf("listening on %s", addr)
	return e.Start(addr)
}
