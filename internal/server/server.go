package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	appconfig "github.com/clearscope-labs/clearscope/config"
	"github.com/clearscope-labs/clearscope/internal/ingest"
	openai_provider "github.com/clearscope-labs/clearscope/internal/provider/openai"
	"github.com/clearscope-labs/clearscope/internal/retrieval"
	"github.com/clearscope-labs/clearscope/internal/runtime"
	"github.com/clearscope-labs/clearscope/internal/search"
	"github.com/clearscope-labs/clearscope/internal/store"
)

func Run(cfgPath, addr string) error {
	cfg := appconfig.LoadConfig(cfgPath)

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
	origins := cfg.Server.CORS
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Cookie", "Authorization"},
		AllowCredentials: true,
	}))

	e.GET("/healthz", func(c echo.Context) error { return c.String(200, "ok") })
	registerDocs(e)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	dsn, err := cfg.Storage.Postgres.DSN()
	if err != nil {
		return err
	}
	_ = Migrate("file://migrations", dsn, "up", 0)

	// Initialize shared dependencies (top-level DI)
	ctx := context.Background()
	st, err := store.NewWithDSN(ctx, dsn)
	if err != nil {
		return err
	}

	secret, err := runtime.LoadJWTSecret(cfg)
	if err != nil {
		return err
	}

	var rdb *redis.Client
	if cfg.Storage.Redis.Host != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Storage.Redis.Addr(),
			Password: cfg.Storage.Redis.Password,
			DB:       cfg.Storage.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis connection failed (%s): %w", cfg.Storage.Redis.Addr(), err)
		}
	}

	if cfg.Providers.OpenAI.APIKey == "" {
		return fmt.Errorf("openai api key not configured (providers.openai.api_key)")
	}
	ai := openai_provider.NewClient(cfg.Providers.OpenAI, cfg.Retrieval.EmbeddingDimensions)

	chunker := ingest.Chunker{
		MaxRunes:     cfg.Retrieval.ChunkMaxRunes,
		OverlapRunes: cfg.Retrieval.ChunkOverlapRunes,
	}
	pipeline := ingest.NewPipeline(st, ai, chunker, cfg.Retrieval.MaxUploadBytes, nil)

	ranker := retrieval.Ranker{MinSimilarity: cfg.Retrieval.MinSimilarity}
	comparer := retrieval.NewComparer(st, ai, ranker, cfg.Retrieval.SearchTopK, rdb, cfg.Retrieval.CacheTTL, nil)

	idx, err := search.NewIndex()
	if err != nil {
		return err
	}

	api := e.Group("/api")
	auth := &AuthHandler{Store: st, Secret: secret}
	auth.Register(api.Group("/auth"))

	(&CompaniesHandler{Store: st}).Register(api.Group("/companies"), secret)
	(&CategoriesHandler{Store: st}).Register(api.Group("/categories"), secret)
	(&ResourcesHandler{
		Store:    st,
		Pipeline: pipeline,
		Fetcher:  ingest.PageFetcher{Timeout: 45 * time.Second},
		Index:    idx,
		MaxBytes: cfg.Retrieval.MaxUploadBytes,
	}).Register(api.Group("/resources"), secret)
	(&TicketsHandler{Store: st}).Register(api.Group("/tickets"), secret)
	(&CompareHandler{Store: st, Comparer: comparer}).Register(api, secret)
	(&SearchHandler{
		Index:         idx,
		Store:         st,
		Embedder:      ai,
		TopK:          cfg.Retrieval.SearchTopK,
		MinSimilarity: cfg.Retrieval.MinSimilarity,
	}).Register(api.Group("/search"), secret)

	if cfg.Search.Enabled {
		sched := &Scheduler{
			Store: st,
			Index: idx,
			Rdb:   rdb,
			Cron:  cfg.Search.ReindexCron,
			Stop:  make(chan struct{}),
		}
		sched.Start()
	}

	if addr == "" {
		addr = cfg.Server.Address
	}
	log.Printf("listening on %s", addr)
	return e.Start(addr)
}
