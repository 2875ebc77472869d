package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/rosevoul/recserve/internal/config"
	dbRedis "github.com/rosevoul/recserve/internal/db/redis"
	"github.com/rosevoul/recserve/internal/domain"
	logpkg "github.com/rosevoul/recserve/internal/logger"
	"github.com/rosevoul/recserve/internal/metrics"
	"github.com/rosevoul/recserve/internal/registry"
	"github.com/rosevoul/recserve/internal/repository/annindex"
	"github.com/rosevoul/recserve/internal/repository/embcache"
	"github.com/rosevoul/recserve/internal/repository/expcache"
	"github.com/rosevoul/recserve/internal/repository/featurestore"
	"github.com/rosevoul/recserve/internal/repository/popularity"
	chiTransport "github.com/rosevoul/recserve/internal/transport/chi"
	openaiProv "github.com/rosevoul/recserve/internal/transport/openai"
	expanduc "github.com/rosevoul/recserve/internal/usecase/expand"
	healthuc "github.com/rosevoul/recserve/internal/usecase/health"
	mergeuc "github.com/rosevoul/recserve/internal/usecase/merge"
	pipelineuc "github.com/rosevoul/recserve/internal/usecase/pipeline"
	rankuc "github.com/rosevoul/recserve/internal/usecase/rank"
	rerankuc "github.com/rosevoul/recserve/internal/usecase/rerank"
	retrieveuc "github.com/rosevoul/recserve/internal/usecase/retrieve"
	"github.com/rosevoul/recserve/internal/version"
)

func main() {
	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting recserve API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.Strings("db_addrs", cfg.Database.Addrs),
		zap.String("default_index_version", cfg.Pipeline.DefaultIndexVersion),
	)

	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    cfg.Database.Addrs,
		Password: cfg.Database.Password,
	})
	if err != nil {
		logger.Fatal("Failed to create database store", zap.Error(err))
	}
	defer store.Close()

	// Wait for database to be ready
	ctx := context.Background()
	if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		logger.Fatal("Database not ready", zap.Error(err))
	}
	logger.Info("Connected to database")

	// Register pipeline metrics explicitly (no init())
	metrics.RegisterPipelineMetrics()

	// Artifact registry — versions are resolved per request, never mutated.
	reg, err := registry.New(cfg.Artifacts)
	if err != nil {
		logger.Fatal("Invalid artifact configuration", zap.Error(err))
	}
	defaultArtifact, err := reg.Resolve(cfg.Pipeline.DefaultIndexVersion)
	if err != nil {
		logger.Fatal("Default index version not configured", zap.Error(err))
	}

	// Embedder chain: OpenAI provider wrapped in the versioned cache. The
	// cache key carries the embedding version of the default artifact so an
	// index rollout never serves stale vectors.
	baseEmbedder := openaiProv.NewEmbedder(&openaiProv.EmbedderConfig{
		APIKey:     cfg.Embedding.APIKey,
		BaseURL:    cfg.Embedding.BaseURL,
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
		Provider:   "openai",
		Logger:     logger,
	})
	var embedder domain.Embedder = embcache.New(
		baseEmbedder, store, defaultArtifact.EmbeddingVersion,
		time.Duration(cfg.Embedding.CacheTTLSec)*time.Second,
		metrics.EmbeddingCacheTotal, logger,
	)
	logger.Info("Embedder created",
		zap.String("model", cfg.Embedding.Model),
		zap.Int("dimensions", cfg.Embedding.Dimensions),
		zap.String("embedding_version", defaultArtifact.EmbeddingVersion),
	)

	generator := openaiProv.NewGenerator(&openaiProv.GeneratorConfig{
		APIKey:   cfg.Generative.APIKey,
		BaseURL:  cfg.Generative.BaseURL,
		Model:    cfg.Generative.Model,
		Provider: "openai",
		Logger:   logger,
	})

	// Repositories
	annRepo := annindex.New(store)
	popRepo := popularity.New(store)
	featRepo := featurestore.New(store, logger)
	expCache := expcache.New(store,
		time.Duration(cfg.Pipeline.Expansion.CacheTTLSec)*time.Second,
		metrics.ExpansionCacheTotal, logger)

	// Pipeline stages
	expandSvc := expanduc.New(generator, expCache, cfg.Pipeline.Expansion, logger)
	retrieveSvc := retrieveuc.New(annRepo, popRepo, reg, cfg.Pipeline.Retrieval, logger)
	mergeSvc := mergeuc.New(retrieveSvc, cfg.Pipeline.Merge, logger)
	model := rankuc.NewLinearModel(
		cfg.Pipeline.Rank.ModelVersion, cfg.Pipeline.Rank.ModelBias, cfg.Pipeline.Rank.ModelWeights,
	)
	rankSvc := rankuc.New(featRepo, popRepo, model, cfg.Pipeline.Rank, logger)
	rerankSvc := rerankuc.New(generator, nil, cfg.Pipeline.Rerank, logger)

	pipelineSvc := pipelineuc.New(
		expandSvc, embedder, featRepo, mergeSvc, rankSvc, rerankSvc, popRepo,
		cfg.Pipeline, logger,
	)

	healthSvc := healthuc.New(store, baseEmbedder, generator)

	server := chiTransport.NewServer(pipelineSvc, healthSvc, logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(chiTransport.BearerAuthMiddleware(cfg.Auth.APIKeys))
	r.Use(metrics.Middleware())
	r.Post("/v1/recommendations", server.Recommend)
	r.Get("/healthz", server.HealthCheck)
	r.Get("/metrics", server.Metrics)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.Stack("stacktrace"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(map[string]string{
						"code":    "internal_error",
						"message": "internal error",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// wideEventMiddleware emits a canonical log line per request and propagates X-Request-ID.
func wideEventMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// chi.middleware.RequestID already placed request_id in context
			requestID := chiMiddleware.GetReqID(r.Context())

			// Set X-Request-ID in response header
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			// Per-request logger with request_id
			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			// Canonical log line — one line per request
			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int64("content_length", r.ContentLength),
				zap.String("user_agent", r.UserAgent()),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
