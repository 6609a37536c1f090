package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"photo-match/internal/config"
	"photo-match/internal/db"
	apihttp "photo-match/internal/http"
	"photo-match/internal/llm"
	"photo-match/internal/repository"
	"photo-match/internal/service"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(); err != nil {
		log.Printf("warning: loading .env: %v", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		panic(err)
	}

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		logger.Fatal("db connect", zap.Error(err))
	}
	defer pool.Close()

	vectorStore := repository.NewPgVectorStore(pool)
	questionRepo := repository.NewPgQuestionRepository(pool)
	photographerRepo := repository.NewPgPhotographerRepository(pool)
	sessionRepo := repository.NewPgSessionRepository(pool)
	settingsRepo := repository.NewPgSettingsRepository(pool)
	jobRepo := repository.NewPgEmbeddingJobRepository(pool)
	embedder := llm.NewHTTPClient(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.EmbeddingModel, zap.NewStdLog(logger))

	var matchCache service.MatchCache
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		ctxPing, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := redisClient.Ping(ctxPing).Err(); err != nil {
			logger.Warn("redis ping failed, using in-process match cache", zap.Error(err))
		} else {
			matchCache = service.NewRedisMatchCache(redisClient, cfg.MatchCacheTTL)
		}
		cancel()
	}
	if matchCache == nil {
		matchCache = service.NewMemoryMatchCache(cfg.MatchCacheTTL)
	}

	weightSvc := service.NewWeightConfigService(logger, questionRepo)
	if _, err := weightSvc.Load(ctx); err != nil {
		logger.Warn("initial weight load failed", zap.Error(err))
	}

	queue := service.NewEmbeddingQueue(logger, jobRepo, questionRepo, photographerRepo, cfg.EmbeddingMaxAttempts)
	workerOpts := service.WorkerOptions{
		PollInterval:      cfg.EmbeddingPollInterval,
		BatchPollInterval: cfg.BatchPollInterval,
		BatchTimeout:      cfg.BatchTimeout,
		StaleAfter:        cfg.EmbeddingStaleAfter,
		JobTimeout:        cfg.EmbeddingJobTimeout,
	}
	workerCount := cfg.EmbeddingWorkers
	if workerCount <= 0 {
		workerCount = 1
	}
	workers := make([]*service.EmbeddingWorker, 0, workerCount)
	for i := 0; i < workerCount; i++ {
		workers = append(workers, service.NewEmbeddingWorker(logger, queue, embedder, vectorStore, questionRepo, photographerRepo, workerOpts))
	}
	service.NewWorkerPool(logger, queue, workerOpts, workers...).Start(ctx)

	ranker := service.NewMatchRanker(logger, sessionRepo, photographerRepo, questionRepo, vectorStore, weightSvc, matchCache)
	settingsSvc := service.NewSettingsService(logger, settingsRepo)
	contentSvc := service.NewContentService(logger, questionRepo, photographerRepo, settingsRepo, queue)

	matchHandler := apihttp.NewMatchHandler(logger, ranker, settingsSvc)
	adminHandler := apihttp.NewAdminHandler(logger, weightSvc, settingsSvc)
	embeddingHandler := apihttp.NewEmbeddingHandler(logger, queue, workers[0], photographerRepo)
	contentHandler := apihttp.NewContentHandler(logger, contentSvc)
	router := apihttp.NewRouter(logger, matchHandler, adminHandler, embeddingHandler, contentHandler)

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("server shutdown", zap.Error(err))
		}
	}()

	logger.Info("starting server", zap.String("port", cfg.HTTPPort), zap.Int("embedding_workers", workerCount))

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal("server error", zap.Error(err))
	}
}
