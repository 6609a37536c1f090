package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"photo-match/internal/config"
	"photo-match/internal/db"
	"photo-match/internal/domain"
	"photo-match/internal/llm"
	"photo-match/internal/repository"
	"photo-match/internal/service"
)

type idList []string

func (l *idList) String() string { return strings.Join(*l, ",") }
func (l *idList) Set(v string) error {
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			*l = append(*l, part)
		}
	}
	return nil
}

func main() {
	var ids idList
	var jobTypeRaw string
	var all, dryRun bool
	var workers int
	flag.StringVar(&jobTypeRaw, "type", string(domain.JobTypePhotographerProfile), "job type: question, choice, image, photographer_profile")
	flag.Var(&ids, "id", "target id to embed (repeatable or comma separated)")
	flag.BoolVar(&all, "all", false, "embed every complete photographer profile")
	flag.BoolVar(&dryRun, "dry-run", false, "print targets without enqueueing")
	flag.IntVar(&workers, "workers", 0, "local workers to run while waiting (0 uses EMBEDDING_WORKERS)")
	flag.Parse()

	jobType, err := domain.ParseJobType(jobTypeRaw)
	if err != nil {
		log.Fatalf("%v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		log.Fatalf("db pool: %v", err)
	}
	defer pool.Close()
	if err := db.Ping(ctx, pool); err != nil {
		log.Fatalf("db ping: %v", err)
	}

	vectorStore := repository.NewPgVectorStore(pool)
	questionRepo := repository.NewPgQuestionRepository(pool)
	photographerRepo := repository.NewPgPhotographerRepository(pool)
	jobRepo := repository.NewPgEmbeddingJobRepository(pool)

	targets := []string(ids)
	if all {
		if jobType != domain.JobTypePhotographerProfile {
			log.Fatalf("-all is only supported for %s", domain.JobTypePhotographerProfile)
		}
		targets, err = photographerRepo.ListIDs(ctx, true)
		if err != nil {
			log.Fatalf("list photographers: %v", err)
		}
	}
	if len(targets) == 0 {
		fmt.Println("no targets provided")
		return
	}
	if dryRun {
		fmt.Printf("would embed %d %s targets: %s\n", len(targets), jobType, strings.Join(targets, ","))
		return
	}

	if workers <= 0 {
		workers = cfg.EmbeddingWorkers
	}
	opts := service.WorkerOptions{
		PollInterval:      cfg.EmbeddingPollInterval,
		BatchPollInterval: cfg.BatchPollInterval,
		BatchTimeout:      cfg.BatchTimeout,
		StaleAfter:        cfg.EmbeddingStaleAfter,
		JobTimeout:        cfg.EmbeddingJobTimeout,
	}
	embedder := llm.NewHTTPClient(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.EmbeddingModel, log.Default())
	queue := service.NewEmbeddingQueue(logger, jobRepo, questionRepo, photographerRepo, cfg.EmbeddingMaxAttempts)

	local := make([]*service.EmbeddingWorker, 0, workers)
	for i := 0; i < workers; i++ {
		local = append(local, service.NewEmbeddingWorker(logger, queue, embedder, vectorStore, questionRepo, photographerRepo, opts))
	}
	batchWorker := service.NewEmbeddingWorker(logger, queue, embedder, vectorStore, questionRepo, photographerRepo, opts)
	if len(local) > 0 {
		poolCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		service.NewWorkerPool(logger, queue, opts, local...).Start(poolCtx)
	}

	result, err := batchWorker.RunBatch(ctx, jobType, targets)
	out, _ := json.MarshalIndent(result, "", "  ")
	fmt.Println(string(out))
	if err != nil {
		fmt.Printf("batch interrupted: %v\n", err)
		os.Exit(1)
	}
	if result.Failed > 0 {
		os.Exit(2)
	}
}
