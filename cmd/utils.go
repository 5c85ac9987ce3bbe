package cmd

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"

	"creative-backend/internal/config"
	"creative-backend/internal/core"
	"creative-backend/internal/evaluator"
	"creative-backend/internal/orchestrator"
	"creative-backend/internal/platform/otel"
	"creative-backend/internal/storage"

	"github.com/joho/godotenv"
)

func LoadEnvFile() {
	var configPath string

	flag.StringVar(&configPath, "env", "", "path to load env from")
	flag.Parse()

	if configPath == "" {
		log.Printf("no env file specified, using os.Environ only")
		return
	}

	log.Printf("loading env from file %s", configPath)
	err := godotenv.Load(configPath)
	if err != nil {
		log.Fatalf("error loading .env file '%s': %v", configPath, err)
	}
}

func loadRegistry(path string) (*core.Registry, error) {
	if path == "" {
		return core.DefaultRegistry(), nil
	}
	slog.Info("loading role registry", "path", path)
	return core.LoadRegistry(path)
}

// CreateOrchestrator builds the llm backend and the orchestrator running roles
// against it. The llm is returned as well for brief extraction.
func CreateOrchestrator(cfg config.EvaluationConfig) (*orchestrator.Orchestrator, evaluator.LLM, error) {
	registry, err := loadRegistry(cfg.RolesFile)
	if err != nil {
		return nil, nil, err
	}

	llm, err := evaluator.NewLLM(cfg.LLM())
	if err != nil {
		return nil, nil, fmt.Errorf("error creating llm client: %w", err)
	}

	slog.Info("created evaluator", "provider", cfg.LLMProvider, "model", cfg.LLMModel, "roles", registry.Len())
	return orchestrator.New(registry, evaluator.NewLLMEvaluator(llm), cfg.Orchestrator()), llm, nil
}

func CreateS3Store(ctx context.Context, cfg config.S3Config) (*storage.S3ObjectStore, error) {
	store, err := storage.NewS3ObjectStore(storage.S3ClientConfig{
		Endpoint:        cfg.S3EndpointURL,
		Region:          cfg.S3Region,
		Bucket:          cfg.S3Bucket,
		AccessKeyID:     cfg.S3AccessKeyID,
		SecretAccessKey: cfg.S3SecretAccessKey,
	})
	if err != nil {
		return nil, fmt.Errorf("error creating s3 client: %w", err)
	}
	if err := store.CreateBucket(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

// SetupTracing installs the otel exporter. The returned func flushes spans and
// must be called before exit.
func SetupTracing(service, endpoint string) func() {
	shutdown, err := otel.Setup(context.Background(), service, endpoint)
	if err != nil {
		log.Fatalf("error setting up tracing: %v", err)
	}
	if endpoint != "" {
		slog.Info("tracing enabled", "service", service, "endpoint", endpoint)
	}
	return func() {
		if err := shutdown(context.Background()); err != nil {
			slog.Error("error flushing traces", "error", err)
		}
	}
}
