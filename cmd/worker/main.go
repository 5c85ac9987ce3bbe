package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"creative-backend/cmd"
	"creative-backend/internal/config"
	"creative-backend/internal/database"
	"creative-backend/internal/messaging"
	"creative-backend/internal/worker"
)

type WorkerConfig struct {
	DatabaseURL       string `env:"DATABASE_URL,notEmpty,required"`
	RabbitMQURL       string `env:"RABBITMQ_URL,notEmpty,required"`
	WorkerConcurrency int    `env:"CONCURRENCY" envDefault:"1"`
	config.EvaluationConfig
	config.S3Config
}

func main() {
	log.Println("Starting Worker Process...")

	cmd.LoadEnvFile()

	cfg, err := config.Parse[WorkerConfig]()
	if err != nil {
		log.Fatalf("%v", err)
	}

	flushTraces := cmd.SetupTracing("creative-worker", cfg.OtelEndpoint)
	defer flushTraces()

	db, err := database.NewDatabase(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	store, err := cmd.CreateS3Store(context.Background(), cfg.S3Config)
	if err != nil {
		log.Fatalf("Worker: Failed to create S3 store: %v", err)
	}

	reciever, err := messaging.NewRabbitMQReceiver(cfg.RabbitMQURL)
	if err != nil {
		log.Fatalf("Failed to connect to RabbitMQ: %v", err)
	}

	orch, _, err := cmd.CreateOrchestrator(cfg.EvaluationConfig)
	if err != nil {
		log.Fatalf("Failed to create orchestrator: %v", err)
	}

	processor := worker.NewTaskProcessor(db, store, reciever, orch, cfg.WorkerConcurrency)

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		slog.Info("shutdown signal received, stopping worker")
		processor.Stop()
	}()

	log.Println("Worker started. Waiting for tasks. Press Ctrl+C to exit.")
	processor.Start()

	log.Println("Worker process stopped.")
}
