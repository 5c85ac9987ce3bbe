package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"creative-backend/cmd"
	"creative-backend/internal/api"
	"creative-backend/internal/config"
	"creative-backend/internal/database"
	"creative-backend/internal/evaluator"
	"creative-backend/internal/messaging"
	"creative-backend/internal/orchestrator"
	"creative-backend/internal/storage"
	"creative-backend/internal/worker"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"gorm.io/gorm"
)

type Config struct {
	Root              string        `env:"ROOT" envDefault:"./creative-eval"`
	Port              int           `env:"PORT" envDefault:"3001"`
	WorkerConcurrency int           `env:"CONCURRENCY" envDefault:"2"`
	HeartbeatInterval time.Duration `env:"HEARTBEAT_INTERVAL" envDefault:"15s"`
	config.EvaluationConfig
}

func createDatabase(root string) *gorm.DB {
	path := filepath.Join(root, "db", "creative-eval.db")
	if err := os.MkdirAll(filepath.Dir(path), os.ModePerm); err != nil {
		log.Fatalf("Failed to create database directory: %v", err)
	}

	db, err := database.NewDatabase(database.SqlitePrefix + path)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	// Runs interrupted by the last shutdown are started again from scratch.
	if err := db.
		Model(&database.Evaluation{}).
		Where("status = ?", database.JobRunning).
		Update("status", database.JobQueued).
		Error; err != nil {
		log.Fatalf("failed to reset interrupted evaluations: %v", err)
	}

	return db
}

func createQueue(db *gorm.DB) *messaging.InMemoryQueue {
	queue := messaging.NewInMemoryQueue()
	if _, err := worker.RequeuePending(context.Background(), db, queue); err != nil {
		log.Fatalf("Failed to requeue pending evaluations: %v", err)
	}
	return queue
}

func createServer(db *gorm.DB, orch *orchestrator.Orchestrator, store storage.ObjectStore, queue messaging.Publisher, llm evaluator.LLM, cfg Config) *http.Server {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"*"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	apiHandler := api.NewBackendService(db, orch, queue, store, llm, api.Options{
		Provider:  cfg.LLMProvider,
		Model:     cfg.LLMModel,
		Heartbeat: cfg.HeartbeatInterval,
	})
	apiHandler.AddRoutes(r)

	return &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: r,
	}
}

func main() {
	cmd.LoadEnvFile()

	cfg, err := config.Parse[Config]()
	if err != nil {
		log.Fatalf("%v", err)
	}

	log.SetFlags(log.LstdFlags | log.Lshortfile)
	if err := os.MkdirAll(cfg.Root, os.ModePerm); err != nil {
		log.Fatalf("error creating directory for log file: %v", err)
	}

	f, err := os.OpenFile(filepath.Join(cfg.Root, "backend.log"), os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		log.Fatalf("error opening log file: %v", err)
	}
	defer f.Close()

	log.SetOutput(io.MultiWriter(f, os.Stderr))

	flushTraces := cmd.SetupTracing("creative-local", cfg.OtelEndpoint)
	defer flushTraces()

	slog.Info("starting backend", "root", cfg.Root, "port", cfg.Port, "provider", cfg.LLMProvider)

	db := createDatabase(cfg.Root)

	store, err := storage.NewLocalObjectStore(filepath.Join(cfg.Root, "storage"))
	if err != nil {
		log.Fatalf("Failed to create local storage: %v", err)
	}

	orch, llm, err := cmd.CreateOrchestrator(cfg.EvaluationConfig)
	if err != nil {
		log.Fatalf("Failed to create orchestrator: %v", err)
	}

	queue := createQueue(db)

	processor := worker.NewTaskProcessor(db, store, queue, orch, cfg.WorkerConcurrency)

	server := createServer(db, orch, store, queue, llm, cfg)

	slog.Info("starting worker")
	go processor.Start()

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		slog.Info("shutting down server")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			log.Fatalf("Server forced to shutdown: %v", err)
		}

		slog.Info("shutting down worker")
		processor.Stop()
	}()

	slog.Info("server started", "port", cfg.Port)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Could not listen on %d: %v\n", cfg.Port, err)
	}

	slog.Info("server stopped")
}
