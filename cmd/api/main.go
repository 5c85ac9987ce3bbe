package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"creative-backend/cmd"
	"creative-backend/internal/api"
	"creative-backend/internal/config"
	"creative-backend/internal/database"
	"creative-backend/internal/messaging"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type APIConfig struct {
	DatabaseURL       string        `env:"DATABASE_URL,notEmpty,required"`
	RabbitMQURL       string        `env:"RABBITMQ_URL,notEmpty,required"`
	APIPort           string        `env:"API_PORT" envDefault:"8001"`
	HeartbeatInterval time.Duration `env:"HEARTBEAT_INTERVAL" envDefault:"15s"`
	config.EvaluationConfig
	config.S3Config
}

func main() {
	log.Println("Starting API Server...")

	cmd.LoadEnvFile()

	cfg, err := config.Parse[APIConfig]()
	if err != nil {
		log.Fatalf("%v", err)
	}

	flushTraces := cmd.SetupTracing("creative-api", cfg.OtelEndpoint)
	defer flushTraces()

	db, err := database.NewDatabase(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	store, err := cmd.CreateS3Store(context.Background(), cfg.S3Config)
	if err != nil {
		log.Fatalf("Failed to create S3 store: %v", err)
	}

	publisher, err := messaging.NewRabbitMQPublisher(cfg.RabbitMQURL)
	if err != nil {
		log.Fatalf("Failed to connect to RabbitMQ: %v", err)
	}
	defer publisher.Close()

	orch, llm, err := cmd.CreateOrchestrator(cfg.EvaluationConfig)
	if err != nil {
		log.Fatalf("Failed to create orchestrator: %v", err)
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	// Synchronous and streamed evaluations hold the request open for the
	// whole run.
	r.Use(middleware.Timeout(cfg.EvaluationTimeout + 30*time.Second))

	apiHandler := api.NewBackendService(db, orch, publisher, store, llm, api.Options{
		Provider:  cfg.LLMProvider,
		Model:     cfg.LLMModel,
		Heartbeat: cfg.HeartbeatInterval,
	})
	apiHandler.AddRoutes(r)

	server := &http.Server{
		Addr:    ":" + cfg.APIPort,
		Handler: r,
	}

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		log.Println("Shutting down server...")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			log.Fatalf("Server forced to shutdown: %v", err)
		}
	}()

	log.Printf("API server listening on port %s", cfg.APIPort)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Could not listen on %s: %v\n", cfg.APIPort, err)
	}

	log.Println("Server stopped.")
}
