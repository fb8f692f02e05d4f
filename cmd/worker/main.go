package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/caarlos0/env/v11"

	"prediction-backend/cmd"
	"prediction-backend/internal/core"
	"prediction-backend/internal/database"
	"prediction-backend/internal/messaging"
	"prediction-backend/internal/storage"
)

type WorkerConfig struct {
	DatabaseURL string `env:"DATABASE_URL,notEmpty,required"`
	RabbitMQURL string `env:"RABBITMQ_URL,notEmpty,required"`
	Concurrency int    `env:"CONCURRENCY" envDefault:"1"`

	// ModelPath is a local file or an s3:// URL; empty means the built-in
	// default model.
	ModelPath         string `env:"MODEL_PATH"`
	S3EndpointURL     string `env:"S3_ENDPOINT_URL"`
	S3AccessKeyID     string `env:"AWS_ACCESS_KEY_ID"`
	S3SecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY"`
	S3Region          string `env:"AWS_REGION" envDefault:"us-east-1"`
}

func main() {
	log.Println("Starting Worker Process...")

	cmd.LoadEnvFile()

	var cfg WorkerConfig
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("error parsing config: %v", err)
	}

	db, err := database.NewDatabase(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	var store storage.ObjectStore
	if strings.HasPrefix(cfg.ModelPath, "s3://") {
		store, err = storage.NewS3ObjectStore(storage.S3ClientConfig{
			Endpoint:        cfg.S3EndpointURL,
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
		})
		if err != nil {
			log.Fatalf("Failed to create object store: %v", err)
		}
	}

	model, err := core.LoadModel(context.Background(), store, cfg.ModelPath)
	if err != nil {
		log.Fatalf("Failed to load scoring model: %v", err)
	}

	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	// Each processor gets its own receiver (own channel, prefetch 1) so one
	// message is fully processed before the next is fetched; concurrent
	// debits for the same user are serialized by the row lock.
	processors := make([]*core.TaskProcessor, 0, concurrency)
	for i := 0; i < concurrency; i++ {
		reciever, err := messaging.NewRabbitMQReceiver(cfg.RabbitMQURL)
		if err != nil {
			log.Fatalf("Failed to connect to RabbitMQ: %v", err)
		}

		proc := core.NewTaskProcessor(db, reciever, model)
		processors = append(processors, proc)
		go proc.Start()
	}

	log.Printf("Worker started with %d processors. Waiting for tasks. Press Ctrl+C to exit.", concurrency)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutdown signal received, stopping processors...")
	for _, proc := range processors {
		proc.Stop()
	}

	log.Println("Worker process stopped.")
}
