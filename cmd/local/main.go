// Single-process development mode: SQLite database, in-memory queue, and the
// API server plus task processor in one binary. No RabbitMQ or Postgres
// required, but also no durability: tasks in flight are lost on exit.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"prediction-backend/cmd"
	"prediction-backend/internal/api"
	"prediction-backend/internal/core"
	"prediction-backend/internal/database"
	"prediction-backend/internal/messaging"
)

type Config struct {
	DataDir   string `env:"DATA_DIR" envDefault:"./data"`
	APIPort   int    `env:"API_PORT" envDefault:"8001"`
	ModelPath string `env:"MODEL_PATH"`
}

func createDatabase(root string) *gorm.DB {
	path := filepath.Join(root, "db", "prediction-backend.db")
	if err := os.MkdirAll(filepath.Dir(path), os.ModePerm); err != nil {
		log.Fatalf("Failed to create database directory: %v", err)
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{TranslateError: true})
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	if err := database.GetMigrator(db).Migrate(); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	return db
}

func createServer(db *gorm.DB, queue messaging.Publisher, port int) *http.Server {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)                    // Log requests
	r.Use(middleware.Recoverer)                 // Recover from panics
	r.Use(middleware.Timeout(60 * time.Second)) // Set request timeout

	apiHandler := api.NewBackendService(db, queue)
	apiHandler.AddRoutes(r)

	return &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: r,
	}
}

func main() {
	cmd.LoadEnvFile()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("error parsing config: %v", err)
	}

	db := createDatabase(cfg.DataDir)
	cmd.InitializeModelCatalog(db)

	model, err := core.LoadModel(context.Background(), nil, cfg.ModelPath)
	if err != nil {
		log.Fatalf("Failed to load scoring model: %v", err)
	}

	queue := messaging.NewInMemoryQueue()

	proc := core.NewTaskProcessor(db, queue, model)
	go proc.Start()

	server := createServer(db, queue, cfg.APIPort)

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		log.Println("Shutting down...")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			log.Fatalf("Server forced to shutdown: %v", err)
		}
	}()

	log.Printf("Listening on port %d", cfg.APIPort)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Could not listen on port %d: %v", cfg.APIPort, err)
	}

	log.Println("Stopped.")
}
