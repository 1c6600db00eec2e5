package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/regassist/backend/api/handlers"
	"github.com/regassist/backend/internal/agent"
	"github.com/regassist/backend/internal/config"
	"github.com/regassist/backend/internal/db"
	"github.com/regassist/backend/internal/replay"
	"github.com/regassist/backend/internal/repository"
	"github.com/regassist/backend/internal/ws"
)

func main() {
	// Optional .env for local development
	_ = godotenv.Load()

	cfg, err := config.Load(os.Getenv("REGASSIST_CONFIG"))
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Ensure data directories exist
	if err := os.MkdirAll(filepath.Dir(cfg.DB.Path), 0755); err != nil {
		log.Fatalf("Failed to create database directory: %v", err)
	}
	if err := os.MkdirAll(cfg.Stream.TranscriptDir, 0755); err != nil {
		log.Fatalf("Failed to create transcript directory: %v", err)
	}

	// Initialize database
	database, err := db.InitDB(cfg.DB.Path)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.CloseDB()

	if err := db.SeedPredicates(database); err != nil {
		log.Fatalf("Failed to seed predicate catalog: %v", err)
	}

	// Repositories
	projectRepo := repository.NewProjectRepository(database)
	predicateRepo := repository.NewPredicateRepository(database)

	// Agent + streaming layer
	finder := agent.NewPredicateFinder(predicateRepo,
		agent.WithChunkDelay(time.Duration(cfg.Stream.ChunkDelayMS)*time.Millisecond))
	replayStore := replay.NewStore(cfg.Stream.ReplayFrames)
	hub := ws.NewHub()
	streamService := ws.NewService(hub, finder, projectRepo, replayStore, cfg.Stream.TranscriptDir)
	defer streamService.Close()
	defer hub.Close()

	wsHandler := ws.NewHandler(hub, streamService, replayStore)

	// HTTP handlers
	projectHandler := handlers.NewProjectHandler(projectRepo, streamService)
	attachHandler := handlers.NewWebSocketHandler(wsHandler)

	// Initialize Gin router
	r := gin.Default()

	// Enable CORS for development
	r.Use(corsMiddleware())

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status": "ok",
		})
	})

	// API routes
	api := r.Group("/api")
	{
		projectHandler.RegisterRoutes(api)
		attachHandler.RegisterRoutes(api)
	}

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Println("Shutting down server...")
		streamService.Close()
		hub.Close()
		db.CloseDB()
		os.Exit(0)
	}()

	// Start server
	log.Printf("Starting server on port %d", cfg.Server.Port)
	if err := r.Run(fmt.Sprintf(":%d", cfg.Server.Port)); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// corsMiddleware returns a CORS middleware for development.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
