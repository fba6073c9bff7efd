package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/trace"

	"github.com/taskforge/pagesmith/internal/artifact"
	"github.com/taskforge/pagesmith/internal/auth"
	"github.com/taskforge/pagesmith/internal/config"
	"github.com/taskforge/pagesmith/internal/converge"
	"github.com/taskforge/pagesmith/internal/gateway"
	"github.com/taskforge/pagesmith/internal/generation"
	"github.com/taskforge/pagesmith/internal/metrics"
	"github.com/taskforge/pagesmith/internal/orchestration"
	"github.com/taskforge/pagesmith/internal/reconcile"
	"github.com/taskforge/pagesmith/internal/store"

	_ "github.com/taskforge/pagesmith/docs" // swagger docs
)

// @title Pagesmith API
// @version 1.0
// @description Task-driven static site builder and publisher
// @description
// @description Accepts a build task, generates a static web project with a
// @description generative text service, publishes it to a GitHub repository,
// @description enables GitHub Pages and verifies the deployment converged.

// @contact.name API Support
// @contact.email support@taskforge.dev

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8080
// @BasePath /

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and the JWT token.

func main() {
	// Initialize OpenTelemetry
	if err := initTracer(); err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	// Optional task-run audit store. Without DATABASE_URL the service runs
	// with persistence disabled.
	var taskStore *store.Store
	if cfg.DatabaseURL != "" {
		log.Println("Connecting to PostgreSQL database...")
		for i := 0; i < 10; i++ {
			taskStore, err = store.New(context.Background(), cfg.DatabaseURL)
			if err == nil {
				break
			}
			log.Printf("Waiting for database... (attempt %d/10): %v", i+1, err)
			time.Sleep(3 * time.Second)
		}
		if err != nil {
			log.Fatalf("Failed to connect to database after retries: %v", err)
		}
		defer taskStore.Close()
		log.Println("Connected to PostgreSQL database")
	} else {
		log.Println("DATABASE_URL not set, task-run persistence disabled")
	}

	// Upstream clients
	repoClient := artifact.NewClient(cfg.GitHubBaseURL, cfg.GitHubOwner, cfg.GitHubToken)
	genClient := generation.NewClient(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModel)

	// Orchestration layer
	reconciler := reconcile.New(repoClient)
	waiter := converge.NewWaiter(cfg.PollInterval, cfg.PollAttempts)
	events := orchestration.NewEventBus()
	orchestrationService := orchestration.NewService(repoClient, genClient, reconciler, waiter, events)

	// Auth
	secrets, err := auth.NewSecretVerifier(cfg.Secret, cfg.SecretHash)
	if err != nil {
		log.Fatalf("Failed to initialize secret verifier: %v", err)
	}
	var jwtManager *auth.JWTManager
	if cfg.JWTSecret != "" {
		jwtManager, err = auth.NewJWTManager(cfg.JWTSecret)
		if err != nil {
			log.Fatalf("Failed to initialize JWT manager: %v", err)
		}
	} else {
		log.Println("JWT_SECRET not set, operator API disabled")
	}

	taskMetrics, err := metrics.NewTaskMetrics()
	if err != nil {
		log.Fatalf("Failed to initialize task metrics: %v", err)
	}
	orchestrationService.SetMetrics(taskMetrics)

	// Gateway layer
	worker := gateway.NewWorker(cfg.WorkerQueueLen, 4)
	gatewayHandler := gateway.NewHandler(
		orchestrationService,
		secrets,
		jwtManager,
		taskStore,
		taskMetrics,
		gateway.NewNotifier(),
		worker,
		cfg.BackgroundDispatch,
	)
	taskStream := gateway.NewTaskStream(events)

	// Setup Gin router
	router := gin.Default()

	// Add structured JSON logging middleware
	router.Use(structuredLoggingMiddleware())

	// Health checks MUST be at the root for the WebService standard
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})

	router.GET("/ready", func(c *gin.Context) {
		if err := taskStore.Ping(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "not ready",
				"error":  "database connection failed",
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	// Task intake (shared-secret authenticated in the handler)
	router.POST("/handle_task", gatewayHandler.HandleTask)

	// Landing page
	router.StaticFile("/", "./web/index.html")

	// Swagger documentation (public)
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Operator API (requires JWT authentication)
	if jwtManager != nil {
		api := router.Group("/api")
		api.POST("/auth/token", gatewayHandler.IssueToken)

		protected := api.Group("")
		protected.Use(auth.RequireAuth(jwtManager))
		protected.GET("/tasks", gatewayHandler.ListTasks)
		protected.GET("/ws/tasks/:id", taskStream.StreamTask)
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 10 * time.Minute, // synchronous tasks span generation and convergence polling
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("Starting Pagesmith API server on port %s\n", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	// Drain in-flight background tasks before exit
	worker.Shutdown(ctx)

	log.Println("Server exited")
}

// initTracer initializes OpenTelemetry tracing
func initTracer() error {
	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return fmt.Errorf("failed to create stdout exporter: %w", err)
	}

	tp := trace.NewTracerProvider(
		trace.WithBatcher(exporter),
	)

	otel.SetTracerProvider(tp)

	return nil
}

// structuredLoggingMiddleware provides structured JSON logging for all requests
func structuredLoggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		latency := time.Since(start)

		subject, _ := c.Get(auth.SubjectKey)

		logEntry := map[string]interface{}{
			"timestamp":  time.Now().UTC().Format(time.RFC3339),
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"status":     c.Writer.Status(),
			"latency_ms": latency.Milliseconds(),
			"client_ip":  c.ClientIP(),
			"user_agent": c.Request.UserAgent(),
		}

		if subject != nil {
			logEntry["subject"] = subject
		}

		if len(c.Errors) > 0 {
			logEntry["errors"] = c.Errors.String()
		}

		logJSON, _ := json.Marshal(logEntry)
		log.Println(string(logJSON))
	}
}
