package main

import (
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/asciimotion/api/internal/admission"
	"github.com/asciimotion/api/internal/config"
	"github.com/asciimotion/api/internal/handler"
	"github.com/asciimotion/api/internal/middleware"
	"github.com/asciimotion/api/internal/registry"
	"github.com/asciimotion/api/internal/service"
	"github.com/asciimotion/api/internal/source"
	ws "github.com/asciimotion/api/internal/websocket"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize validator
	validate := validator.New()

	// Initialize WebSocket hub
	hub := ws.NewHub()
	go hub.Run()

	// Shared registry and admission controller, built once and injected by
	// reference everywhere.
	reg := registry.New(registry.Config{
		MaxConcurrentJobs: cfg.Convert.MaxConcurrentJobs,
		TTL:               time.Duration(cfg.Convert.JobTTLMinutes) * time.Minute,
		SweepInterval:     time.Duration(cfg.Convert.SweepMinutes) * time.Minute,
	})
	defer reg.Close()

	adm := admission.New(admission.Config{
		MaxConcurrentJobs:  cfg.Convert.MaxConcurrentJobs,
		MaxInputBytes:      int64(cfg.Convert.MaxUploadMB) * 1024 * 1024,
		MemoryCeilingBytes: int64(cfg.Admission.MemoryCeilingMB) * 1024 * 1024,
		MemoryMultiplier:   cfg.Admission.MemoryMultiplier,
		MaxJobDuration:     time.Duration(cfg.Admission.MaxJobMinutes) * time.Minute,
		SampleInterval:     time.Duration(cfg.Admission.SampleSeconds) * time.Second,
		SnapshotWindow:     time.Duration(cfg.Admission.SnapshotWindowMins) * time.Minute,
	})
	defer adm.Close()

	// Frame source: ffmpeg when available, synthetic fallback otherwise
	var frameSource source.FrameSource
	if cfg.Convert.FFmpegEnabled {
		ffmpegSource, err := source.NewFFmpegSource()
		if err != nil {
			log.Printf("Warning: %v, using synthetic frame source", err)
			frameSource = &source.SyntheticSource{}
		} else {
			frameSource = ffmpegSource
		}
	} else {
		log.Println("Info: ffmpeg disabled, using synthetic frame source")
		frameSource = &source.SyntheticSource{}
	}

	// Initialize service
	convertService := service.NewConvertService(reg, adm, frameSource, hub)
	defer convertService.Close()

	// Initialize handlers
	convertHandler := handler.NewConvertHandler(convertService, validate)
	healthHandler := handler.NewHealthHandler(convertService)

	// Initialize middleware
	var apiAuthMiddleware fiber.Handler
	if cfg.Gateway.Enabled {
		log.Println("Info: Gateway mode enabled, using header-based auth")
		apiAuthMiddleware = middleware.GatewayAuthMiddleware()
	} else {
		apiAuthMiddleware = middleware.NewAuthMiddleware(cfg.JWT.Secret).Authenticate()
	}
	rateLimiter := middleware.NewRateLimiter()

	// Initialize Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler,
		BodyLimit:    (cfg.Convert.MaxUploadMB + 1) * 1024 * 1024,
	})

	// Global middleware
	app.Use(recover.New())
	isDebug := strings.EqualFold(cfg.Server.LogLevel, "debug")
	logFormat := "[${time}] ${status} - ${latency} ${method} ${path}\n"
	if isDebug {
		logFormat = "[${time}] ${status} - ${latency} ${method} ${path} ${queryParams}\n"
		log.Println("Debug logging enabled")
	}
	app.Use(logger.New(logger.Config{
		Format: logFormat,
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))

	// Base URL - timestamp
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"timestamp": time.Now().Unix(),
		})
	})

	// Health check
	app.Get("/health", healthHandler.Health)

	// API routes
	api := app.Group("/api", apiAuthMiddleware)

	convert := api.Group("/convert")
	convert.Post("/start", rateLimiter.ConvertLimit(cfg.RateLimit.ConvertPerHour), convertHandler.Start)
	convert.Get("/status/:jobId", convertHandler.Status)
	convert.Get("/result/:jobId", convertHandler.Result)
	convert.Post("/cancel/:jobId", convertHandler.Cancel)
	convert.Get("/download/:jobId", rateLimiter.DownloadLimit(cfg.RateLimit.DownloadPerHour), convertHandler.Download)
	convert.Get("/stats", healthHandler.Stats)

	// WebSocket routes
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/jobs/:jobId", websocket.New(func(c *websocket.Conn) {
		jobID := c.Params("jobId")
		hub.HandleConnection(c, jobID)
	}))

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Println("Shutting down server...")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
	}()

	// Start server
	addr := ":" + cfg.Server.Port
	log.Printf("Server starting on %s", addr)
	if err := app.Listen(addr); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	return c.Status(code).JSON(fiber.Map{
		"error": fiber.Map{
			"code":    "SERVICE_ERROR",
			"message": message,
		},
	})
}
