package main

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"onboard-backend/internal/auth"
	"onboard-backend/internal/config"
	"onboard-backend/internal/engine"
	"onboard-backend/internal/notify"
	"onboard-backend/internal/schema"
	"onboard-backend/internal/storage"
	"onboard-backend/internal/store"
)

func main() {
	ctx := context.Background()

	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	log.Printf("Config loaded (port: %d, db: %s:%d/%s)", cfg.Server.Port, cfg.Database.Host, cfg.Database.Port, cfg.Database.Name)

	// 2. Connect to database
	db, err := store.New(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	log.Println("Database connected")

	// 3. Bootstrap system tables
	if err := db.Bootstrap(ctx); err != nil {
		log.Fatalf("Failed to bootstrap system tables: %v", err)
	}
	log.Println("System tables ready")

	// 4. Load form definitions into the registry
	reg := schema.NewRegistry()
	if err := schema.LoadAll(ctx, db.Pool, reg); err != nil {
		log.Printf("WARN: Failed to load form definitions: %v", err)
	}

	// 5. File storage for submission attachments
	fileStorage := storage.NewLocalStorage(cfg.Storage.LocalPath)

	// 6. Notifier and mailer
	notifier := notify.New(db, notify.NewMailer(cfg.SMTP))

	// 7. Create Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: errorHandler,
	})
	app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))
	app.Use(logger.New(logger.Config{
		Format: "${time} ${status} ${method} ${path} ${latency}\n",
	}))

	// 8. Prometheus metrics
	prometheus := fiberprometheus.New("onboard-backend")
	prometheus.RegisterAt(app, "/metrics")
	app.Use(prometheus.Middleware)

	// 9. Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	// 10. Auth routes and middleware
	authMW := auth.Middleware(cfg.JWTSecret)
	adminMW := auth.RequireAdmin()
	authHandler := auth.NewHandler(db, cfg.JWTSecret)
	auth.RegisterRoutes(app, authHandler, authMW, adminMW)

	// 11. Form, submission, assignment and file routes
	formHandler := engine.NewFormHandler(db, reg)
	submissionHandler := engine.NewSubmissionHandler(db, reg, fileStorage, notifier, cfg.Storage.MaxFileSize)
	assignmentHandler := engine.NewAssignmentHandler(db, reg, notifier)
	fileHandler := engine.NewFileHandler(db, fileStorage)
	engine.RegisterRoutes(app, formHandler, submissionHandler, assignmentHandler, fileHandler, authMW, adminMW)

	// 12. Start notification retry scheduler
	scheduler := notify.NewScheduler(db, notifier)
	scheduler.Start()
	defer scheduler.Stop()

	// 13. Start server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	log.Printf("Starting server on %s", addr)
	log.Fatal(app.Listen(addr))
}

func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		code = fiberErr.Code
	}

	var appErr *engine.AppError
	if errors.As(err, &appErr) {
		return c.Status(appErr.Status).JSON(engine.ErrorResponse{Error: appErr})
	}

	log.Printf("ERROR: %v", err)
	return c.Status(code).JSON(engine.ErrorResponse{
		Error: &engine.AppError{
			Code:    "INTERNAL_ERROR",
			Message: "Internal server error",
		},
	})
}
