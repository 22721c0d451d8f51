package main

import (
	"context"
	"fmt"
	"os"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/rs/zerolog"

	"campus-backend/internal/admin"
	"campus-backend/internal/auth"
	"campus-backend/internal/catalog"
	"campus-backend/internal/config"
	"campus-backend/internal/engine"
	"campus-backend/internal/metadata"
	"campus-backend/internal/moderation"
	"campus-backend/internal/storage"
	"campus-backend/internal/store"
)

func main() {
	ctx := context.Background()
	log := zerolog.New(os.Stderr).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	log.Info().Int("port", cfg.Server.Port).Str("driver", cfg.Database.Driver).Msg("config loaded")

	db, err := store.New(ctx, cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("connect database")
	}
	defer db.Close()
	log.Info().Msg("database connected")

	reg := metadata.NewRegistry()
	if err := catalog.Load(reg); err != nil {
		log.Fatal().Err(err).Msg("load catalog")
	}

	migrator := store.NewMigrator(db)
	if err := migrator.Bootstrap(ctx, reg); err != nil {
		log.Fatal().Err(err).Msg("migrate schema")
	}
	log.Info().Msg("schema ready")

	if err := catalog.Seed(ctx, db, cfg.Admin.Email, cfg.Admin.Password); err != nil {
		log.Fatal().Err(err).Msg("seed data")
	}

	adminResources := admin.BuildResources(reg)

	app := fiber.New(fiber.Config{
		ErrorHandler: engine.ErrorHandler(log),
	})
	app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))
	app.Use(logger.New(logger.Config{
		Format: "${time} ${status} ${method} ${path} ${latency}\n",
	}))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	// Auth routes stay outside the auth middleware.
	authHandler := auth.NewHandler(db, cfg.JWTSecret)
	auth.RegisterRoutes(app, authHandler)

	authMW := auth.Middleware(cfg.JWTSecret)
	reviewerMW := auth.RequireRole(auth.RoleReviewer)
	adminMW := auth.RequireRole(auth.RoleAdmin)

	adminHandler := admin.NewHandler(adminResources)
	admin.RegisterRoutes(app, adminHandler, authMW, adminMW)

	api := app.Group("/api", authMW)

	fileHandler := storage.NewHandler(db, storage.NewLocalStorage(cfg.Storage.LocalPath), cfg.Storage.MaxFileSize)
	storage.RegisterRoutes(api, fileHandler)

	engineHandler := engine.NewHandler(db, reg, log)
	api.Post("/guide/:id/views", engineHandler.CounterRoute("guide", "views"))

	workflow := moderation.NewWorkflow(db, reg)
	moderation.RegisterRoutes(api, moderation.NewHandler(workflow), reviewerMW)

	// Generic resource routes go last: ":resource" matches everything.
	engine.RegisterRoutes(api, engineHandler)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	log.Info().Str("addr", addr).Msg("starting server")
	if err := app.Listen(addr); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}
