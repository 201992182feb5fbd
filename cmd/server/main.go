package main

import (
	"fmt"
	"os"
	"os/signal"
	"server/internal/app"
	"server/internal/handlers"
	"server/internal/logger"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

func main() {
	log := logger.New("main")

	application, err := app.New()
	if err != nil {
		log.Er("failed to initialize application", err)
		os.Exit(1)
	}
	defer func() {
		if err := application.Close(); err != nil {
			log.Er("failed to close application", err)
		}
	}()

	fiberApp := fiber.New(fiber.Config{
		AppName: "vitally-server",
	})

	fiberApp.Use(recover.New())
	fiberApp.Use(cors.New(cors.Config{
		AllowOrigins:     application.Config.CorsOrigin,
		AllowMethods:     "GET,POST",
		AllowCredentials: true,
	}))

	if err := handlers.Router(fiberApp, application); err != nil {
		log.Er("failed to register routes", err)
		os.Exit(1)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Info("shutdown signal received")
		if err := fiberApp.Shutdown(); err != nil {
			log.Er("failed to shutdown server", err)
		}
	}()

	address := fmt.Sprintf(":%d", application.Config.Port)
	log.Info("starting server", "address", address)
	if err := fiberApp.Listen(address); err != nil {
		log.Er("server stopped", err)
		os.Exit(1)
	}

	log.Info("server shut down")
}
