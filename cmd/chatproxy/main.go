package main

import (
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/nihinconnect/chatd/internal/proxy"
	"go.uber.org/zap"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	target := os.Getenv("API_BASE_URL")
	if target == "" {
		log.Fatal("API_BASE_URL is required")
	}
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	proxy.New(target, logger).Register(e)

	logger.Info("proxy listening", zap.String("port", port), zap.String("target", target))
	if err := e.Start(":" + port); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}
