package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"ticket-runners/internal/auth"
	"ticket-runners/internal/config"
	"ticket-runners/internal/logger"
	handlers "ticket-runners/internal/payment/handler"
	"ticket-runners/internal/payment/storage"
)

func main() {
	log := logger.NewLogger()
	defer log.Close()

	log.Info("APP", "Starting Payment Gateway initialization")

	if err := godotenv.Load(); err != nil {
		log.Warn("CONFIG", ".env file not found, using environment variables")
	}

	cfg := config.Load()

	store, err := storage.NewPostgreSQLStore(cfg.Database, log)
	if err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Payment outcome storage initialization failed: %v", err))
	}
	defer store.Close()

	redisClient, err := auth.InitializeTokenCache(cfg.Redis.Addr, log)
	if err != nil {
		log.Fatal("AUTH", fmt.Sprintf("Token cache initialization failed: %v", err))
	}
	defer redisClient.Close()

	tokenClient := auth.NewServiceTokenClient(
		cfg.Auth.OIDCIssuer,
		cfg.Auth.ClientID,
		cfg.Auth.ClientSecret,
		auth.NewRedisTokenCache(redisClient),
		log,
	)
	ownership := handlers.NewOwnershipClient(cfg.Gateway.OwnershipBaseURL, tokenClient, log)

	handler := handlers.NewGatewayHandler(store, ownership, cfg.Stripe.WebhookSecret, log)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	handler.Routes(router)

	server := &http.Server{
		Addr:         cfg.Gateway.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	stopRetry := make(chan struct{})
	go handler.RetryPending(time.Minute, stopRetry)

	go func() {
		log.Info("HTTP", fmt.Sprintf("🚀 Payment Gateway running on %s", cfg.Gateway.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP", fmt.Sprintf("HTTP server error: %v", err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	log.Info("APP", "Gateway started successfully, waiting for shutdown signal")
	<-stop

	log.Info("APP", "Shutdown signal received, initiating graceful shutdown")
	close(stopRetry)
	ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctxShutdown); err != nil {
		log.Error("HTTP", fmt.Sprintf("Server Shutdown Failed: %v", err))
	} else {
		log.Info("HTTP", "✅ Payment Gateway shutdown complete")
	}
}
