package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/walletd/transfer-service/internal/api"
	"github.com/walletd/transfer-service/internal/config"
	"github.com/walletd/transfer-service/internal/db"
	"github.com/walletd/transfer-service/internal/domain"
	"github.com/walletd/transfer-service/internal/events"
	"github.com/walletd/transfer-service/internal/money"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	ctx := context.Background()

	// Initialize database connection pool
	pool, err := db.NewPool(ctx, cfg.Database.URL)
	if err != nil {
		log.Fatalf("failed to create database pool: %v", err)
	}
	defer pool.Close()
	log.Println("database connection pool initialized")

	// Initialize RabbitMQ publisher. The service stays up without the broker;
	// notifications are best-effort by design.
	var publisher domain.NotificationPublisher
	rabbitPublisher, err := events.NewRabbitMQPublisher(cfg.RabbitMQ.URL, cfg.RabbitMQ.Exchange)
	if err != nil {
		log.Printf("warning: RabbitMQ unavailable, transfer notifications disabled: %v", err)
	} else {
		defer rabbitPublisher.Close()
		publisher = rabbitPublisher
	}

	// Create repositories
	accountRepo := db.NewAccountRepository(pool.Pool)
	transactionRepo := db.NewTransactionRepository(pool.Pool)
	txManager := db.NewTransactionManager(pool.Pool)

	maxAmount, err := money.FromDecimal(cfg.Transfer.MaxAmount)
	if err != nil {
		log.Fatalf("invalid TRANSFER_MAX_AMOUNT: %v", err)
	}

	// Create domain service
	transferService := domain.NewTransferService(
		accountRepo,
		transactionRepo,
		txManager,
		publisher,
		domain.TransferConfig{
			MaxAmount:         maxAmount,
			CommissionPercent: cfg.Transfer.CommissionPercent,
		},
	)
	log.Println("domain services initialized")

	// Create HTTP server
	server := api.NewServer(transferService)
	httpServer := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: server.Routes(),
	}

	// Start server in a goroutine
	go func() {
		log.Printf("transfer-service HTTP server starting on :%s", cfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("HTTP server failed: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("shutting down HTTP server...")
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}
	log.Println("HTTP server stopped")
}
