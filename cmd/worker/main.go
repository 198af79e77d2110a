package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"backend/internal/database"
	"backend/internal/events"
	"backend/internal/repository"
	"backend/internal/service"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// The worker consumes order lifecycle events and reconciles them against the
// inventory ledger. It runs separately from the HTTP API so event backlog
// cannot starve request handling.
func main() {
	if err := godotenv.Load("configs/.env"); err != nil {
		log.Println("No configs/.env file found or error loading it")
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dsn := buildDSN()
	db, err := database.NewConnection(dsn)
	if err != nil {
		log.Fatalf("Database connection failed: %v", err)
	}
	logger.Info("Connected to PostgreSQL successfully")

	brokers := strings.Split(getenv("KAFKA_BROKERS", "localhost:9092"), ",")
	topic := getenv("KAFKA_INVENTORY_TOPIC", "inventory.events")
	groupID := getenv("KAFKA_GROUP_ID", "inventory-worker")

	publisher := events.NewKafkaPublisher(brokers, topic, nil, logger)
	defer publisher.Close()

	lotRepo := repository.NewLotRepository(db)
	movementRepo := repository.NewMovementRepository(db)
	ledgerRepo := repository.NewOrderEventRepository(db)
	txManager := repository.NewTransactionManager(db)

	reservationService := service.NewReservationService(
		lotRepo, movementRepo, ledgerRepo, txManager, publisher, logger,
	)

	consumer := events.NewConsumer(brokers, groupID, reservationService, logger)
	if err := consumer.Run(ctx); err != nil {
		logger.Error("Consumer stopped with error", zap.Error(err))
	}

	logger.Info("Worker shut down")
}

func buildDSN() string {
	host := getenv("DB_HOST", "localhost")
	port := getenv("DB_PORT", "5432")
	user := getenv("DB_USER", "postgres")
	password := getenv("DB_PASSWORD", "postgres")
	name := getenv("DB_NAME", "postgres")
	sslMode := getenv("DB_SSLMODE", "disable")

	return "postgres://" + user + ":" + password + "@" + host + ":" + port + "/" + name + "?sslmode=" + sslMode
}

func getenv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
