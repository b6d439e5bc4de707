package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/Miv21/TaskManager/internal/cfg"
	"github.com/Miv21/TaskManager/internal/storage"
	"github.com/Miv21/TaskManager/internal/taskcard"
)

func main() {
	conf := cfg.LoadConfig()
	logger := log.New(os.Stdout, "[taskmanager] ", log.LstdFlags|log.Lmicroseconds)

	if len(conf.JWTSecret) < 32 {
		logger.Fatal("JWT_SECRET must be at least 32 characters long for security")
	}

	db := mustConnectDB(conf)
	sqlDB, err := db.DB()
	if err != nil {
		logger.Fatalf("failed to access sql DB: %v", err)
	}
	defer sqlDB.Close()

	// Таблица users принадлежит учётной подсистеме и здесь не мигрируется.
	if err := db.AutoMigrate(&taskcard.TaskCard{}, &taskcard.TaskResponse{}); err != nil {
		logger.Fatalf("failed to migrate schema: %v", err)
	}

	objectStorage, err := storage.NewMinioStorage(
		conf.MinioEndpoint,
		conf.MinioAccessKey,
		conf.MinioSecretKey,
		conf.MinioUseSSL,
		conf.MinioBucket,
		conf.MinioPublicBaseURL,
	)
	if err != nil {
		logger.Fatalf("failed to init minio: %v", err)
	}

	var orphans storage.OrphanRegistry
	if conf.MongoURI != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		mongoClient, err := mongo.Connect(ctx, options.Client().ApplyURI(conf.MongoURI))
		cancel()
		if err != nil {
			logger.Fatalf("failed to connect mongo: %v", err)
		}
		defer func() {
			if err := mongoClient.Disconnect(context.Background()); err != nil {
				logger.Printf("mongo disconnect error: %v", err)
			}
		}()
		orphans = storage.NewOrphanRegistry(
			mongoClient.Database(conf.MongoDatabase).Collection(conf.MongoCollection),
		)
	}

	var redisClient *redis.Client
	if conf.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     conf.RedisAddr,
			Password: conf.RedisPassword,
			DB:       0,
		})
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			logger.Fatalf("failed to connect redis: %v", err)
		}
	}

	var producer taskcard.EventProducer
	if brokers := splitCSV(conf.KafkaBrokers); len(brokers) > 0 && conf.KafkaTopic != "" {
		producer = taskcard.NewKafkaProducer(brokers, conf.KafkaTopic)
		defer producer.Close()
	}

	var auditor storage.CompensationAuditor
	if producer != nil {
		auditor = taskcard.NewCompensationAuditor(producer)
	}
	coordinator := storage.NewCoordinator(objectStorage, orphans, auditor, logger)

	var idem taskcard.IdempotencyStore
	if redisClient != nil {
		idem = taskcard.NewRedisIdempotencyStore(redisClient, 24*time.Hour)
	}

	repo := taskcard.NewRepository(db)
	service := taskcard.NewService(repo, coordinator, producer, idem, logger)
	handler := taskcard.NewHandler(service, []byte(conf.JWTSecret), conf.MaxFileSizeBytes, redisClient)

	httpServer := &http.Server{
		Addr:    ":" + pickPort(conf.HTTPPort, "8080"),
		Handler: applyHTTPMiddleware(handler.Routes(), conf),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)

	go func() {
		logger.Printf("HTTP server listening on %s", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		logger.Println("shutdown signal received")
	case err := <-errCh:
		logger.Printf("server error: %v", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Printf("http shutdown error: %v", err)
	}
	logger.Println("task manager stopped")
}

func mustConnectDB(conf cfg.Config) *gorm.DB {
	dsn := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		conf.DBHost,
		conf.DBPort,
		conf.DBUser,
		conf.DBPassword,
		conf.DBName,
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		log.Fatalf("failed to init sql DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(time.Hour)

	return db
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	var result []string
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" {
			result = append(result, part)
		}
	}
	return result
}

func applyHTTPMiddleware(handler http.Handler, conf cfg.Config) http.Handler {
	handler = taskcard.RequestSizeLimitMiddleware(conf.MaxFileSizeBytes + 1<<20)(handler)
	handler = taskcard.CORSMiddleware(conf.CORSAllowedOrigins)(handler)
	handler = taskcard.SecurityHeadersMiddleware(handler)
	return handler
}

func pickPort(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
