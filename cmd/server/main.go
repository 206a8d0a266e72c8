package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fulfillment-service/config"
	"fulfillment-service/internal/adapters"
	"fulfillment-service/internal/api"
	"fulfillment-service/internal/broker"
	"fulfillment-service/internal/inventory"
	"fulfillment-service/internal/redisclient"
	"fulfillment-service/internal/service"
	"fulfillment-service/internal/store"
	"fulfillment-service/internal/util"
	"fulfillment-service/internal/worker"

	"github.com/gin-gonic/gin"
)

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting fulfillment service")

	tp, err := util.InitTracer("fulfillment-service", cfg.Observ.JaegerEndpoint)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			log.Printf("Error shutting down tracer: %v", err)
		}
	}()

	db, err := store.NewStore(cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	log.Println("Database connected")

	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()
	log.Println("Redis connected")

	producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicFulfillment)
	defer producer.Close()
	log.Println("Kafka producer initialized")

	eventPublisher := broker.NewEventPublisher(producer)

	mode, err := inventory.ParseMode(cfg.Inventory.Mode)
	if err != nil {
		log.Fatalf("Invalid inventory mode: %v", err)
	}

	callTimeout := time.Duration(cfg.Adapters.CallTimeoutSeconds) * time.Second
	erpClient := adapters.NewERPClient(cfg.Adapters.ERPBaseURL, cfg.Adapters.ERPAPIKey, callTimeout)
	courierClient := adapters.NewCourierClient(cfg.Adapters.CourierBaseURL, cfg.Adapters.CourierAPIKey, callTimeout)
	paymentClient := adapters.NewPaymentClient(cfg.Adapters.PaymentBaseURL, cfg.Adapters.PaymentAPIKey, callTimeout)
	commerceClient := adapters.NewCommerceClient(cfg.Adapters.CommerceBaseURL, cfg.Adapters.CommerceAPIKey, callTimeout)

	allocator := inventory.NewAllocator(mode, cfg.Inventory.PrimaryStoreCode, db, db)
	stockKeeper := service.NewStockKeeper(mode, db, db, redisClient)
	splitEngine := service.NewSplitEngine(db, stockKeeper, allocator, eventPublisher)
	fulfillment := service.NewFulfillment(db, stockKeeper, erpClient, courierClient, paymentClient, commerceClient, eventPublisher)

	recomputer := inventory.NewRecomputer(allocator, db, redisClient)

	ctx := context.Background()
	if err := recomputer.Run(ctx); err != nil {
		log.Printf("Initial hybrid recompute failed: %v", err)
	}

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	go recomputer.Start(workerCtx, time.Duration(cfg.Inventory.RecomputeIntervalSeconds)*time.Second)

	stockSync := service.NewStockSync(db, erpClient)
	go stockSync.Start(workerCtx, time.Duration(cfg.Inventory.ERPSyncIntervalSeconds)*time.Second)

	orderConsumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicFulfillment, cfg.Kafka.ConsumerGroup)
	orderWorker := worker.NewOrderWorker(orderConsumer, splitEngine, commerceClient)
	go func() {
		if err := orderWorker.Start(workerCtx); err != nil {
			log.Printf("Order worker error: %v", err)
		}
	}()

	paymentConsumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicPayment, cfg.Kafka.ConsumerGroup)
	paymentWorker := worker.NewPaymentWorker(paymentConsumer, fulfillment)
	go func() {
		if err := paymentWorker.Start(workerCtx); err != nil {
			log.Printf("Payment worker error: %v", err)
		}
	}()

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.Default()
	webhookAuth := api.NewWebhookAuth(cfg.Adapters.CourierSharedSecret)
	handler := api.NewHandler(splitEngine, fulfillment, commerceClient, db, webhookAuth)
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		log.Printf("Starting HTTP server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	workerCancel()
	orderWorker.Stop()
	paymentWorker.Stop()

	log.Println("Server exited")
}
