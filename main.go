package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"odds-alert-service/config"
	"odds-alert-service/database"
	"odds-alert-service/notify"
	"odds-alert-service/oddsfeed"
	"odds-alert-service/repository"
	"odds-alert-service/services"
	"odds-alert-service/store"
	"odds-alert-service/web"
)

func main() {
	log.Println("Starting Odds Alert Service...")

	// 加载 .env (不存在时忽略)
	godotenv.Load()

	// 加载配置
	cfg := config.Load()

	// 连接数据库
	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	// 运行数据库迁移
	if err := database.Migrate(db); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	log.Println("Database connected and migrated")

	// 连接 Redis
	redisStore, err := store.NewRedisStore(cfg.RedisURL)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisStore.Close()

	log.Println("Redis connected")

	// 仓储层 (预警读取走 Redis 索引, 未命中回退数据库)
	repo := repository.NewPostgresRepository(db, redisStore)

	// 供应商客户端
	vendorClient := oddsfeed.NewClientWithConfig(oddsfeed.Config{
		BaseURL:  cfg.VendorAPIBaseURL,
		APIToken: cfg.VendorAPIToken,
	})

	// 创建WebSocket Hub
	wsHub := web.NewHub()
	go wsHub.Run()

	// Tick 发布器: WebSocket 始终启用, AMQP 按配置启用
	publishers := []services.TickPublisher{wsHub}
	if cfg.AMQPURL != "" {
		amqpPublisher, err := services.NewAMQPTickPublisher(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			log.Fatalf("Failed to connect AMQP publisher: %v", err)
		}
		defer amqpPublisher.Close()
		publishers = append(publishers, amqpPublisher)
	}

	// 采集流水线
	now := time.Now()
	bucket := services.NewTokenBucket(float64(cfg.RequestBurst), cfg.RequestsPerSecond, now)
	planner := services.NewRequestPlanner(redisStore, bucket, cfg.MaxEventsPerRequest)
	sink := services.NewIngestionSink(redisStore, cfg.OddsStreamMaxLen)

	ingestionWorker := services.NewIngestionWorker(cfg, vendorClient, redisStore, sink, planner, publishers)
	go ingestionWorker.Run()

	log.Println("Ingestion worker started")

	// 预警评估
	alertWorker := services.NewAlertWorker(redisStore, repo, "alert-worker-1")
	go alertWorker.Run(context.Background())

	log.Println("Alert worker started")

	// 通知投递
	router := notify.NewRouter()
	webhookSender := notify.NewWebhookSender(time.Duration(cfg.WebhookTimeout) * time.Second)
	router.Register(notify.ChannelWebhook, webhookSender)
	if cfg.MQTTBrokerURL != "" {
		mqttSender, err := notify.NewMQTTPushSender(cfg.MQTTBrokerURL, cfg.MQTTUsername, cfg.MQTTPassword)
		if err != nil {
			log.Printf("⚠️ MQTT push sender unavailable: %v", err)
		} else {
			defer mqttSender.Close()
			router.Register(notify.ChannelPush, mqttSender)
		}
	}

	notificationWorker := services.NewNotificationWorker(redisStore, repo, router, redisStore, "notify-worker-1")
	notificationWorker.SetMaxAttempts(cfg.NotifyMaxAttempts)
	notificationWorker.SetDedupeTTL(time.Duration(cfg.NotifyDedupeTTLHours) * time.Hour)
	go notificationWorker.Run(context.Background())

	log.Println("Notification worker started")

	// 启动Web服务器
	server := web.NewServer(cfg, db, redisStore, wsHub)
	go func() {
		if err := server.Start(); err != nil {
			log.Fatalf("Web server error: %v", err)
		}
	}()

	log.Printf("Web server started on port %s", cfg.Port)
	log.Println("Service is running. Press Ctrl+C to stop.")

	// 等待中断信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down service...")

	// 清理资源
	ingestionWorker.Stop()
	alertWorker.Stop()
	notificationWorker.Stop()
	server.Stop()

	log.Println("Service stopped")
}
