package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "realtime_chat_service/docs"
	"realtime_chat_service/internal/chat/app"
	"realtime_chat_service/internal/chat/domain"
	"realtime_chat_service/internal/chat/repository"
	"realtime_chat_service/internal/chat/router"
	"realtime_chat_service/pkg/config"
	"realtime_chat_service/pkg/database"
	"realtime_chat_service/pkg/logger"
	testtool "realtime_chat_service/pkg/test_tool"
	"realtime_chat_service/pkg/token"

	"github.com/go-redis/redis/v8"
	"github.com/gofiber/fiber/v2"
	fiber_log "github.com/gofiber/fiber/v2/middleware/logger"
	"go.uber.org/zap"
)

func main() {
	logger.Log = logger.Initialize(config.EnvConfig.ChatService, config.EnvConfig.ChatServiceLogPath)
	defer logger.Log.Sync()

	cfg := config.LoadConfig[config.Chat](config.EnvConfig.ChatService, config.EnvConfig.ChatServiceYAMLPath)
	policy := cfg.Policy.WithDefaults()
	token.SetSecret(cfg.JWTSecret)
	if !config.IsProduction() {
		logger.Log.SetDebugMode(true)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1. Mongo (訊息)
	uri := fmt.Sprintf("mongodb://%s:%s@%s:%d", cfg.MongoSQL.User, cfg.MongoSQL.Password, cfg.MongoSQL.Host, cfg.MongoSQL.Port)
	mongo, err := database.NewMongoDB(ctx,
		database.Connection{
			ConnectStr:    uri,
			RetryCount:    cfg.MongoSQL.RetryCount,
			RetryInterval: time.Duration(cfg.MongoSQL.RetryInterval) * time.Second,
		},
		cfg.MongoSQL.Database)
	if err != nil {
		logger.Log.Fatal(
			"Unable to connect to mongoDB database after retries",
			zap.String("address", fmt.Sprintf("[%s:%d]", cfg.MongoSQL.Host, cfg.MongoSQL.Port)),
			zap.Error(err),
		)
	}
	defer mongo.Close(context.Background())

	msgRepo := repository.NewMongoChatMessageRepository(mongo.Database)
	if err := msgRepo.EnsureIndexes(ctx); err != nil {
		logger.Log.Fatal("ensure message indexes err", zap.Error(err))
	}

	// 2. PostgreSQL (聊天室 gorm, profile pgx)
	pgConn := database.Connection{
		ConnectStr: fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
			cfg.PostgreSQL.User, cfg.PostgreSQL.Password, cfg.PostgreSQL.Host, cfg.PostgreSQL.Port, cfg.PostgreSQL.Database),
		RetryCount:    cfg.PostgreSQL.RetryCount,
		RetryInterval: time.Duration(cfg.PostgreSQL.RetryInterval) * time.Second,
	}
	gormDB, err := database.NewPGConnection(pgConn)
	if err != nil {
		logger.Log.Fatal("Unable to connect to postgreSQL (gorm)", zap.String("host", cfg.PostgreSQL.Host), zap.Error(err))
	}
	roomRepo := repository.NewGormRoomRepository(gormDB)
	if err := roomRepo.AutoMigrate(); err != nil {
		logger.Log.Fatal("room migrate err", zap.Error(err))
	}

	pool, err := database.NewDatabaseConnection(ctx, pgConn)
	if err != nil {
		logger.Log.Fatal("Unable to connect to postgreSQL (pgx)", zap.String("host", cfg.PostgreSQL.Host), zap.Error(err))
	}
	defer pool.Close()
	profileRepo := repository.NewProfileRepository(pool)
	if err := profileRepo.Migrate(ctx); err != nil {
		logger.Log.Fatal("profile migrate err", zap.Error(err))
	}

	// 3. Redis (heartbeat gate, 跨節點 pub/sub)
	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient, err = database.NewRedisStandaloneClient(cfg.Redis.Addr, cfg.Redis.RedisDB)
	} else {
		masterName, sentinel := config.GetRedisSetting()
		redisClient, err = database.NewRedisClient(masterName, sentinel, cfg.Redis.RedisDB)
	}
	if err != nil {
		logger.Log.Fatal(fmt.Sprintf("connect redis err : %v", err))
	}
	defer redisClient.Close()

	slots := database.NewRedisRepository[int64](redisClient)
	gate := repository.NewRedisHeartbeatGate(slots)
	sendGate := repository.NewRedisSendGate(slots)
	bridge := repository.NewRedisPubSub(redisClient)

	// 4. Hub
	hubOpts := []app.HubOption{
		app.WithReorderWindow(policy.ReorderWindow),
		app.WithSink("redis", bridge),
	}
	if len(cfg.Kafka.Brokers) > 0 {
		writer, err := database.NewKafkaWriterWithRetry(ctx, database.KafkaConnection{
			Brokers:       cfg.Kafka.Brokers,
			Topic:         cfg.Kafka.Topic,
			RetryCount:    cfg.Kafka.RetryCount,
			RetryInterval: time.Duration(cfg.Kafka.RetryInterval) * time.Second,
		})
		if err != nil {
			logger.Log.Warn("kafka disabled", zap.Error(err))
		} else {
			sink := repository.NewKafkaEventSink(writer)
			defer sink.Close()
			hubOpts = append(hubOpts, app.WithSink("kafka", sink))
		}
	}
	hub := app.NewHub(hubOpts...)
	defer hub.Close()

	// 其他節點送來的事件只在本地投遞
	if err := bridge.Subscribe(ctx, domain.TopicPattern, func(ev domain.Event) {
		if ev.Origin == hub.NodeID() {
			return
		}
		hub.Deliver(ev)
	}); err != nil {
		logger.Log.Fatal("redis subscribe err", zap.Error(err))
	}

	limiter := app.NewSendLimiter(policy.SendInterval, sendGate)
	go limiter.Run(ctx, time.Minute)

	// 5. UseCases
	roomUC := app.NewRoomUseCase(roomRepo, profileRepo, msgRepo, hub, policy)
	messageUC := app.NewMessageUseCase(roomRepo, msgRepo, profileRepo, hub, limiter, policy)
	presenceUC := app.NewPresenceUseCase(profileRepo, roomRepo, gate, policy)

	if cfg.Pprof {
		testtool.StartPprof()
	}

	// 6. Fiber
	r := fiber.New()
	file, err := os.OpenFile(fmt.Sprintf("%s/access.log", config.EnvConfig.ChatServiceLogPath), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0666)
	if err != nil {
		log.Fatalf("Failed to open log file: %v", err)
	}
	defer file.Close()

	r.Use(fiber_log.New(fiber_log.Config{
		Output: file,
	}))

	router.RegisterRoutes(ctx, r,
		app.NewChatWebsocketHandler(roomUC, messageUC, presenceUC, hub),
		app.NewChatRESTHandler(roomUC, messageUC, presenceUC),
	)

	go func() {
		<-ctx.Done()
		logger.Log.Info("shutting down chat service")
		if err := r.ShutdownWithTimeout(10 * time.Second); err != nil {
			logger.Log.Error("fiber shutdown err", zap.Error(err))
		}
	}()

	port := ":" + cfg.Port
	logger.Log.Info("Chat Service listening", zap.String("port", port))
	if err := r.Listen(port); err != nil {
		logger.Log.Fatal("Failed to start Fiber", zap.Error(err))
	}
}
