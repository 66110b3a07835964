package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"lostfound-chat/internal/auth"
	"lostfound-chat/internal/cache"
	"lostfound-chat/internal/config"
	"lostfound-chat/internal/db"
	"lostfound-chat/internal/docstore"
	"lostfound-chat/internal/handlers"
	"lostfound-chat/internal/logger"
	"lostfound-chat/internal/messaging"
	"lostfound-chat/internal/middleware"
	"lostfound-chat/internal/observability"
	"lostfound-chat/internal/rabbitmq"
	"lostfound-chat/internal/repositories"
	"lostfound-chat/internal/telemetry"
	"lostfound-chat/internal/ws"
)

const serviceName = "lostfound-chat"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr := logger.New(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format}).
		With(zap.String("service", serviceName), zap.String("env", cfg.App.Env))
	defer func() { _ = logr.Sync() }()

	ctx := context.Background()
	tp, err := telemetry.NewTracerProvider(ctx, telemetry.TracingConfig{
		Enabled:       cfg.Telemetry.Enabled,
		Endpoint:      cfg.Telemetry.Endpoint,
		SamplingRatio: cfg.Telemetry.SamplingRatio,
		ServiceName:   serviceName,
		Environment:   cfg.App.Env,
	}, logr.Named("tracing"))
	if err != nil {
		logr.Fatal("failed to start tracing", zap.Error(err))
	}

	store, closeStore, err := openStore(ctx, cfg.Docstore, logr.Named("docstore"))
	if err != nil {
		logr.Fatal("failed to open docstore", zap.String("driver", cfg.Docstore.Driver), zap.Error(err))
	}

	publisher := rabbitmq.NewPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange, logr.Named("rabbitmq"))
	observability.SetPublisher(publisher)
	logr.Info("event publisher ready",
		zap.String("mode", rabbitmq.PublisherMode(publisher)),
		zap.String("noop_reason", rabbitmq.PublisherNoopReason(publisher)))
	audit := telemetry.NewAuditEmitter(publisher, "audit_logs", serviceName, cfg.App.Env, logr.Named("audit"))

	chatRepo := repositories.NewChatRepo(store, logr.Named("chats"))
	messageRepo := repositories.NewMessageRepo(store, logr.Named("messages"))
	var users repositories.UserRepository = repositories.NewUserRepo(store)
	if cfg.Redis.Addr != "" {
		redisClient := cache.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		defer redisClient.Close()
		users = cache.NewProfileCache(users, redisClient, cfg.Redis.TTL, logr.Named("profile_cache"))
		logr.Info("profile cache enabled", zap.String("addr", cfg.Redis.Addr), zap.Duration("ttl", cfg.Redis.TTL))
	}

	directory := messaging.NewDirectory(chatRepo, logr.Named("directory"))
	chatList := messaging.NewChatList(chatRepo, users, logr.Named("chat_list"))
	stream := messaging.NewStream(chatRepo, messageRepo, logr.Named("stream"))

	validator := auth.NewValidator(cfg.JWT.Secret, cfg.JWT.Issuer)
	hub := ws.NewHub(logr.Named("ws"))

	chatHandler := handlers.NewChatHandler(directory, chatList, stream, audit, logr.Named("http"))
	userHandler := handlers.NewUserHandler(users, audit, logr.Named("http"))
	chatListWS := ws.NewChatListWebSocketHandler(hub, chatList, validator)
	chatWS := ws.NewChatWebSocketHandler(hub, stream, validator)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(
		gin.Recovery(),
		otelgin.Middleware(serviceName),
		observability.RequestIDMiddleware(),
		observability.HTTPMetricsMiddleware(),
		logger.GinMiddleware(logr.Named("access")),
	)

	router.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	handlers.RegisterDebugRoutes(router, handlers.DebugOptions{
		Audit:         audit,
		Feeds:         hub,
		PublisherMode: rabbitmq.PublisherMode(publisher),
	}, cfg.App.DebugRoutes)

	authMiddleware := middleware.AuthMiddleware(validator)

	router.GET("/chats", authMiddleware, chatHandler.ListChats)
	router.POST("/chats/start", authMiddleware, chatHandler.StartChat)
	router.GET("/chats/:chat_id/messages", authMiddleware, chatHandler.GetChatMessages)
	router.POST("/chats/:chat_id/messages", authMiddleware, chatHandler.PostChatMessage)

	router.GET("/users/me", authMiddleware, userHandler.GetMe)
	router.PUT("/users/me", authMiddleware, userHandler.PutMe)

	// Feeds authenticate during the handshake.
	router.GET("/ws/chats", chatListWS.Handle)
	router.GET("/ws/chats/:chat_id", chatWS.Handle)

	srv := &http.Server{
		Addr:              ":" + cfg.App.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Info("chat service listening", zap.String("addr", srv.Addr), zap.String("docstore", cfg.Docstore.Driver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Fatal("server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("http shutdown", zap.Error(err))
	}
	hub.CloseAll()
	closeStore()
	if err := publisher.Close(); err != nil {
		logr.Warn("publisher close", zap.Error(err))
	}
	if err := tp.Shutdown(shutdownCtx); err != nil {
		logr.Warn("tracer shutdown", zap.Error(err))
	}
}

// openStore opens the configured docstore driver and returns a func that
// releases everything it opened.
func openStore(ctx context.Context, cfg config.DocstoreConfig, logr *zap.Logger) (docstore.Store, func(), error) {
	switch cfg.Driver {
	case config.DriverMemory:
		store := docstore.NewMemoryStore()
		logr.Warn("using in-memory docstore; data is lost on restart")
		return store, func() { _ = store.Close() }, nil
	case config.DriverPostgres:
		conn, err := db.Connect(cfg.DSN, logr)
		if err != nil {
			return nil, nil, err
		}
		store, err := docstore.OpenPostgres(conn, cfg.DSN, logr)
		if err != nil {
			conn.Close()
			return nil, nil, err
		}
		return store, func() {
			_ = store.Close()
			_ = conn.Close()
		}, nil
	case config.DriverFirestore:
		store, err := docstore.OpenFirestore(ctx, cfg.ProjectID, cfg.CredentialsFile)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { _ = store.Close() }, nil
	}
	return nil, nil, fmt.Errorf("%w: %q", config.ErrUnknownDriver, cfg.Driver)
}
