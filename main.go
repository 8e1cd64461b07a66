package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"golang.org/x/sync/errgroup"
	grpc "google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	authpb "syncup-service/pb/auth"

	"syncup-service/internal/config"
	"syncup-service/internal/db"
	"syncup-service/internal/dispatch"
	grpcclient "syncup-service/internal/grpc"
	"syncup-service/internal/handlers"
	"syncup-service/internal/middleware"
	"syncup-service/internal/observability"
	"syncup-service/internal/rabbitmq"
	"syncup-service/internal/repositories"
	"syncup-service/internal/telemetry"
	"syncup-service/internal/ws"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.Load()

	shutdownTracing, err := observability.InitTracing(ctx, "syncup-service", cfg.OTLPEndpoint, cfg.Environment)
	if err != nil {
		log.Fatalf("failed to init tracing: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(ctx); err != nil {
			log.Printf("tracing shutdown: %v", err)
		}
	}()

	database, err := db.Connect(cfg.DBDSN)
	if err != nil {
		log.Fatalf("failed to connect to db: %v", err)
	}
	defer database.Close()

	publisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange)
	defer publisher.Close()
	if mode := rabbitmq.PublisherMode(publisher); mode != "amqp" {
		log.Printf("event publisher mode=%s reason=%s", mode, rabbitmq.PublisherNoopReason(publisher))
	}
	audit := telemetry.NewAuditEmitter(publisher, "audit.chat", "syncup-service", cfg.Environment)

	authConn, err := grpc.Dial(cfg.AuthGRPCAddr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithStatsHandler(otelgrpc.NewClientHandler()),
		grpc.WithUnaryInterceptor(observability.GRPCClientMetricsUnaryInterceptor()),
	)
	if err != nil {
		log.Fatalf("failed to connect to auth grpc: %v", err)
	}
	defer authConn.Close()
	authClient := grpcclient.NewAuthClient(authpb.NewAuthServiceClient(authConn))

	userRepo := repositories.NewUserRepo(database)
	chatRepo := repositories.NewChatRepo(database)
	messageRepo := repositories.NewMessageRepo(database)

	hub := ws.NewHub()
	presence := ws.NewPresenceTracker(hub, userRepo)
	dispatcher := dispatch.New(hub)

	chatHandler := handlers.NewChatHandler(chatRepo, userRepo, messageRepo, dispatcher, audit)
	messageHandler := handlers.NewMessageHandler(chatRepo, messageRepo, userRepo, dispatcher, audit)
	userHandler := handlers.NewUserHandler(userRepo)
	wsHandler := ws.NewHandler(hub, presence, userRepo, authClient, publisher)

	router := gin.Default()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("syncup-service"))
	router.Use(observability.HTTPMetricsMiddleware())

	authMiddleware := middleware.AuthMiddleware(authClient)

	router.GET("/chats", authMiddleware, chatHandler.ListChats)
	router.GET("/chats/:chat_id", authMiddleware, chatHandler.GetChat)
	router.POST("/chats/direct", authMiddleware, chatHandler.CreateDirectChat)
	router.POST("/chats/group", authMiddleware, chatHandler.CreateGroupChat)
	router.PATCH("/chats/:chat_id/name", authMiddleware, chatHandler.RenameGroup)
	router.PATCH("/chats/:chat_id/avatar", authMiddleware, chatHandler.UpdateGroupAvatar)
	router.POST("/chats/:chat_id/members", authMiddleware, chatHandler.AddGroupMembers)
	router.DELETE("/chats/:chat_id/members/:user_id", authMiddleware, chatHandler.RemoveGroupMember)
	router.DELETE("/chats/:chat_id", authMiddleware, chatHandler.DeleteChat)

	router.GET("/messages/:chat_id", authMiddleware, messageHandler.ListMessages)
	router.POST("/messages/:chat_id", authMiddleware, messageHandler.SendMessage)
	router.POST("/messages/:chat_id/read", authMiddleware, messageHandler.MarkRead)
	router.DELETE("/messages/item/:message_id", authMiddleware, messageHandler.DeleteMessage)
	router.DELETE("/messages/:chat_id/all", authMiddleware, messageHandler.ClearChat)
	router.DELETE("/messages/:chat_id/me", authMiddleware, messageHandler.ClearChatForMe)
	router.DELETE("/messages/clear/all", authMiddleware, messageHandler.ClearAll)
	router.DELETE("/messages/groups/clear/all", authMiddleware, messageHandler.ClearAllGroups)

	router.GET("/users", authMiddleware, userHandler.ListUsers)

	router.GET("/ws", wsHandler.Handle)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	handlers.RegisterDebugRoutes(router, audit, cfg.Debug)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		log.Printf("listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
