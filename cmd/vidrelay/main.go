package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tobyv/vidrelay/config"
	"github.com/tobyv/vidrelay/internal/auth"
	"github.com/tobyv/vidrelay/internal/cache"
	"github.com/tobyv/vidrelay/internal/chat"
	"github.com/tobyv/vidrelay/internal/handlers"
	"github.com/tobyv/vidrelay/internal/middleware"
	"github.com/tobyv/vidrelay/internal/relay"
	"github.com/tobyv/vidrelay/internal/store"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load()
	if err != nil {
		log.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	db, err := store.Open(cfg.DataDir)
	if err != nil {
		log.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	redisCache, err := cache.Connect(ctx, cfg.Redis, log)
	if err != nil {
		log.Error("failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	defer redisCache.Close()
	log.Info("redis connection established")

	users := store.NewUserRepository(db, log)
	messages := store.NewMessageRepository(db, log)
	requests := store.NewFriendRequestRepository(db, log)

	registry := relay.NewRegistry()
	hub := relay.NewHub(registry, log)

	tokens := auth.NewTokenIssuer(cfg.JWTSecret, cfg.TokenTTL)
	chatService := chat.NewService(messages, hub, log)

	authHandler := handlers.NewAuthHandler(users, tokens, log)
	chatHandler := handlers.NewChatHandler(chatService, log)
	usersHandler := handlers.NewUsersHandler(users, requests, redisCache, hub, log)
	relayHandler := handlers.NewRelayHandler(hub, log)

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()
	router.Use(handlers.OriginFilter(cfg.AllowedOrigins))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	jwtAuth := middleware.JWTAuth(tokens)

	api := router.Group("/api")
	{
		authGroup := api.Group("/auth")
		authGroup.Use(handlers.RateLimit(redisCache, handlers.RateLimitOptions{
			Max: 10, Window: time.Minute, KeyPrefix: "rl:auth:",
		}))
		authGroup.POST("/signup", authHandler.Signup)
		authGroup.POST("/login", authHandler.Login)

		chatGroup := api.Group("/chat", jwtAuth)
		chatGroup.Use(handlers.RateLimit(redisCache, handlers.RateLimitOptions{
			Max: 60, Window: time.Minute, KeyPrefix: "rl:chat:", ByUser: true,
		}))
		chatGroup.POST("/send/:id", chatHandler.Send)
		chatGroup.GET("/:id", chatHandler.History)
		chatGroup.DELETE("/:id", chatHandler.Delete)

		usersGroup := api.Group("/users", jwtAuth)
		usersGroup.GET("/friends", usersHandler.Friends)
		usersGroup.GET("/recommended", usersHandler.Recommended)
		usersGroup.GET("/friend-requests", usersHandler.FriendRequests)
		usersGroup.GET("/outgoing-requests", usersHandler.OutgoingRequests)
		usersGroup.POST("/friend-request/:id", usersHandler.SendFriendRequest)
		usersGroup.PUT("/friend-request/:id/accept", usersHandler.AcceptFriendRequest)
	}

	router.GET("/ws", jwtAuth, relayHandler.Connect)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		log.Info("starting relay server", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("server shutdown error", "error", err)
	}
	hub.Close()
}
