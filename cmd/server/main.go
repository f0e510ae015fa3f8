package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"livechat/internal/config"
	"livechat/internal/db"
	apihttp "livechat/internal/http"
	"livechat/internal/realtime"
	"livechat/internal/repository"
	"livechat/internal/service"
)

func main() {
	ctx := context.Background()

	if err := godotenv.Load(); err != nil {
		log.Printf("warning: loading .env: %v", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		panic(err)
	}

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		logger.Fatal("db connect", zap.Error(err))
	}
	defer pool.Close()

	ctxPing, cancelPing := context.WithTimeout(ctx, 5*time.Second)
	if err := db.Ping(ctxPing, pool); err != nil {
		cancelPing()
		logger.Fatal("db ping", zap.Error(err))
	}
	cancelPing()

	sessionRepo := repository.NewPgSessionRepository(pool)
	messageRepo := repository.NewPgMessageRepository(pool)

	// Sin Redis el canal queda dentro del proceso: valido para una sola
	// instancia del relay, que es el alcance de este diseño.
	var broker realtime.Broker = realtime.NewMemoryBroker()
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		ctxPing, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := redisClient.Ping(ctxPing).Err(); err != nil {
			logger.Warn("redis ping failed, falling back to in-process channel", zap.Error(err))
		} else {
			broker = realtime.NewRedisBroker(redisClient, logger)
		}
		cancel()
	}

	if cfg.JWTSecret == "" {
		logger.Warn("jwt secret not configured, console endpoints will reject all tokens")
	}
	verifier := apihttp.NewTokenVerifier(cfg.JWTSecret)

	sessionSvc := service.NewSessionService(sessionRepo)
	messageSvc := service.NewMessageService(logger, messageRepo, broker)
	chatHandler := apihttp.NewChatHandler(logger, sessionSvc, messageSvc)
	wsHandler := apihttp.NewWSHandler(logger, messageSvc, broker, cfg.AllowedOrigin)
	router := apihttp.NewRouter(logger, verifier, chatHandler, wsHandler)

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	logger.Info("starting server", zap.String("port", cfg.HTTPPort))

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal("server error", zap.Error(err))
	}
}
