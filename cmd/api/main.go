package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"gemini-chat/internal/config"
	"gemini-chat/internal/db"
	apihttp "gemini-chat/internal/http"
	"gemini-chat/internal/llm"
	"gemini-chat/internal/repository"
	"gemini-chat/internal/service"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
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

	store := newConversationStore(ctx, cfg, logger)

	geminiClient := llm.NewGeminiClient(
		cfg.GeminiBaseURL,
		cfg.GeminiAPIKey,
		cfg.GeminiModel,
		cfg.GeminiFallbackModel,
		logger,
	)

	chatSvc, err := service.NewChatService(ctx, store, geminiClient, logger)
	if err != nil {
		logger.Fatal("chat service init", zap.Error(err))
	}

	chatHandler := apihttp.NewChatHandler(logger, chatSvc)
	router := apihttp.NewRouter(logger, chatHandler)

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

// newConversationStore elige el backend de persistencia según configuración:
// postgres si hay DATABASE_URL, si no redis, y memoria como último recurso.
func newConversationStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) repository.ConversationStore {
	if cfg.DatabaseURL != "" {
		pool, err := db.NewPool(ctx, cfg)
		if err != nil {
			logger.Fatal("db connect", zap.Error(err))
		}
		store := repository.NewPgConversationStore(pool, cfg.MaxConversations, logger)
		if err := store.EnsureSchema(ctx); err != nil {
			logger.Fatal("db schema", zap.Error(err))
		}
		logger.Info("using postgres conversation store")
		return store
	}

	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		ctxPing, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := redisClient.Ping(ctxPing).Err()
		cancel()
		if err != nil {
			logger.Warn("redis ping failed, falling back to memory store", zap.Error(err))
		} else {
			logger.Info("using redis conversation store")
			return repository.NewRedisConversationStore(redisClient, logger)
		}
	}

	logger.Warn("no durable storage configured, conversations will not survive restarts")
	return repository.NewMemoryConversationStore(cfg.MaxConversations, logger)
}
