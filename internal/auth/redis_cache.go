package auth

import (
	"context"
	"fmt"
	"time"

	"ticket-runners/internal/logger"

	"github.com/go-redis/redis/v8"
)

// InitializeTokenCache sets up Redis for token caching and tests the connection
func InitializeTokenCache(redisAddr string, log *logger.Logger) (*redis.Client, error) {
	redisClient := redis.NewClient(&redis.Options{
		Addr:     redisAddr,
		Password: "",
		DB:       0,
		PoolSize: 10,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := redisClient.Ping(ctx).Result(); err != nil {
		log.Error("AUTH", fmt.Sprintf("Failed to connect to Redis at %s: %v", redisAddr, err))
		return nil, err
	}

	log.Info("AUTH", fmt.Sprintf("Connected to Redis at %s for token caching", redisAddr))
	return redisClient, nil
}
