package database

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"chatui/config"
)

var RDB *redis.Client

// ConnectRedis initializes the optional Redis client used for
// cross-device session event fan-out. When no address is configured
// the server runs without it.
func ConnectRedis(cfg *config.Config) {
	if cfg.RedisURL == "" {
		log.Printf("[Redis] REDIS_URL not set, session sync disabled")
		return
	}

	RDB = redis.NewClient(&redis.Options{
		Addr:         cfg.RedisURL,
		DB:           0,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := RDB.Ping(ctx).Err(); err != nil {
		log.Fatalf("Failed to connect to Redis at %s: %v", cfg.RedisURL, err)
	}

	fmt.Println("Redis connected")
}
