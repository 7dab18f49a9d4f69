package redis

import (
	"context"
	"crypto/tls"
	"time"

	"github.com/redis/go-redis/v9"

	"cinegen-server/modules/common/config"
	"cinegen-server/modules/common/logger"
)

// Connect - open a Redis client and ping it; nil when Redis is unreachable
func Connect(cfg *config.Config) *redis.Client {
	log := logger.WithModule("Redis")
	log.Infof("🔌 Connecting to Redis: %s", cfg.GetRedisAddr())

	var tlsConfig *tls.Config
	if cfg.RedisUseTLS {
		tlsConfig = &tls.Config{
			MinVersion: tls.VersionTLS12,
			ServerName: cfg.RedisHost,
		}
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.GetRedisAddr(),
		Username:     cfg.RedisUsername,
		Password:     cfg.RedisPassword,
		TLSConfig:    tlsConfig,
		DB:           0,
		DialTimeout:  10 * time.Second,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Errorf("❌ Redis ping failed: %v", err)
		_ = rdb.Close()
		return nil
	}

	log.Info("✅ Redis connected")
	return rdb
}
