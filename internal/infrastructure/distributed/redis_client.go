package distributed

import (
	"context"
	"fmt"
	"time"

	"callpilot/pkg/retry"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisOptions configures the event bus connection.
type RedisOptions struct {
	Address  string
	Password string
	DB       int
	PoolSize int
	// Connect bounds the startup ping attempts. Zero means retry.DefaultConfig.
	Connect retry.Config
}

// NewRedisClient connects to redis, retrying the initial ping with
// backoff.
func NewRedisClient(ctx context.Context, opts RedisOptions, logger *zap.SugaredLogger) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Address,
		Password:     opts.Password,
		DB:           opts.DB,
		PoolSize:     opts.PoolSize,
		MinIdleConns: 2,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	connect := opts.Connect
	if connect.MaxAttempts == 0 {
		connect = retry.DefaultConfig()
	}
	err := retry.Do(ctx, connect, func(ctx context.Context) error {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			if logger != nil {
				logger.Debugw("redis ping failed", "address", opts.Address, "error", err)
			}
			return err
		}
		return nil
	})
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", opts.Address, err)
	}

	if logger != nil {
		logger.Infow("connected to redis",
			"address", opts.Address,
			"db", opts.DB,
			"pool_size", opts.PoolSize,
		)
	}
	return client, nil
}
