// Package redis builds the client backing the managed-provider room
// records. Live room membership never touches Redis; only provider room
// metadata lives here.
package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/carebridge/telehealth-signaling/config"
)

const connectTimeout = 5 * time.Second

// Connect builds a client and verifies the connection with a bounded ping.
func Connect(cfg config.RedisConfig) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	log.Info().Str("module", "redis").Str("addr", cfg.Addr()).Msg("connected")
	return client, nil
}
