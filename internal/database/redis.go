package database

import (
	"bufio"
	"context"
	"fmt"
	"strings"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// RedisDB cliente opcional; el servicio arranca sin él.
type RedisDB struct {
	Client *redis.Client
}

// redisStatKeys contadores de INFO stats que se exponen en /health
var redisStatKeys = map[string]bool{
	"total_connections_received": true,
	"total_commands_processed":   true,
	"keyspace_hits":              true,
	"keyspace_misses":            true,
	"evicted_keys":               true,
}

func NewRedisDB(ctx context.Context, url, password string, db int, logger *zap.Logger) (*RedisDB, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	if password != "" {
		opt.Password = password
	}
	opt.DB = db

	client := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping Redis at %s: %w", opt.Addr, err)
	}

	logger.Info("Redis connection established",
		zap.String("addr", opt.Addr),
		zap.Int("db", db),
	)

	return &RedisDB{Client: client}, nil
}

func (r *RedisDB) Close() error {
	return r.Client.Close()
}

func (r *RedisDB) Ping(ctx context.Context) error {
	return r.Client.Ping(ctx).Err()
}

// Stats contadores seleccionados de INFO stats
func (r *RedisDB) Stats(ctx context.Context) (map[string]string, error) {
	info, err := r.Client.Info(ctx, "stats").Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read Redis INFO: %w", err)
	}
	return parseInfo(info, redisStatKeys), nil
}

// parseInfo extrae pares clave:valor del formato INFO, filtrando por keys.
func parseInfo(info string, keys map[string]bool) map[string]string {
	out := make(map[string]string, len(keys))
	scanner := bufio.NewScanner(strings.NewReader(info))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, ":")
		if ok && keys[key] {
			out[key] = value
		}
	}
	return out
}
