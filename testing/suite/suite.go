// Package suite starts throwaway Redis and NATS containers for integration tests.
package suite

import (
	"context"
	"testing"

	"github.com/redis/go-redis/v9"

	"github.com/rocketscienceinc/ultimate-tictactoe-backend/internal/repository/storage"
)

var redisContainer = container{image: "redis", tag: "7-alpine", port: "6379/tcp"}

type Suite struct {
	*testing.T

	Storage *redis.Client
}

// New starts an empty Redis and connects to it the way the application does.
func New(t *testing.T) (context.Context, *Suite) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), maxWaitDuration)
	t.Cleanup(cancel)

	var redisStorage *storage.RedisStorage
	redisContainer.run(t, func(hostPort string) error {
		var err error
		redisStorage, err = storage.NewRedisStorage(ctx, storage.RedisOptions{Addr: hostPort})

		return err
	})

	t.Cleanup(func() {
		_ = redisStorage.Close()
	})

	if err := redisStorage.Connection.FlushDB(ctx).Err(); err != nil {
		t.Fatalf("could not flush database: %v", err)
	}

	return ctx, &Suite{
		T:       t,
		Storage: redisStorage.Connection,
	}
}
