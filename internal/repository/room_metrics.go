package repository

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/rocketscienceinc/ultimate-tictactoe-backend/internal/entity"
)

const roomsCreatedKey = "rooms:created"

type RoomMetricsRepository interface {
	IncrementCreated(ctx context.Context, roomType entity.RoomType) error
	CreatedCounters(ctx context.Context) (map[entity.RoomType]int64, error)
}

type dbRoomMetrics struct {
	client *redis.Client
}

// NewRoomMetricsRepository keeps the all-time number of created rooms per type.
func NewRoomMetricsRepository(client *redis.Client) RoomMetricsRepository {
	return &dbRoomMetrics{
		client: client,
	}
}

func (that *dbRoomMetrics) IncrementCreated(ctx context.Context, roomType entity.RoomType) error {
	if err := that.client.HIncrBy(ctx, roomsCreatedKey, string(roomType), 1).Err(); err != nil {
		return fmt.Errorf("failed to increment %s rooms counter: %w", roomType, err)
	}

	return nil
}

func (that *dbRoomMetrics) CreatedCounters(ctx context.Context) (map[entity.RoomType]int64, error) {
	fields, err := that.client.HGetAll(ctx, roomsCreatedKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get rooms counters: %w", err)
	}

	counters := map[entity.RoomType]int64{
		entity.RoomRegular: 0,
		entity.RoomPrivate: 0,
	}

	for field, value := range fields {
		count, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid %s rooms counter %q: %w", field, value, err)
		}

		counters[entity.RoomType(field)] = count
	}

	return counters, nil
}
