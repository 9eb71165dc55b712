package repository

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/rocketscienceinc/ultimate-tictactoe-backend/internal/entity"
)

type EventRepository interface {
	Append(ctx context.Context, gameID string, events []entity.Event) error
	ReadAll(ctx context.Context, gameID string) ([]entity.Event, error)
	ReadAfterVersion(ctx context.Context, gameID string, version int) ([]entity.Event, error)
	DeleteAll(ctx context.Context, gameID string) error
}

type dbEvent struct {
	client *redis.Client
}

// NewEventRepository stores each game's log as a sorted set scored by event version.
func NewEventRepository(client *redis.Client) EventRepository {
	return &dbEvent{
		client: client,
	}
}

func eventsKey(gameID string) string {
	return "game:" + gameID + ":events"
}

func (that *dbEvent) Append(ctx context.Context, gameID string, events []entity.Event) error {
	if len(events) == 0 {
		return nil
	}

	members := make([]redis.Z, 0, len(events))
	for _, event := range events {
		raw, err := entity.EncodeEvent(event)
		if err != nil {
			return fmt.Errorf("failed to encode event: %w", err)
		}

		members = append(members, redis.Z{Score: float64(event.Meta().Version), Member: raw})
	}

	// MULTI/EXEC: the batch lands as a whole or not at all.
	_, err := that.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, eventsKey(gameID), members...)

		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to append events: %w", err)
	}

	return nil
}

func (that *dbEvent) ReadAll(ctx context.Context, gameID string) ([]entity.Event, error) {
	return that.readRange(ctx, gameID, "-inf")
}

func (that *dbEvent) ReadAfterVersion(ctx context.Context, gameID string, version int) ([]entity.Event, error) {
	return that.readRange(ctx, gameID, "("+strconv.Itoa(version))
}

func (that *dbEvent) readRange(ctx context.Context, gameID, minScore string) ([]entity.Event, error) {
	raws, err := that.client.ZRangeByScore(ctx, eventsKey(gameID), &redis.ZRangeBy{
		Min: minScore,
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read events: %w", err)
	}

	events := make([]entity.Event, 0, len(raws))
	for _, raw := range raws {
		event, err := entity.DecodeEvent([]byte(raw))
		if err != nil {
			return nil, fmt.Errorf("failed to decode event of game %s: %w", gameID, err)
		}

		events = append(events, event)
	}

	return events, nil
}

func (that *dbEvent) DeleteAll(ctx context.Context, gameID string) error {
	if err := that.client.Del(ctx, eventsKey(gameID)).Err(); err != nil {
		return fmt.Errorf("failed to delete events: %w", err)
	}

	return nil
}
