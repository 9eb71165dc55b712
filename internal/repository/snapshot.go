package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/rocketscienceinc/ultimate-tictactoe-backend/internal/entity"
)

var ErrSnapshotNotFound = errors.New("snapshot not found")

type SnapshotRepository interface {
	Save(ctx context.Context, snapshot entity.Snapshot) (bool, error)
	Latest(ctx context.Context, gameID string) (entity.Snapshot, error)
	LatestVersion(ctx context.Context, gameID string) (int, error)
}

type dbSnapshot struct {
	client *redis.Client
}

// NewSnapshotRepository keeps only the latest snapshot of a game, in a hash holding its version and JSON body.
func NewSnapshotRepository(client *redis.Client) SnapshotRepository {
	return &dbSnapshot{
		client: client,
	}
}

func snapshotKey(gameID string) string {
	return "game:" + gameID + ":snapshot"
}

// saveSnapshotScript replaces the stored snapshot only with a newer version.
var saveSnapshotScript = redis.NewScript(`
local current = tonumber(redis.call('HGET', KEYS[1], 'version') or '0')
if tonumber(ARGV[1]) <= current then
	return 0
end
redis.call('HSET', KEYS[1], 'version', ARGV[1], 'data', ARGV[2])
return 1
`)

// Save stores snapshot unless one at the same or a later version exists. It reports whether it was written.
func (that *dbSnapshot) Save(ctx context.Context, snapshot entity.Snapshot) (bool, error) {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return false, fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	written, err := saveSnapshotScript.Run(ctx, that.client, []string{snapshotKey(snapshot.GameID)}, snapshot.Version, data).Int()
	if err != nil {
		return false, fmt.Errorf("failed to save snapshot: %w", err)
	}

	return written == 1, nil
}

func (that *dbSnapshot) Latest(ctx context.Context, gameID string) (entity.Snapshot, error) {
	data, err := that.client.HGet(ctx, snapshotKey(gameID), "data").Bytes()
	if errors.Is(err, redis.Nil) {
		return entity.Snapshot{}, ErrSnapshotNotFound
	}

	if err != nil {
		return entity.Snapshot{}, fmt.Errorf("failed to get snapshot: %w", err)
	}

	var snapshot entity.Snapshot
	if err = json.Unmarshal(data, &snapshot); err != nil {
		return entity.Snapshot{}, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}

	return snapshot, nil
}

func (that *dbSnapshot) LatestVersion(ctx context.Context, gameID string) (int, error) {
	version, err := that.client.HGet(ctx, snapshotKey(gameID), "version").Int()
	if errors.Is(err, redis.Nil) {
		return 0, ErrSnapshotNotFound
	}

	if err != nil {
		return 0, fmt.Errorf("failed to get snapshot version: %w", err)
	}

	return version, nil
}
