package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/rocketscienceinc/ultimate-tictactoe-backend/internal/apperror"
	"github.com/rocketscienceinc/ultimate-tictactoe-backend/internal/entity"
	"github.com/rocketscienceinc/ultimate-tictactoe-backend/internal/repository"
)

type SnapshotService interface {
	// LatestVersion returns the version of the latest stored snapshot, false when there is none.
	LatestVersion(ctx context.Context, gameID string) (int, bool, error)
	// TryCreate stores a snapshot when the pending events of game call for one. It returns nil otherwise.
	TryCreate(ctx context.Context, game *entity.Game) (*entity.Snapshot, error)
	CreateManual(ctx context.Context, game *entity.Game) (*entity.Snapshot, error)
	// Load rebuilds a game from its latest snapshot and the events after it, or from the full log.
	Load(ctx context.Context, gameID string) (*entity.Game, error)
}

type snapshotRepo interface {
	Save(ctx context.Context, snapshot entity.Snapshot) (bool, error)
	Latest(ctx context.Context, gameID string) (entity.Snapshot, error)
	LatestVersion(ctx context.Context, gameID string) (int, error)
}

type eventReader interface {
	ReadAll(ctx context.Context, gameID string) ([]entity.Event, error)
	ReadAfterVersion(ctx context.Context, gameID string, version int) ([]entity.Event, error)
}

type snapshotService struct {
	logger *slog.Logger

	snapshotRepo snapshotRepo
	eventRepo    eventReader

	eventsUntilSnapshot int
}

func NewSnapshotService(logger *slog.Logger, snapshotRepo snapshotRepo, eventRepo eventReader, eventsUntilSnapshot int) SnapshotService {
	if eventsUntilSnapshot <= 0 {
		eventsUntilSnapshot = entity.DefaultEventsUntilSnapshot
	}

	return &snapshotService{
		logger: logger.With("component", "snapshot-service"),

		snapshotRepo: snapshotRepo,
		eventRepo:    eventRepo,

		eventsUntilSnapshot: eventsUntilSnapshot,
	}
}

func (that *snapshotService) LatestVersion(ctx context.Context, gameID string) (int, bool, error) {
	version, err := that.snapshotRepo.LatestVersion(ctx, gameID)
	if errors.Is(err, repository.ErrSnapshotNotFound) {
		return 0, false, nil
	}

	if err != nil {
		return 0, false, fmt.Errorf("failed to get latest snapshot version: %w", err)
	}

	return version, true, nil
}

func (that *snapshotService) TryCreate(ctx context.Context, game *entity.Game) (*entity.Snapshot, error) {
	latest, _, err := that.LatestVersion(ctx, game.ID())
	if err != nil {
		return nil, err
	}

	cause, ok := entity.SnapshotCauseFor(game, latest, that.eventsUntilSnapshot)
	if !ok {
		return nil, nil
	}

	return that.save(ctx, game, cause)
}

func (that *snapshotService) CreateManual(ctx context.Context, game *entity.Game) (*entity.Snapshot, error) {
	return that.save(ctx, game, entity.CauseManual)
}

func (that *snapshotService) save(ctx context.Context, game *entity.Game, cause entity.SnapshotCause) (*entity.Snapshot, error) {
	snapshot := game.ToSnapshot(cause, time.Now().UTC())

	written, err := that.snapshotRepo.Save(ctx, snapshot)
	if err != nil {
		return nil, fmt.Errorf("failed to save snapshot: %w", err)
	}

	if !written {
		return nil, nil
	}

	return &snapshot, nil
}

func (that *snapshotService) Load(ctx context.Context, gameID string) (*entity.Game, error) {
	log := that.logger.With("method", "Load", "game_id", gameID)

	snapshot, err := that.snapshotRepo.Latest(ctx, gameID)
	switch {
	case errors.Is(err, repository.ErrSnapshotNotFound):
		return that.loadFromEvents(ctx, gameID)
	case err != nil:
		return nil, fmt.Errorf("failed to get latest snapshot: %w", err)
	}

	game, err := entity.Restore(snapshot)
	if err != nil {
		log.Warn("snapshot is unusable, replaying the full log", "version", snapshot.Version, "error", err)

		return that.loadFromEvents(ctx, gameID)
	}

	tail, err := that.eventRepo.ReadAfterVersion(ctx, gameID, snapshot.Version)
	if err != nil {
		return nil, fmt.Errorf("failed to read events after snapshot: %w", err)
	}

	if err = game.Replay(tail); err != nil {
		return nil, fmt.Errorf("failed to replay events after snapshot: %w", err)
	}

	return game, nil
}

func (that *snapshotService) loadFromEvents(ctx context.Context, gameID string) (*entity.Game, error) {
	events, err := that.eventRepo.ReadAll(ctx, gameID)
	if err != nil {
		return nil, fmt.Errorf("failed to read events: %w", err)
	}

	if len(events) == 0 {
		return nil, apperror.ErrGameNotFound
	}

	game, err := entity.Rehydrate(events)
	if err != nil {
		return nil, fmt.Errorf("failed to rehydrate game: %w", err)
	}

	return game, nil
}
