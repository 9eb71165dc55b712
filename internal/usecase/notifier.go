package usecase

import (
	"context"

	"github.com/rocketscienceinc/ultimate-tictactoe-backend/internal/entity"
)

// Notifier pushes notifications to players. Callers log a failed notification and carry on.
type Notifier interface {
	MatchFound(ctx context.Context, n entity.MatchFoundNotification) error
	QueueJoined(ctx context.Context, n entity.QueueJoinedNotification) error
	QueueExpired(ctx context.Context, n entity.QueueExpiredNotification) error
	PrivateRoomCreated(ctx context.Context, n entity.PrivateRoomCreatedNotification) error
	RoomExpired(ctx context.Context, n entity.RoomExpiredNotification) error
	MoveApplied(ctx context.Context, n entity.MoveAppliedNotification) error
	MoveRejected(ctx context.Context, n entity.MoveRejectedNotification) error
}
