package nats

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/rocketscienceinc/ultimate-tictactoe-backend/internal/apperror"
	"github.com/rocketscienceinc/ultimate-tictactoe-backend/internal/entity"
)

const (
	KindMatchFound         = "match_found"
	KindQueueJoined        = "queue_joined"
	KindQueueExpired       = "queue_expired"
	KindPrivateRoomCreated = "private_room_created"
	KindRoomExpired        = "room_expired"
	KindMoveApplied        = "move_applied"
	KindMoveRejected       = "move_rejected"
)

// Notifier publishes player notifications as JSON on core NATS subjects:
// <prefix>.users.<userID>.<kind> for a single user and <prefix>.games.<gameID>.<kind> for a game group.
type Notifier struct {
	conn   *nats.Conn
	prefix string
}

func NewNotifier(conn *nats.Conn, prefix string) *Notifier {
	return &Notifier{
		conn:   conn,
		prefix: prefix,
	}
}

func (that *Notifier) UserSubject(userID, kind string) string {
	return fmt.Sprintf("%s.users.%s.%s", that.prefix, userID, kind)
}

func (that *Notifier) GameSubject(gameID, kind string) string {
	return fmt.Sprintf("%s.games.%s.%s", that.prefix, gameID, kind)
}

func (that *Notifier) MatchFound(ctx context.Context, n entity.MatchFoundNotification) error {
	return that.publish(ctx, that.UserSubject(n.UserID, KindMatchFound), n)
}

func (that *Notifier) QueueJoined(ctx context.Context, n entity.QueueJoinedNotification) error {
	return that.publish(ctx, that.UserSubject(n.UserID, KindQueueJoined), n)
}

func (that *Notifier) QueueExpired(ctx context.Context, n entity.QueueExpiredNotification) error {
	return that.publish(ctx, that.UserSubject(n.UserID, KindQueueExpired), n)
}

func (that *Notifier) PrivateRoomCreated(ctx context.Context, n entity.PrivateRoomCreatedNotification) error {
	return that.publish(ctx, that.UserSubject(n.UserID, KindPrivateRoomCreated), n)
}

func (that *Notifier) RoomExpired(ctx context.Context, n entity.RoomExpiredNotification) error {
	return that.publish(ctx, that.UserSubject(n.UserID, KindRoomExpired), n)
}

// Move outcomes are wrapped in apperror.Result so clients read accepted and rejected moves the same way.

func (that *Notifier) MoveApplied(ctx context.Context, n entity.MoveAppliedNotification) error {
	return that.publish(ctx, that.GameSubject(n.GameID, KindMoveApplied), apperror.NewResult(n, nil))
}

// MoveRejected goes to the player who made the move only.
func (that *Notifier) MoveRejected(ctx context.Context, n entity.MoveRejectedNotification) error {
	return that.publish(ctx, that.UserSubject(n.PlayerID, KindMoveRejected), apperror.Result[entity.MoveRejectedNotification]{
		Value:   n,
		Kind:    n.Kind,
		Reason:  n.Reason,
		Message: n.Message,
	})
}

func (that *Notifier) publish(ctx context.Context, subject string, payload any) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	if err = that.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}

	return nil
}
