package entity

import (
	"time"

	"github.com/rocketscienceinc/ultimate-tictactoe-backend/internal/apperror"
)

// Notification payloads pushed to players. Delivery is best effort.

type MatchFoundNotification struct {
	GameID     string `json:"game_id"`
	RoomID     string `json:"room_id"`
	UserID     string `json:"user_id"`
	OpponentID string `json:"opponent_id"`
	Mark       Mark   `json:"mark"`
}

type QueueJoinedNotification struct {
	TicketID  string    `json:"ticket_id"`
	UserID    string    `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

type QueueExpiredNotification struct {
	TicketID string `json:"ticket_id"`
	UserID   string `json:"user_id"`
}

type PrivateRoomCreatedNotification struct {
	RoomID    string    `json:"room_id"`
	UserID    string    `json:"user_id"`
	JoinCode  string    `json:"join_code"`
	ExpiresAt time.Time `json:"expires_at"`
}

type RoomExpiredNotification struct {
	RoomID string   `json:"room_id"`
	UserID string   `json:"user_id"`
	Type   RoomType `json:"type"`
}

type MoveAppliedNotification struct {
	GameID       string     `json:"game_id"`
	PlayerID     string     `json:"player_id"`
	MiniBoardRow int        `json:"mini_board_row"`
	MiniBoardCol int        `json:"mini_board_col"`
	CellRow      int        `json:"cell_row"`
	CellCol      int        `json:"cell_col"`
	Version      int        `json:"version"`
	Status       GameStatus `json:"status"`
	NextPlayerID string     `json:"next_player_id,omitempty"`
	WinnerID     string     `json:"winner_id,omitempty"`
}

type MoveRejectedNotification struct {
	GameID   string        `json:"game_id"`
	PlayerID string        `json:"player_id"`
	Kind     apperror.Kind `json:"kind"`
	Reason   string        `json:"reason"`
	Message  string        `json:"message"`
}
