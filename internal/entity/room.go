package entity

import "time"

type RoomType string

const (
	RoomRegular RoomType = "regular"
	RoomPrivate RoomType = "private"
)

type RoomStatus string

const (
	RoomWaiting RoomStatus = "waiting"
	RoomMatched RoomStatus = "matched"
	RoomExpired RoomStatus = "expired"
)

const RoomCapacity = 2

// RoomPlayer is an occupant. TicketID is set for players who came through the queue.
type RoomPlayer struct {
	UserID   string    `json:"user_id"`
	TicketID string    `json:"ticket_id,omitempty"`
	JoinedAt time.Time `json:"joined_at"`
}

// Room holds one or two players before a game starts.
type Room struct {
	ID        string       `json:"id"`
	Type      RoomType     `json:"type"`
	Status    RoomStatus   `json:"status"`
	JoinCode  string       `json:"join_code,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
	ExpiresAt time.Time    `json:"expires_at"`
	Players   []RoomPlayer `json:"players"`
}

func (that *Room) IsFull() bool {
	return len(that.Players) == RoomCapacity
}

// IsHalfFullExpired reports a waiting room still holding one player past its expiry.
func (that *Room) IsHalfFullExpired(now time.Time) bool {
	return that.Status == RoomWaiting && len(that.Players) == 1 && !now.Before(that.ExpiresAt)
}

func (that *Room) HasPlayer(userID string) bool {
	for _, player := range that.Players {
		if player.UserID == userID {
			return true
		}
	}

	return false
}

// Opponent returns the other occupant of a full room, or "" when userID is not in the room.
func (that *Room) Opponent(userID string) string {
	if !that.HasPlayer(userID) {
		return ""
	}

	for _, player := range that.Players {
		if player.UserID != userID {
			return player.UserID
		}
	}

	return ""
}

// Owner is the first occupant, who plays X.
func (that *Room) Owner() string {
	if len(that.Players) == 0 {
		return ""
	}

	return that.Players[0].UserID
}
