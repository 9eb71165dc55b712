package entity

import "time"

type TicketStatus string

const (
	TicketQueued    TicketStatus = "queued"
	TicketMatched   TicketStatus = "matched"
	TicketCancelled TicketStatus = "cancelled"
	TicketExpired   TicketStatus = "expired"
)

// Ticket is one user's entry in the matchmaking queue. Only a queued ticket can change status.
type Ticket struct {
	ID            string       `json:"id"`
	UserID        string       `json:"user_id"`
	Status        TicketStatus `json:"status"`
	CreatedAt     time.Time    `json:"created_at"`
	ExpiresAt     time.Time    `json:"expires_at"`
	MatchedRoomID string       `json:"matched_room_id,omitempty"`
	GameID        string       `json:"game_id,omitempty"`
}

func (that *Ticket) IsTerminal() bool {
	return that.Status != TicketQueued
}

func (that *Ticket) IsExpired(now time.Time) bool {
	return that.Status == TicketQueued && !now.Before(that.ExpiresAt)
}
