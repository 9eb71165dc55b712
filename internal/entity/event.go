package entity

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// EventType is the discriminator of a domain event.
type EventType string

const (
	EventGameCreated    EventType = "GameCreated"
	EventCellMarked     EventType = "CellMarked"
	EventMiniBoardWon   EventType = "MiniBoardWon"
	EventMiniBoardDrawn EventType = "MiniBoardDrawn"
	EventFullGameWon    EventType = "FullGameWon"
	EventGameDrawn      EventType = "GameDrawn"
)

var ErrUnknownEventType = errors.New("unknown event type")

// Event is a domain event of a game. The set of implementations is closed to this package.
type Event interface {
	Type() EventType
	Meta() EventMeta

	isEvent()
}

// EventMeta is the envelope shared by all events.
type EventMeta struct {
	GameID     string    `json:"game_id"`
	Version    int       `json:"version"`
	OccurredAt time.Time `json:"occurred_at"`
}

func (that EventMeta) Meta() EventMeta { return that }

type GameCreated struct {
	EventMeta
	PlayerXID string `json:"player_x_id"`
	PlayerOID string `json:"player_o_id"`
}

func (GameCreated) Type() EventType { return EventGameCreated }
func (GameCreated) isEvent() {}

type CellMarked struct {
	EventMeta
	PlayerID     string `json:"player_id"`
	MiniBoardRow int    `json:"mini_board_row"`
	MiniBoardCol int    `json:"mini_board_col"`
	CellRow      int    `json:"cell_row"`
	CellCol      int    `json:"cell_col"`
	Mark         Mark   `json:"mark"`
}

func (CellMarked) Type() EventType { return EventCellMarked }
func (CellMarked) isEvent() {}

type MiniBoardWon struct {
	EventMeta
	WinnerID     string `json:"winner_id"`
	MiniBoardRow int    `json:"mini_board_row"`
	MiniBoardCol int    `json:"mini_board_col"`
	Mark         Mark   `json:"mark"`
}

func (MiniBoardWon) Type() EventType { return EventMiniBoardWon }
func (MiniBoardWon) isEvent() {}

type MiniBoardDrawn struct {
	EventMeta
	MiniBoardRow int `json:"mini_board_row"`
	MiniBoardCol int `json:"mini_board_col"`
}

func (MiniBoardDrawn) Type() EventType { return EventMiniBoardDrawn }
func (MiniBoardDrawn) isEvent() {}

type FullGameWon struct {
	EventMeta
	WinnerID string `json:"winner_id"`
}

func (FullGameWon) Type() EventType { return EventFullGameWon }
func (FullGameWon) isEvent() {}

type GameDrawn struct {
	EventMeta
}

func (GameDrawn) Type() EventType { return EventGameDrawn }
func (GameDrawn) isEvent() {}

// IsTerminal reports whether the event ends the game.
func IsTerminal(event Event) bool {
	switch event.(type) {
	case FullGameWon, GameDrawn:
		return true
	default:
		return false
	}
}

type eventRecord struct {
	Type EventType       `json:"type"`
	Data json.RawMessage `json:"data"`
}

// EncodeEvent serializes an event together with its type discriminator.
func EncodeEvent(event Event) ([]byte, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s event: %w", event.Type(), err)
	}

	record, err := json.Marshal(eventRecord{Type: event.Type(), Data: data})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event record: %w", err)
	}

	return record, nil
}

// DecodeEvent is the inverse of EncodeEvent.
func DecodeEvent(raw []byte) (Event, error) {
	var record eventRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal event record: %w", err)
	}

	switch record.Type {
	case EventGameCreated:
		return decodeAs[GameCreated](record.Data)
	case EventCellMarked:
		return decodeAs[CellMarked](record.Data)
	case EventMiniBoardWon:
		return decodeAs[MiniBoardWon](record.Data)
	case EventMiniBoardDrawn:
		return decodeAs[MiniBoardDrawn](record.Data)
	case EventFullGameWon:
		return decodeAs[FullGameWon](record.Data)
	case EventGameDrawn:
		return decodeAs[GameDrawn](record.Data)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEventType, record.Type)
	}
}

func decodeAs[T Event](data []byte) (Event, error) {
	var event T
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s event: %w", event.Type(), err)
	}

	return event, nil
}
