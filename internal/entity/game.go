package entity

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/rocketscienceinc/ultimate-tictactoe-backend/internal/apperror"
)

type GameStatus string

const (
	StatusInProgress GameStatus = "in_progress"
	StatusWon        GameStatus = "won"
	StatusDrawn      GameStatus = "drawn"
)

var (
	ErrInvalidCell        = errors.New("invalid cell index")
	ErrReplayInconsistent = errors.New("event is inconsistent with replayed state")
	ErrNoEvents           = errors.New("no events to rehydrate from")
)

// Game is the aggregate root of one game. It owns the board and status and is the only
// place where either is mutated.
type Game struct {
	id        string
	playerXID string
	playerOID string
	board     OuterBoard
	status    GameStatus
	winnerID  string
	version   int

	pending []Event
}

// NewGame starts a game by applying GameCreated.
func NewGame(id, playerXID, playerOID string, now time.Time) *Game {
	game := &Game{}

	// GameCreated can't be rejected by the board.
	_ = game.apply(GameCreated{
		EventMeta: EventMeta{GameID: id, OccurredAt: now},
		PlayerXID: playerXID,
		PlayerOID: playerOID,
	})

	return game
}

// Rehydrate rebuilds a game from its full event history.
func Rehydrate(events []Event) (*Game, error) {
	if len(events) == 0 {
		return nil, ErrNoEvents
	}

	game := &Game{}
	if err := game.Replay(events); err != nil {
		return nil, err
	}

	return game, nil
}

func (that *Game) ID() string { return that.id }
func (that *Game) PlayerXID() string { return that.playerXID }
func (that *Game) PlayerOID() string { return that.playerOID }
func (that *Game) Status() GameStatus { return that.status }
func (that *Game) WinnerID() string { return that.winnerID }
func (that *Game) Version() int { return that.version }
func (that *Game) Board() OuterBoard { return that.board }
func (that *Game) IsOngoing() bool { return that.status == StatusInProgress }
func (that *Game) IsFinished() bool { return that.status == StatusWon || that.status == StatusDrawn }

// Clone returns an independent copy. The board is a value, so only the pending buffer needs copying.
func (that *Game) Clone() *Game {
	clone := *that
	clone.pending = slices.Clone(that.pending)

	return &clone
}

// PendingEvents returns a copy of the events not yet persisted.
func (that *Game) PendingEvents() []Event {
	events := make([]Event, len(that.pending))
	copy(events, that.pending)

	return events
}

// ClearPendingEvents drops the pending buffer. Call it only after the events are durable.
func (that *Game) ClearPendingEvents() bool {
	if len(that.pending) == 0 {
		return false
	}

	that.pending = nil

	return true
}

// CurrentMark is the mark of the player to move, derived from the number of marked cells.
func (that *Game) CurrentMark() Mark {
	if that.board.TotalMoves()%2 == 0 {
		return PlayerX
	}

	return PlayerO
}

// ExpectedPlayerID is the id of the player to move.
func (that *Game) ExpectedPlayerID() string {
	return that.playerIDFor(that.CurrentMark())
}

func (that *Game) playerIDFor(mark Mark) string {
	if mark == PlayerX {
		return that.playerXID
	}

	return that.playerOID
}

// PlayMove validates and applies a move, emitting CellMarked and any board or game outcome events.
func (that *Game) PlayMove(playerID string, miniRow, miniCol, cellRow, cellCol int) error {
	if that.hasPendingTerminalEvent() {
		return apperror.ErrGameNotInProgress
	}

	if that.status != StatusInProgress {
		return apperror.ErrGameNotInProgress
	}

	mark := that.CurrentMark()
	if playerID != that.playerIDFor(mark) {
		return apperror.ErrNotYourTurn
	}

	if !validIndex(miniRow) || !validIndex(miniCol) || !validIndex(cellRow) || !validIndex(cellCol) {
		return fmt.Errorf("%w: coordinates out of range", apperror.ErrInvalidMove)
	}

	if !that.board.IsPlayable(miniRow, miniCol) {
		return apperror.ErrMiniBoardNotPlayable
	}

	if that.board.boards[miniRow][miniCol].cells[cellRow][cellCol] != EmptyCell {
		return fmt.Errorf("%w: cell already occupied", apperror.ErrInvalidMove)
	}

	now := time.Now().UTC()
	meta := EventMeta{GameID: that.id, OccurredAt: now}

	if err := that.apply(CellMarked{
		EventMeta:    meta,
		PlayerID:     playerID,
		MiniBoardRow: miniRow,
		MiniBoardCol: miniCol,
		CellRow:      cellRow,
		CellCol:      cellCol,
		Mark:         mark,
	}); err != nil {
		return err
	}

	inner := that.board.boards[miniRow][miniCol]

	var err error
	switch {
	case inner.IsWon():
		err = that.apply(MiniBoardWon{
			EventMeta:    meta,
			WinnerID:     playerID,
			MiniBoardRow: miniRow,
			MiniBoardCol: miniCol,
			Mark:         inner.Winner(),
		})
	case inner.IsDraw():
		err = that.apply(MiniBoardDrawn{EventMeta: meta, MiniBoardRow: miniRow, MiniBoardCol: miniCol})
	default:
		return nil
	}

	if err != nil {
		return err
	}

	switch {
	case that.board.Winner() != EmptyCell:
		return that.apply(FullGameWon{EventMeta: meta, WinnerID: playerID})
	case that.board.AllCompleted():
		return that.apply(GameDrawn{EventMeta: meta})
	default:
		return nil
	}
}

// ReplayApply applies a historical event without business validation and without emitting
// derived events. The recorded version wins when present.
func (that *Game) ReplayApply(event Event) error {
	if err := that.when(event); err != nil {
		return fmt.Errorf("failed to replay %s v%d: %w", event.Type(), event.Meta().Version, err)
	}

	if version := event.Meta().Version; version > 0 {
		that.version = version
	} else {
		that.version++
	}

	return nil
}

// Replay applies events in order through ReplayApply.
func (that *Game) Replay(events []Event) error {
	for _, event := range events {
		if err := that.ReplayApply(event); err != nil {
			return err
		}
	}

	return nil
}

// apply is the live path: mutate, stamp the next version, buffer.
func (that *Game) apply(event Event) error {
	if err := that.when(event); err != nil {
		return err
	}

	that.version++
	that.pending = append(that.pending, withVersion(event, that.version))

	return nil
}

func (that *Game) when(event Event) error {
	switch e := event.(type) {
	case GameCreated:
		that.id = e.GameID
		that.playerXID = e.PlayerXID
		that.playerOID = e.PlayerOID
		that.board = OuterBoard{}
		that.status = StatusInProgress
		that.winnerID = ""

	case CellMarked:
		if !that.board.mark(e.MiniBoardRow, e.MiniBoardCol, e.CellRow, e.CellCol, e.Mark) {
			return fmt.Errorf("%w: cell (%d,%d) of board (%d,%d) is not markable",
				ErrReplayInconsistent, e.CellRow, e.CellCol, e.MiniBoardRow, e.MiniBoardCol)
		}

	// Inner board outcomes are derived from CellMarked; these only verify the derivation.
	case MiniBoardWon:
		inner, err := that.board.InnerBoard(e.MiniBoardRow, e.MiniBoardCol)
		if err != nil || inner.Winner() != e.Mark {
			return fmt.Errorf("%w: board (%d,%d) is not won by %s", ErrReplayInconsistent, e.MiniBoardRow, e.MiniBoardCol, e.Mark)
		}

	case MiniBoardDrawn:
		inner, err := that.board.InnerBoard(e.MiniBoardRow, e.MiniBoardCol)
		if err != nil || !inner.IsDraw() {
			return fmt.Errorf("%w: board (%d,%d) is not drawn", ErrReplayInconsistent, e.MiniBoardRow, e.MiniBoardCol)
		}

	case FullGameWon:
		that.status = StatusWon
		that.winnerID = e.WinnerID

	case GameDrawn:
		that.status = StatusDrawn

	default:
		return fmt.Errorf("%w: %T", ErrUnknownEventType, event)
	}

	return nil
}

func (that *Game) hasPendingTerminalEvent() bool {
	for _, event := range that.pending {
		if IsTerminal(event) {
			return true
		}
	}

	return false
}

func withVersion(event Event, version int) Event {
	switch e := event.(type) {
	case GameCreated:
		e.Version = version
		return e
	case CellMarked:
		e.Version = version
		return e
	case MiniBoardWon:
		e.Version = version
		return e
	case MiniBoardDrawn:
		e.Version = version
		return e
	case FullGameWon:
		e.Version = version
		return e
	case GameDrawn:
		e.Version = version
		return e
	default:
		return event
	}
}
