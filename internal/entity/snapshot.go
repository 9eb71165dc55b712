package entity

import (
	"errors"
	"fmt"
	"time"
)

type SnapshotCause string

const (
	CausePeriodicThresholdReached SnapshotCause = "PeriodicThresholdReached"
	CauseMiniBoardWon             SnapshotCause = "MiniBoardWon"
	CauseGameWon                  SnapshotCause = "GameWon"
	CauseManual                   SnapshotCause = "Manual"
)

const DefaultEventsUntilSnapshot = 20

var ErrInvalidSnapshot = errors.New("invalid snapshot")

// Snapshot is the stored projection of a game at Version.
type Snapshot struct {
	GameID     string              `json:"game_id"`
	PlayerXID  string              `json:"player_x_id"`
	PlayerOID  string              `json:"player_o_id"`
	Status     GameStatus          `json:"status"`
	WinnerID   string              `json:"winner_id,omitempty"`
	Version    int                 `json:"version"`
	Cause      SnapshotCause       `json:"cause"`
	CreatedAt  time.Time           `json:"created_at"`
	MiniBoards []MiniBoardSnapshot `json:"mini_boards"`
}

// MiniBoardSnapshot holds one non-empty inner board.
type MiniBoardSnapshot struct {
	Row    int            `json:"row"`
	Col    int            `json:"col"`
	Winner Mark           `json:"winner,omitempty"`
	Cells  []CellSnapshot `json:"cells"`
}

// CellSnapshot holds one marked cell.
type CellSnapshot struct {
	Row  int  `json:"row"`
	Col  int  `json:"col"`
	Mark Mark `json:"mark"`
}

// ToSnapshot projects the game. Empty inner boards and empty cells are omitted.
func (that *Game) ToSnapshot(cause SnapshotCause, now time.Time) Snapshot {
	snapshot := Snapshot{
		GameID:     that.id,
		PlayerXID:  that.playerXID,
		PlayerOID:  that.playerOID,
		Status:     that.status,
		WinnerID:   that.winnerID,
		Version:    that.version,
		Cause:      cause,
		CreatedAt:  now,
		MiniBoards: []MiniBoardSnapshot{},
	}

	for r := range boardSize {
		for c := range boardSize {
			inner := that.board.boards[r][c]
			if inner.IsEmpty() {
				continue
			}

			mini := MiniBoardSnapshot{Row: r, Col: c, Winner: inner.winner}
			for cr := range boardSize {
				for cc := range boardSize {
					if mark := inner.cells[cr][cc]; mark != EmptyCell {
						mini.Cells = append(mini.Cells, CellSnapshot{Row: cr, Col: cc, Mark: mark})
					}
				}
			}

			snapshot.MiniBoards = append(snapshot.MiniBoards, mini)
		}
	}

	return snapshot
}

// Restore builds a game in the snapshotted shape. The caller replays the events recorded after
// snapshot.Version on top of it.
func Restore(snapshot Snapshot) (*Game, error) {
	if snapshot.GameID == "" || snapshot.Version <= 0 {
		return nil, fmt.Errorf("%w: missing game id or version", ErrInvalidSnapshot)
	}

	switch snapshot.Status {
	case StatusInProgress, StatusWon, StatusDrawn:
	default:
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidSnapshot, snapshot.Status)
	}

	var board OuterBoard
	for _, mini := range snapshot.MiniBoards {
		if !validIndex(mini.Row) || !validIndex(mini.Col) {
			return nil, fmt.Errorf("%w: mini board (%d,%d)", ErrInvalidSnapshot, mini.Row, mini.Col)
		}

		inner := &board.boards[mini.Row][mini.Col]
		for _, cell := range mini.Cells {
			if !validIndex(cell.Row) || !validIndex(cell.Col) {
				return nil, fmt.Errorf("%w: cell (%d,%d)", ErrInvalidSnapshot, cell.Row, cell.Col)
			}

			if cell.Mark != PlayerX && cell.Mark != PlayerO {
				return nil, fmt.Errorf("%w: mark %q", ErrInvalidSnapshot, cell.Mark)
			}

			inner.cells[cell.Row][cell.Col] = cell.Mark
		}

		inner.winner = checkWinner(inner.cells)
		if inner.winner != mini.Winner {
			return nil, fmt.Errorf("%w: mini board (%d,%d) winner %q does not match its cells",
				ErrInvalidSnapshot, mini.Row, mini.Col, mini.Winner)
		}
	}

	board.winner = checkWinner(board.winnersGrid())

	return &Game{
		id:        snapshot.GameID,
		playerXID: snapshot.PlayerXID,
		playerOID: snapshot.PlayerOID,
		board:     board,
		status:    snapshot.Status,
		winnerID:  snapshot.WinnerID,
		version:   snapshot.Version,
	}, nil
}

// SnapshotCauseFor decides whether the pending events of game warrant a snapshot.
// threshold <= 0 falls back to DefaultEventsUntilSnapshot.
func SnapshotCauseFor(game *Game, latestSnapshotVersion, threshold int) (SnapshotCause, bool) {
	if threshold <= 0 {
		threshold = DefaultEventsUntilSnapshot
	}

	miniBoardWon := false
	for _, event := range game.pending {
		switch event.(type) {
		case FullGameWon, GameDrawn:
			return CauseGameWon, true
		case MiniBoardWon:
			miniBoardWon = true
		}
	}

	if miniBoardWon {
		return CauseMiniBoardWon, true
	}

	if game.version-latestSnapshotVersion >= threshold {
		return CausePeriodicThresholdReached, true
	}

	return "", false
}
