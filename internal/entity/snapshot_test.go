package entity

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rocketscienceinc/ultimate-tictactoe-backend/testing/fixture"
)

func TestSnapshotCauseFor(t *testing.T) {
	t.Run("Fresh game needs no snapshot", func(t *testing.T) {
		game := newTestGame()

		_, ok := SnapshotCauseFor(game, 0, 20)
		assert.False(t, ok)
	})

	t.Run("Periodic threshold", func(t *testing.T) {
		// Given: a game at version 3 with no snapshot yet
		game := newTestGame()
		playScript(t, game, fixture.XWins()[:2])

		// Then: a threshold of 3 is reached, a threshold of 4 is not
		cause, ok := SnapshotCauseFor(game, 0, 3)
		require.True(t, ok)
		assert.Equal(t, CausePeriodicThresholdReached, cause)

		_, ok = SnapshotCauseFor(game, 0, 4)
		assert.False(t, ok)

		_, ok = SnapshotCauseFor(game, 1, 3)
		assert.False(t, ok)
	})

	t.Run("Default threshold", func(t *testing.T) {
		// Given: 19 events without any inner board won
		game := newTestGame()
		playScript(t, game, fixture.Drawn()[:4])
		game.ClearPendingEvents()
		game.version = 19

		_, ok := SnapshotCauseFor(game, 0, 0)
		assert.False(t, ok)

		game.version = 20
		cause, ok := SnapshotCauseFor(game, 0, 0)
		require.True(t, ok)
		assert.Equal(t, CausePeriodicThresholdReached, cause)
	})

	t.Run("Mini board won", func(t *testing.T) {
		game := newTestGame()
		playScript(t, game, fixture.XWins()[:4])
		game.ClearPendingEvents()

		// When: X completes board (0,0)
		move := fixture.XWins()[4]
		require.NoError(t, game.PlayMove(playerX, move.MiniRow, move.MiniCol, move.CellRow, move.CellCol))

		cause, ok := SnapshotCauseFor(game, 0, 100)
		require.True(t, ok)
		assert.Equal(t, CauseMiniBoardWon, cause)
	})

	t.Run("Terminal event wins over mini board", func(t *testing.T) {
		for _, moves := range [][]fixture.Move{fixture.XWins(), fixture.Drawn()} {
			game := newTestGame()
			playScript(t, game, moves[:len(moves)-1])
			game.ClearPendingEvents()

			last := moves[len(moves)-1]
			require.NoError(t, game.PlayMove(playerFor(last), last.MiniRow, last.MiniCol, last.CellRow, last.CellCol))

			cause, ok := SnapshotCauseFor(game, game.Version(), 100)
			require.True(t, ok)
			assert.Equal(t, CauseGameWon, cause)
		}
	})
}

func TestSnapshot_Restore(t *testing.T) {
	scripts := map[string][]fixture.Move{
		"x wins": fixture.XWins(),
		"drawn":  fixture.Drawn(),
	}

	for name, moves := range scripts {
		t.Run("Snapshot plus tail equals live "+name, func(t *testing.T) {
			// Given: the full log of a live game
			live := newTestGame()
			playScript(t, live, moves)
			events := live.PendingEvents()

			for point := 1; point <= len(events); point++ {
				// When: snapshotting after `point` events and replaying the rest
				prefix, err := Rehydrate(events[:point])
				require.NoError(t, err)

				raw, err := json.Marshal(prefix.ToSnapshot(CauseManual, createdAt))
				require.NoError(t, err)

				var snapshot Snapshot
				require.NoError(t, json.Unmarshal(raw, &snapshot))

				restored, err := Restore(snapshot)
				require.NoError(t, err)
				require.NoError(t, restored.Replay(events[point:]))

				// Then: the state matches the live game
				require.Equal(t, live.Board(), restored.Board(), "point %d", point)
				require.Equal(t, live.Status(), restored.Status(), "point %d", point)
				require.Equal(t, live.WinnerID(), restored.WinnerID(), "point %d", point)
				require.Equal(t, live.Version(), restored.Version(), "point %d", point)
			}
		})
	}

	t.Run("Projection omits empty boards", func(t *testing.T) {
		game := newTestGame()
		require.NoError(t, game.PlayMove(playerX, 2, 1, 0, 2))

		snapshot := game.ToSnapshot(CausePeriodicThresholdReached, createdAt)

		assert.Equal(t, 2, snapshot.Version)
		assert.Equal(t, CausePeriodicThresholdReached, snapshot.Cause)
		assert.Equal(t, []MiniBoardSnapshot{{
			Row:   2,
			Col:   1,
			Cells: []CellSnapshot{{Row: 0, Col: 2, Mark: PlayerX}},
		}}, snapshot.MiniBoards)
	})

	t.Run("Winner that does not match the cells", func(t *testing.T) {
		game := newTestGame()
		require.NoError(t, game.PlayMove(playerX, 0, 0, 0, 0))

		snapshot := game.ToSnapshot(CauseManual, createdAt)
		snapshot.MiniBoards[0].Winner = PlayerX

		_, err := Restore(snapshot)
		require.ErrorIs(t, err, ErrInvalidSnapshot)
	})

	t.Run("Malformed snapshots", func(t *testing.T) {
		valid := newTestGame().ToSnapshot(CauseManual, createdAt)

		noID := valid
		noID.GameID = ""

		badStatus := valid
		badStatus.Status = "paused"

		badCell := valid
		badCell.MiniBoards = []MiniBoardSnapshot{{Row: 0, Col: 0, Cells: []CellSnapshot{{Row: 0, Col: 5, Mark: PlayerX}}}}

		for _, snapshot := range []Snapshot{noID, badStatus, badCell} {
			_, err := Restore(snapshot)
			require.ErrorIs(t, err, ErrInvalidSnapshot)
		}
	})
}
