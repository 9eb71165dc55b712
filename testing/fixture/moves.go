// Package fixture holds scripted ultimate tic-tac-toe games shared by package tests.
package fixture

// Move is one scripted move. Mark is "X" or "O".
type Move struct {
	Mark    string
	MiniRow int
	MiniCol int
	CellRow int
	CellCol int
}

// XWins is a 17 move game where X takes the top row of inner boards, each with its own top row,
// while O scatters non-winning marks over boards (1,0) and (2,0).
func XWins() []Move {
	xCells := [][2]int{{0, 0}, {0, 1}, {0, 2}}
	oCells := [][2]int{{0, 0}, {0, 1}, {1, 2}, {2, 1}}
	oBoards := [][2]int{{1, 0}, {2, 0}}

	var xMoves, oMoves []Move
	for board := range 3 {
		for _, cell := range xCells {
			xMoves = append(xMoves, Move{Mark: "X", MiniRow: 0, MiniCol: board, CellRow: cell[0], CellCol: cell[1]})
		}
	}

	for _, board := range oBoards {
		for _, cell := range oCells {
			oMoves = append(oMoves, Move{Mark: "O", MiniRow: board[0], MiniCol: board[1], CellRow: cell[0], CellCol: cell[1]})
		}
	}

	return interleave(xMoves, oMoves)
}

// Drawn is a 45 move game where every inner board is won in five moves and the grid of inner
// winners has no line:
//
//	X O X
//	X O O
//	O X X
func Drawn() []Move {
	order := []struct {
		winner   string
		row, col int
	}{
		{"X", 0, 0}, {"O", 0, 1}, {"X", 0, 2},
		{"O", 1, 1}, {"X", 1, 0}, {"O", 1, 2},
		{"X", 2, 1}, {"O", 2, 0}, {"X", 2, 2},
	}

	winnerCells := [][2]int{{0, 0}, {0, 1}, {0, 2}}
	loserCells := [][2]int{{1, 0}, {1, 1}}

	var moves []Move
	for _, board := range order {
		loser := "O"
		if board.winner == "O" {
			loser = "X"
		}

		for i := range winnerCells {
			cell := winnerCells[i]
			moves = append(moves, Move{Mark: board.winner, MiniRow: board.row, MiniCol: board.col, CellRow: cell[0], CellCol: cell[1]})

			if i < len(loserCells) {
				cell = loserCells[i]
				moves = append(moves, Move{Mark: loser, MiniRow: board.row, MiniCol: board.col, CellRow: cell[0], CellCol: cell[1]})
			}
		}
	}

	return moves
}

func interleave(first, second []Move) []Move {
	moves := make([]Move, 0, len(first)+len(second))
	for i := range max(len(first), len(second)) {
		if i < len(first) {
			moves = append(moves, first[i])
		}

		if i < len(second) {
			moves = append(moves, second[i])
		}
	}

	return moves
}
