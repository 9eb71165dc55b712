package entity

// Mark is the content of a cell or the winner of a board.
type Mark string

const (
	EmptyCell Mark = ""
	PlayerX   Mark = "X"
	PlayerO   Mark = "O"
)

const boardSize = 3

// winLines holds the (row, col) positions of the 3 rows, 3 columns and 2 diagonals.
var winLines = [8][3][2]int{
	{{0, 0}, {0, 1}, {0, 2}},
	{{1, 0}, {1, 1}, {1, 2}},
	{{2, 0}, {2, 1}, {2, 2}},
	{{0, 0}, {1, 0}, {2, 0}},
	{{0, 1}, {1, 1}, {2, 1}},
	{{0, 2}, {1, 2}, {2, 2}},
	{{0, 0}, {1, 1}, {2, 2}},
	{{0, 2}, {1, 1}, {2, 0}},
}

// checkWinner returns the mark owning a full line of grid, or EmptyCell.
// The same check decides inner boards (over cells) and the outer board (over inner winners).
func checkWinner(grid [boardSize][boardSize]Mark) Mark {
	for _, line := range winLines {
		first := grid[line[0][0]][line[0][1]]
		if first == EmptyCell {
			continue
		}

		if grid[line[1][0]][line[1][1]] == first && grid[line[2][0]][line[2][1]] == first {
			return first
		}
	}

	return EmptyCell
}

func validIndex(i int) bool {
	return i >= 0 && i < boardSize
}

// Cell is a read-only copy of one cell of an inner board.
type Cell struct {
	Row  int  `json:"row"`
	Col  int  `json:"col"`
	Mark Mark `json:"mark"`
}

// InnerBoard is one of the 9 sub-boards. It is a plain value: every copy is independent.
type InnerBoard struct {
	cells  [boardSize][boardSize]Mark
	winner Mark
}

func (that InnerBoard) Cell(row, col int) (Cell, error) {
	if !validIndex(row) || !validIndex(col) {
		return Cell{}, ErrInvalidCell
	}

	return Cell{Row: row, Col: col, Mark: that.cells[row][col]}, nil
}

func (that InnerBoard) Cells() [boardSize][boardSize]Cell {
	var cells [boardSize][boardSize]Cell
	for r := range boardSize {
		for c := range boardSize {
			cells[r][c] = Cell{Row: r, Col: c, Mark: that.cells[r][c]}
		}
	}

	return cells
}

func (that InnerBoard) Winner() Mark {
	return that.winner
}

func (that InnerBoard) IsWon() bool {
	return that.winner != EmptyCell
}

func (that InnerBoard) IsFull() bool {
	return that.MarkedCount() == boardSize*boardSize
}

func (that InnerBoard) IsDraw() bool {
	return that.IsFull() && !that.IsWon()
}

func (that InnerBoard) IsEmpty() bool {
	return that.MarkedCount() == 0
}

// IsCompleted reports whether the board no longer accepts moves.
func (that InnerBoard) IsCompleted() bool {
	return that.IsWon() || that.IsFull()
}

func (that InnerBoard) MarkedCount() int {
	count := 0
	for r := range boardSize {
		for c := range boardSize {
			if that.cells[r][c] != EmptyCell {
				count++
			}
		}
	}

	return count
}

// mark places mark at (row, col). A decided board or an occupied cell is left untouched.
func (that *InnerBoard) mark(row, col int, mark Mark) bool {
	if that.winner != EmptyCell || that.cells[row][col] != EmptyCell {
		return false
	}

	that.cells[row][col] = mark
	that.winner = checkWinner(that.cells)

	return true
}

// OuterBoard is the 3x3 grid of inner boards.
type OuterBoard struct {
	boards [boardSize][boardSize]InnerBoard
	winner Mark
}

func (that OuterBoard) InnerBoard(row, col int) (InnerBoard, error) {
	if !validIndex(row) || !validIndex(col) {
		return InnerBoard{}, ErrInvalidCell
	}

	return that.boards[row][col], nil
}

func (that OuterBoard) Winner() Mark {
	return that.winner
}

// IsPlayable reports whether the inner board at (row, col) still accepts moves.
func (that OuterBoard) IsPlayable(row, col int) bool {
	if !validIndex(row) || !validIndex(col) {
		return false
	}

	board := that.boards[row][col]

	return board.winner == EmptyCell && !board.IsFull()
}

func (that OuterBoard) TotalMoves() int {
	total := 0
	for r := range boardSize {
		for c := range boardSize {
			total += that.boards[r][c].MarkedCount()
		}
	}

	return total
}

// AllCompleted reports whether every inner board is full or decided.
func (that OuterBoard) AllCompleted() bool {
	for r := range boardSize {
		for c := range boardSize {
			if !that.boards[r][c].IsCompleted() {
				return false
			}
		}
	}

	return true
}

func (that OuterBoard) winnersGrid() [boardSize][boardSize]Mark {
	var grid [boardSize][boardSize]Mark
	for r := range boardSize {
		for c := range boardSize {
			grid[r][c] = that.boards[r][c].winner
		}
	}

	return grid
}

func (that *OuterBoard) mark(boardRow, boardCol, cellRow, cellCol int, mark Mark) bool {
	if !validIndex(boardRow) || !validIndex(boardCol) || !validIndex(cellRow) || !validIndex(cellCol) {
		return false
	}

	if !that.boards[boardRow][boardCol].mark(cellRow, cellCol, mark) {
		return false
	}

	that.winner = checkWinner(that.winnersGrid())

	return true
}
