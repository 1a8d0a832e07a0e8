package sequencer

// Grid holds a normalized velocity per step (column) and lane (row)
type Grid struct {
	cols  int
	rows  int
	cells []float64 // row-major
}

func NewGrid(cols, rows int) *Grid {
	if cols < 0 {
		cols = 0
	}
	if rows < 0 {
		rows = 0
	}
	return &Grid{cols: cols, rows: rows, cells: make([]float64, cols*rows)}
}

func (g *Grid) Cols() int { return g.cols }
func (g *Grid) Rows() int { return g.rows }

// Get returns the cell value, 0 outside the grid
func (g *Grid) Get(col, row int) float64 {
	if !g.contains(col, row) {
		return 0
	}
	return g.cells[row*g.cols+col]
}

// Set stores v clamped to [0,1]. Cells outside the grid are ignored.
func (g *Grid) Set(col, row int, v float64) {
	if !g.contains(col, row) {
		return
	}
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	g.cells[row*g.cols+col] = v
}

// Resize changes the column count. Overlapping cells are kept, new ones are
// empty, columns past the new width are dropped.
func (g *Grid) Resize(cols int) {
	if cols < 0 {
		cols = 0
	}
	if cols == g.cols {
		return
	}
	cells := make([]float64, cols*g.rows)
	keep := min(cols, g.cols)
	for row := 0; row < g.rows; row++ {
		copy(cells[row*cols:row*cols+keep], g.cells[row*g.cols:row*g.cols+keep])
	}
	g.cols = cols
	g.cells = cells
}

// Tile repeats the first n columns across the rest of the grid
func (g *Grid) Tile(n int) {
	if n <= 0 || n >= g.cols {
		return
	}
	for row := 0; row < g.rows; row++ {
		line := g.cells[row*g.cols : (row+1)*g.cols]
		for col := n; col < g.cols; col++ {
			line[col] = line[col%n]
		}
	}
}

func (g *Grid) Clear() {
	clear(g.cells)
}

// ClearRow empties every step of one lane
func (g *Grid) ClearRow(row int) {
	if row < 0 || row >= g.rows {
		return
	}
	clear(g.cells[row*g.cols : (row+1)*g.cols])
}

// Empty reports whether no cell is set
func (g *Grid) Empty() bool {
	for _, v := range g.cells {
		if v > 0 {
			return false
		}
	}
	return true
}

func (g *Grid) contains(col, row int) bool {
	return col >= 0 && col < g.cols && row >= 0 && row < g.rows
}
