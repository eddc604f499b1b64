package widgets

// Grid sizing defaults: a four-cell row matches the panel the original
// dashboard ships on, and every instance widget starts as one cell.
const (
	defaultRowCapacity  = 4
	defaultWidgetWidth  = 1
	defaultWidgetHeight = 1
)

// nextSlot packs a new widget of the given size onto the grid: it goes
// after the rightmost widget on the bottom row when the row capacity
// still allows, otherwise it opens a new row at x=0 below everything
// placed so far.
func nextSlot(existing []Widget, width, height, rowCapacity int) Layout {
	if len(existing) == 0 {
		return Layout{X: 0, Y: 0, Width: width, Height: height}
	}

	bottom := 0
	for _, w := range existing {
		if w.Layout.Y > bottom {
			bottom = w.Layout.Y
		}
	}

	nextX := 0
	rowHeight := 0
	for _, w := range existing {
		if w.Layout.Y != bottom {
			continue
		}
		if right := w.Layout.X + w.Layout.Width; right > nextX {
			nextX = right
		}
		if w.Layout.Height > rowHeight {
			rowHeight = w.Layout.Height
		}
	}

	if nextX+width <= rowCapacity {
		return Layout{X: nextX, Y: bottom, Width: width, Height: height}
	}
	return Layout{X: 0, Y: bottom + rowHeight, Width: width, Height: height}
}
