package engine

// FindPathToBoardingEdge runs a breadth-first search from start to the
// nearest free boarding cell. The returned path excludes start and ends on the
// boarding cell; it is empty when start already sits on the boarding row.
// Occupied and out-of-bounds cells block, except start itself. ok is false when
// no boarding cell is reachable.
func FindPathToBoardingEdge(g *Grid, start Position) (path []Position, ok bool) {
	if !g.InBounds(start) {
		return nil, false
	}
	if g.IsBoardableRow(start) {
		return []Position{}, true
	}

	w := g.Width()
	index := func(p Position) int { return p.Y*w + p.X }

	// parent[i] holds the flattened index of the previous cell, -1 for unvisited
	parent := make([]int, w*g.Height())
	for i := range parent {
		parent[i] = -1
	}
	startIdx := index(start)
	parent[startIdx] = startIdx

	queue := []Position{start}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		for _, d := range neighborOffsets {
			next := current.add(d)
			cell := g.Get(next)
			if cell == nil || cell.Occupied() {
				continue
			}
			nextIdx := index(next)
			if parent[nextIdx] != -1 {
				continue
			}
			parent[nextIdx] = index(current)

			if g.IsBoardingTarget(next) {
				return unwindPath(parent, startIdx, nextIdx, w), true
			}
			queue = append(queue, next)
		}
	}

	return nil, false
}

func unwindPath(parent []int, startIdx, endIdx, width int) []Position {
	var reversed []Position
	for i := endIdx; i != startIdx; i = parent[i] {
		reversed = append(reversed, Position{X: i % width, Y: i / width})
	}
	path := make([]Position, len(reversed))
	for i, p := range reversed {
		path[len(reversed)-1-i] = p
	}
	return path
}

// RoutableCells lists the occupied cells whose character could reach the
// boarding edge right now, in row-major order.
func RoutableCells(g *Grid) []Position {
	var out []Position
	for _, ch := range g.Occupants() {
		if _, ok := FindPathToBoardingEdge(g, ch.Home); ok {
			out = append(out, ch.Home)
		}
	}
	return out
}
