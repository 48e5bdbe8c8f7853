package ops

import (
	"github.com/Imageomics/phenopype/internal/annotation"
	"github.com/Imageomics/phenopype/internal/workspace"
)

// traceContours extracts the outer boundary of every 8-connected
// foreground component in a binary buffer, largest-first ordering is not
// guaranteed; components smaller than minArea pixels are dropped.
func traceContours(b *workspace.Buffer, minArea int) [][]annotation.Point {
	labels := make([]int, b.W*b.H)
	next := 0
	var out [][]annotation.Point

	for y := 0; y < b.H; y++ {
		for x := 0; x < b.W; x++ {
			idx := y*b.W + x
			if b.Pix[idx] == 0 || labels[idx] != 0 {
				continue
			}
			next++
			area := flood(b, labels, x, y, next)
			if area < minArea {
				continue
			}
			out = append(out, traceBoundary(b, x, y))
		}
	}
	return out
}

// flood labels the 8-connected component containing (x, y) and returns
// its pixel count.
func flood(b *workspace.Buffer, labels []int, x, y, label int) int {
	stack := []annotation.Point{{X: x, Y: y}}
	labels[y*b.W+x] = label
	area := 0
	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		area++
		for dy := -1; dy <= 1; dy++ {
			for dx := -1; dx <= 1; dx++ {
				xx, yy := p.X+dx, p.Y+dy
				if xx < 0 || yy < 0 || xx >= b.W || yy >= b.H {
					continue
				}
				idx := yy*b.W + xx
				if b.Pix[idx] != 0 && labels[idx] == 0 {
					labels[idx] = label
					stack = append(stack, annotation.Point{X: xx, Y: yy})
				}
			}
		}
	}
	return area
}

// mooreOffsets is the clockwise 8-neighborhood starting left.
var mooreOffsets = [8]annotation.Point{
	{X: -1, Y: 0}, {X: -1, Y: -1}, {X: 0, Y: -1}, {X: 1, Y: -1},
	{X: 1, Y: 0}, {X: 1, Y: 1}, {X: 0, Y: 1}, {X: -1, Y: 1},
}

// traceBoundary walks the outer boundary of the component whose top-left
// foreground pixel is (sx, sy), using Moore neighbor tracing.
func traceBoundary(b *workspace.Buffer, sx, sy int) []annotation.Point {
	fg := func(x, y int) bool {
		return x >= 0 && y >= 0 && x < b.W && y < b.H && b.Pix[y*b.W+x] != 0
	}

	start := annotation.Point{X: sx, Y: sy}
	contour := []annotation.Point{start}
	cur := start
	// entered the start pixel scanning from the left
	backtrack := 0

	for {
		found := false
		for i := 0; i < 8; i++ {
			dir := (backtrack + i) % 8
			off := mooreOffsets[dir]
			nx, ny := cur.X+off.X, cur.Y+off.Y
			if fg(nx, ny) {
				// next backtrack: one step clockwise past the direction
				// we came from
				backtrack = (dir + 5) % 8
				cur = annotation.Point{X: nx, Y: ny}
				found = true
				break
			}
		}
		if !found {
			// isolated pixel
			return contour
		}
		if cur == start {
			return contour
		}
		contour = append(contour, cur)
		if len(contour) > 4*b.W*b.H {
			// safety stop; malformed tracing cannot loop forever
			return contour
		}
	}
}

// thin applies Zhang-Suen thinning until stable, reducing foreground to a
// one-pixel-wide skeleton.
func thin(b *workspace.Buffer) {
	at := func(x, y int) int {
		if x < 0 || y < 0 || x >= b.W || y >= b.H || b.Pix[y*b.W+x] == 0 {
			return 0
		}
		return 1
	}

	for {
		changed := false
		for phase := 0; phase < 2; phase++ {
			var remove []int
			for y := 0; y < b.H; y++ {
				for x := 0; x < b.W; x++ {
					if at(x, y) == 0 {
						continue
					}
					p2, p3, p4 := at(x, y-1), at(x+1, y-1), at(x+1, y)
					p5, p6, p7 := at(x+1, y+1), at(x, y+1), at(x-1, y+1)
					p8, p9 := at(x-1, y), at(x-1, y-1)

					bSum := p2 + p3 + p4 + p5 + p6 + p7 + p8 + p9
					if bSum < 2 || bSum > 6 {
						continue
					}
					seq := []int{p2, p3, p4, p5, p6, p7, p8, p9, p2}
					a := 0
					for i := 0; i < 8; i++ {
						if seq[i] == 0 && seq[i+1] == 1 {
							a++
						}
					}
					if a != 1 {
						continue
					}
					if phase == 0 {
						if p2*p4*p6 != 0 || p4*p6*p8 != 0 {
							continue
						}
					} else {
						if p2*p4*p8 != 0 || p2*p6*p8 != 0 {
							continue
						}
					}
					remove = append(remove, y*b.W+x)
				}
			}
			for _, idx := range remove {
				b.Pix[idx] = 0
			}
			if len(remove) > 0 {
				changed = true
			}
		}
		if !changed {
			return
		}
	}
}

// skeletonSegments converts a thinned buffer into polylines by walking
// unvisited skeleton pixels along 8-connected neighbors.
func skeletonSegments(b *workspace.Buffer) [][]annotation.Point {
	visited := make([]bool, b.W*b.H)
	var lines [][]annotation.Point

	for y := 0; y < b.H; y++ {
		for x := 0; x < b.W; x++ {
			idx := y*b.W + x
			if b.Pix[idx] == 0 || visited[idx] {
				continue
			}
			line := []annotation.Point{{X: x, Y: y}}
			visited[idx] = true
			cx, cy := x, y
			for {
				nx, ny, ok := nextSkeletonPixel(b, visited, cx, cy)
				if !ok {
					break
				}
				visited[ny*b.W+nx] = true
				line = append(line, annotation.Point{X: nx, Y: ny})
				cx, cy = nx, ny
			}
			lines = append(lines, line)
		}
	}
	return lines
}

func nextSkeletonPixel(b *workspace.Buffer, visited []bool, x, y int) (int, int, bool) {
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			if dx == 0 && dy == 0 {
				continue
			}
			nx, ny := x+dx, y+dy
			if nx < 0 || ny < 0 || nx >= b.W || ny >= b.H {
				continue
			}
			idx := ny*b.W + nx
			if b.Pix[idx] != 0 && !visited[idx] {
				return nx, ny, true
			}
		}
	}
	return 0, 0, false
}
