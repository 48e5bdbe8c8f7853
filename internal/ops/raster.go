package ops

import (
	"fmt"
	"math"

	"github.com/Imageomics/phenopype/internal/annotation"
	"github.com/Imageomics/phenopype/internal/workspace"
)

// colours usable in draw arguments. Default drawing colour is lime.
var colours = map[string][3]uint8{
	"lime":  {0, 255, 0},
	"green": {0, 128, 0},
	"red":   {255, 0, 0},
	"blue":  {0, 0, 255},
	"black": {0, 0, 0},
	"white": {255, 255, 255},
}

func colourOrDefault(name, def string) [3]uint8 {
	if c, ok := colours[name]; ok {
		return c
	}
	return colours[def]
}

// parsePoints reads a [[x, y], ...] argument value.
func parsePoints(v any) ([]annotation.Point, error) {
	seq, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("coordinates must be a sequence of [x, y] pairs")
	}
	out := make([]annotation.Point, 0, len(seq))
	for _, e := range seq {
		pair, ok := e.([]any)
		if !ok || len(pair) != 2 {
			return nil, fmt.Errorf("coordinate %v is not an [x, y] pair", e)
		}
		x, okX := asInt(pair[0])
		y, okY := asInt(pair[1])
		if !okX || !okY {
			return nil, fmt.Errorf("coordinate %v is not integral", e)
		}
		out = append(out, annotation.Point{X: x, Y: y})
	}
	return out, nil
}

// parsePolygons reads a [[[x, y], ...], ...] argument value.
func parsePolygons(v any) ([][]annotation.Point, error) {
	seq, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("polygons must be a sequence of point lists")
	}
	out := make([][]annotation.Point, 0, len(seq))
	for _, e := range seq {
		pts, err := parsePoints(e)
		if err != nil {
			return nil, err
		}
		out = append(out, pts)
	}
	return out, nil
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		if n == math.Trunc(n) {
			return int(n), true
		}
	}
	return 0, false
}

// otsu computes the Otsu threshold of a grayscale buffer.
func otsu(b *workspace.Buffer) uint8 {
	var hist [256]int
	for _, v := range b.Pix {
		hist[v]++
	}
	total := len(b.Pix)

	var sum float64
	for i, n := range hist {
		sum += float64(i) * float64(n)
	}

	var sumB, wB float64
	var best float64
	var threshold uint8
	for t := 0; t < 256; t++ {
		wB += float64(hist[t])
		if wB == 0 {
			continue
		}
		wF := float64(total) - wB
		if wF == 0 {
			break
		}
		sumB += float64(t) * float64(hist[t])
		mB := sumB / wB
		mF := (sum - sumB) / wF
		between := wB * wF * (mB - mF) * (mB - mF)
		if between > best {
			best = between
			threshold = uint8(t)
		}
	}
	return threshold
}

// boxBlur applies a kernel-size box blur per channel.
func boxBlur(b *workspace.Buffer, kernel int) {
	if kernel < 3 {
		return
	}
	if kernel%2 == 0 {
		kernel++
	}
	r := kernel / 2
	src := b.Clone()
	for y := 0; y < b.H; y++ {
		for x := 0; x < b.W; x++ {
			for c := 0; c < b.C; c++ {
				sum, n := 0, 0
				for dy := -r; dy <= r; dy++ {
					for dx := -r; dx <= r; dx++ {
						xx, yy := x+dx, y+dy
						if xx < 0 || yy < 0 || xx >= b.W || yy >= b.H {
							continue
						}
						sum += int(src.At(xx, yy, c))
						n++
					}
				}
				b.Set(x, y, c, uint8(sum/n))
			}
		}
	}
}

// morph applies one erode or dilate pass with a square kernel.
func morph(b *workspace.Buffer, dilate bool, kernel int) {
	if kernel < 3 {
		kernel = 3
	}
	if kernel%2 == 0 {
		kernel++
	}
	r := kernel / 2
	src := b.Clone()
	for y := 0; y < b.H; y++ {
		for x := 0; x < b.W; x++ {
			for c := 0; c < b.C; c++ {
				var ext uint8
				if !dilate {
					ext = 255
				}
				for dy := -r; dy <= r; dy++ {
					for dx := -r; dx <= r; dx++ {
						v := src.At(x+dx, y+dy, c)
						if dilate && v > ext {
							ext = v
						}
						if !dilate && v < ext {
							ext = v
						}
					}
				}
				b.Set(x, y, c, ext)
			}
		}
	}
}

// fillPolygon sets value inside the polygon using even-odd scanline rule.
func fillPolygon(b *workspace.Buffer, poly []annotation.Point, value uint8) {
	if len(poly) < 3 {
		return
	}
	minY, maxY := poly[0].Y, poly[0].Y
	for _, p := range poly {
		if p.Y < minY {
			minY = p.Y
		}
		if p.Y > maxY {
			maxY = p.Y
		}
	}
	for y := max(0, minY); y <= min(b.H-1, maxY); y++ {
		var xs []int
		j := len(poly) - 1
		for i := 0; i < len(poly); i++ {
			a, c := poly[i], poly[j]
			if (a.Y <= y && c.Y > y) || (c.Y <= y && a.Y > y) {
				x := a.X + (y-a.Y)*(c.X-a.X)/(c.Y-a.Y)
				xs = append(xs, x)
			}
			j = i
		}
		sortInts(xs)
		for i := 0; i+1 < len(xs); i += 2 {
			lo, hi := xs[i], xs[i+1]
			if lo > hi {
				lo, hi = hi, lo
			}
			for x := max(0, lo); x <= min(b.W-1, hi); x++ {
				for c := 0; c < b.C; c++ {
					b.Set(x, y, c, value)
				}
			}
		}
	}
}

// fillPolygonColour fills the polygon with a colour on a multi-channel
// buffer using the even-odd scanline rule.
func fillPolygonColour(b *workspace.Buffer, poly []annotation.Point, col [3]uint8) {
	if len(poly) < 3 {
		return
	}
	minY, maxY := poly[0].Y, poly[0].Y
	for _, p := range poly {
		if p.Y < minY {
			minY = p.Y
		}
		if p.Y > maxY {
			maxY = p.Y
		}
	}
	for y := max(0, minY); y <= min(b.H-1, maxY); y++ {
		var xs []int
		j := len(poly) - 1
		for i := 0; i < len(poly); i++ {
			a, c := poly[i], poly[j]
			if (a.Y <= y && c.Y > y) || (c.Y <= y && a.Y > y) {
				xs = append(xs, a.X+(y-a.Y)*(c.X-a.X)/(c.Y-a.Y))
			}
			j = i
		}
		sortInts(xs)
		for i := 0; i+1 < len(xs); i += 2 {
			lo, hi := xs[i], xs[i+1]
			if lo > hi {
				lo, hi = hi, lo
			}
			for x := max(0, lo); x <= min(b.W-1, hi); x++ {
				for c := 0; c < b.C; c++ {
					b.Set(x, y, c, col[c%3])
				}
			}
		}
	}
}

// sortInts puts scanline crossings in ascending order (insertion sort,
// crossing counts are tiny).
func sortInts(xs []int) {
	for i := 1; i < len(xs); i++ {
		for j := i; j > 0 && xs[j] < xs[j-1]; j-- {
			xs[j], xs[j-1] = xs[j-1], xs[j]
		}
	}
}

// drawLine rasterizes a line segment with the given colour and width.
func drawLine(b *workspace.Buffer, from, to annotation.Point, col [3]uint8, width int) {
	if width < 1 {
		width = 1
	}
	dx := abs(to.X - from.X)
	dy := -abs(to.Y - from.Y)
	sx, sy := 1, 1
	if from.X > to.X {
		sx = -1
	}
	if from.Y > to.Y {
		sy = -1
	}
	err := dx + dy
	x, y := from.X, from.Y
	for {
		drawDot(b, x, y, col, width)
		if x == to.X && y == to.Y {
			break
		}
		e2 := 2 * err
		if e2 >= dy {
			err += dy
			x += sx
		}
		if e2 <= dx {
			err += dx
			y += sy
		}
	}
}

// drawDot paints a filled square of side width centred on (x, y).
func drawDot(b *workspace.Buffer, x, y int, col [3]uint8, width int) {
	r := width / 2
	for dy := -r; dy <= r; dy++ {
		for dx := -r; dx <= r; dx++ {
			for c := 0; c < b.C; c++ {
				b.Set(x+dx, y+dy, c, col[c%3])
			}
		}
	}
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
