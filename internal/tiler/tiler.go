// Package tiler partitions the active region of a color grid into brick
// footprints.
//
// The packer is greedy and first-fit: cells are scanned row-major, and at
// each uncovered active cell the catalog shapes are tried largest first,
// each in its declared orientation before the transposed one. The first
// footprint that stays inside the grid, covers only unused active cells and
// keeps a single color is placed. Nothing is ever revisited, so the result
// is not the minimum piece count, but it is fully determined by the scan
// order and the catalog order.
package tiler

import (
	"github.com/maax3v3/brickify/internal/brick"
	"github.com/maax3v3/brickify/internal/raster"
)

// Placement is one piece: its top-left cell, footprint as placed, part name
// and palette index.
type Placement struct {
	X, Y  int
	W, H  int
	Part  string
	Color int
}

// Area returns the number of cells the placement covers.
func (p Placement) Area() int {
	return p.W * p.H
}

// Tile covers every active cell of g with exactly one placement and leaves
// inactive cells uncovered. Placements are returned in scan order.
func Tile(g *raster.Grid, cat brick.Catalog) []Placement {
	w, h := g.Width, g.Height
	used := make([]bool, w*h)
	var out []Placement

	fits := func(x, y, pw, ph, c int) bool {
		if x+pw > w || y+ph > h {
			return false
		}
		for dy := 0; dy < ph; dy++ {
			row := (y + dy) * w
			for dx := 0; dx < pw; dx++ {
				i := row + x + dx
				if used[i] || !g.Active[i] || int(g.Colors[i]) != c {
					return false
				}
			}
		}
		return true
	}

	mark := func(x, y, pw, ph int) {
		for dy := 0; dy < ph; dy++ {
			row := (y + dy) * w
			for dx := 0; dx < pw; dx++ {
				used[row+x+dx] = true
			}
		}
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			idx := y*w + x
			if used[idx] {
				continue
			}
			if !g.Active[idx] {
				used[idx] = true
				continue
			}

			c := int(g.Colors[idx])
			p, ok := firstFit(cat, x, y, c, fits)
			if !ok {
				p = Placement{X: x, Y: y, W: 1, H: 1, Part: brick.FallbackPart, Color: c}
			}
			mark(p.X, p.Y, p.W, p.H)
			out = append(out, p)
		}
	}
	return out
}

func firstFit(cat brick.Catalog, x, y, c int, fits func(x, y, w, h, c int) bool) (Placement, bool) {
	for _, s := range cat.Shapes() {
		if fits(x, y, s.W, s.H, c) {
			return Placement{X: x, Y: y, W: s.W, H: s.H, Part: s.Part, Color: c}, true
		}
		if !s.Square() && fits(x, y, s.H, s.W, c) {
			return Placement{X: x, Y: y, W: s.H, H: s.W, Part: s.Part, Color: c}, true
		}
	}
	return Placement{}, false
}
