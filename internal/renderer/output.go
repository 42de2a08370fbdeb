// Package renderer draws a tiled plate layout as a PNG-ready mosaic with a
// numbered color legend underneath.
package renderer

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"slices"

	"github.com/lucasb-eyer/go-colorful"

	"github.com/maax3v3/brickify/internal/palette"
	"github.com/maax3v3/brickify/internal/raster"
	"github.com/maax3v3/brickify/internal/tiler"
)

// Config holds rendering configuration.
type Config struct {
	CellSize         int        // pixels per grid cell
	Studs            bool       // draw a stud on every covered cell
	Background       color.RGBA // inactive cells and legend area
	LegendPadding    int        // vertical padding above the legend
	LegendCircleSize int        // diameter of legend color circles
	LegendSpacing    int        // horizontal spacing between legend items
	LegendMargin     int        // left/right margin for the legend area
}

// DefaultConfig returns sensible default rendering configuration.
func DefaultConfig() Config {
	return Config{
		CellSize:         12,
		Studs:            true,
		Background:       color.RGBA{255, 255, 255, 255},
		LegendPadding:    20,
		LegendCircleSize: 30,
		LegendSpacing:    15,
		LegendMargin:     20,
	}
}

// Render draws every placement as a shaded plate over the grid area and
// appends a legend for the palette entries in use.
func Render(
	g *raster.Grid,
	placements []tiler.Placement,
	pal palette.Palette,
	font FontRenderer,
	cfg Config,
) *image.RGBA {
	cell := cfg.CellSize
	if cell < 1 {
		cell = 1
	}
	w, h := g.Width*cell, g.Height*cell

	used := usedColors(placements)
	legendHeight := calculateLegendHeight(len(used), cfg, w)
	out := image.NewRGBA(image.Rect(0, 0, w, h+legendHeight))
	fillRect(out, 0, 0, w, h+legendHeight, out.Bounds(), cfg.Background)

	for _, p := range placements {
		if p.Color < 0 || p.Color >= palette.Size {
			continue
		}
		drawPlate(out, p, pal[p.Color].ToStdColor(), cell, cfg.Studs)
	}

	drawLegend(out, used, pal, font, cfg, w, h)
	return out
}

// usedColors returns the distinct palette indices in ascending order.
func usedColors(placements []tiler.Placement) []int {
	var seen [palette.Size]bool
	var out []int
	for _, p := range placements {
		if p.Color >= 0 && p.Color < palette.Size && !seen[p.Color] {
			seen[p.Color] = true
			out = append(out, p.Color)
		}
	}
	slices.Sort(out)
	return out
}

func drawPlate(img *image.RGBA, p tiler.Placement, base color.NRGBA, cell int, studs bool) {
	x0, y0 := p.X*cell, p.Y*cell
	pw, ph := p.W*cell, p.H*cell
	b := img.Bounds()

	fillRect(img, x0, y0, pw, ph, b, base)

	if cell >= 3 {
		edge := shade(base, 0.35)
		fillRect(img, x0, y0, pw, 1, b, edge)
		fillRect(img, x0, y0+ph-1, pw, 1, b, edge)
		fillRect(img, x0, y0, 1, ph, b, edge)
		fillRect(img, x0+pw-1, y0, 1, ph, b, edge)
	}

	if !studs || cell < 6 {
		return
	}
	radius := int(math.Round(float64(cell) * 0.3))
	stud := highlight(base, 0.25)
	rim := shade(base, 0.2)
	for cy := 0; cy < p.H; cy++ {
		for cx := 0; cx < p.W; cx++ {
			mx := x0 + cx*cell + cell/2
			my := y0 + cy*cell + cell/2
			drawFilledCircle(img, mx, my, radius, stud)
			drawCircleBorder(img, mx, my, radius, rim)
		}
	}
}

// shade blends c toward black in Lab space by t.
func shade(c color.NRGBA, t float64) color.RGBA {
	return blend(c, colorful.Color{}, t)
}

// highlight blends c toward white in Lab space by t.
func highlight(c color.NRGBA, t float64) color.RGBA {
	return blend(c, colorful.Color{R: 1, G: 1, B: 1}, t)
}

func blend(c color.NRGBA, to colorful.Color, t float64) color.RGBA {
	from := colorful.Color{R: float64(c.R) / 255, G: float64(c.G) / 255, B: float64(c.B) / 255}
	r, g, b := from.BlendLab(to, t).Clamped().RGB255()
	return color.RGBA{r, g, b, 255}
}

func calculateLegendHeight(entries int, cfg Config, imgW int) int {
	if entries == 0 {
		return 0
	}
	itemsPerRow := legendItemsPerRow(cfg, imgW)
	numRows := (entries + itemsPerRow - 1) / itemsPerRow
	rowHeight := cfg.LegendCircleSize + cfg.LegendSpacing
	return cfg.LegendPadding + numRows*rowHeight + cfg.LegendPadding
}

func legendItemsPerRow(cfg Config, imgW int) int {
	itemWidth := cfg.LegendCircleSize + cfg.LegendSpacing
	if itemWidth < 1 {
		return 1
	}
	n := (imgW - 2*cfg.LegendMargin) / itemWidth
	if n < 1 {
		n = 1
	}
	return n
}

func drawLegend(img *image.RGBA, used []int, pal palette.Palette, font FontRenderer, cfg Config, imgW, drawingH int) {
	if len(used) == 0 {
		return
	}

	separatorY := drawingH + cfg.LegendPadding/2
	for x := cfg.LegendMargin; x < imgW-cfg.LegendMargin; x++ {
		img.SetRGBA(x, separatorY, color.RGBA{200, 200, 200, 255})
	}

	itemWidth := cfg.LegendCircleSize + cfg.LegendSpacing
	availableW := imgW - 2*cfg.LegendMargin
	itemsPerRow := legendItemsPerRow(cfg, imgW)
	fontSize := cfg.LegendCircleSize * 2 / 3
	radius := cfg.LegendCircleSize / 2

	for i, idx := range used {
		row := i / itemsPerRow
		col := i % itemsPerRow

		rowItemCount := min(itemsPerRow, len(used)-row*itemsPerRow)
		rowStartX := cfg.LegendMargin + (availableW-rowItemCount*itemWidth)/2

		cx := rowStartX + col*itemWidth + radius
		cy := drawingH + cfg.LegendPadding + row*(cfg.LegendCircleSize+cfg.LegendSpacing) + radius

		c := pal[idx]
		drawFilledCircle(img, cx, cy, radius, color.RGBA{c.R, c.G, c.B, 255})
		drawCircleBorder(img, cx, cy, radius, color.RGBA{100, 100, 100, 255})

		textColor := color.Color(color.Black)
		if !c.IsLight() {
			textColor = color.White
		}
		font.DrawString(img, fmt.Sprintf("%d", idx+1), cx, cy, textColor, fontSize)
	}
}

func drawFilledCircle(img *image.RGBA, cx, cy, radius int, col color.RGBA) {
	b := img.Bounds()
	for dy := -radius; dy <= radius; dy++ {
		for dx := -radius; dx <= radius; dx++ {
			if dx*dx+dy*dy <= radius*radius && image.Pt(cx+dx, cy+dy).In(b) {
				img.SetRGBA(cx+dx, cy+dy, col)
			}
		}
	}
}

func drawCircleBorder(img *image.RGBA, cx, cy, radius int, col color.RGBA) {
	b := img.Bounds()
	for angle := 0.0; angle < 2*math.Pi; angle += 0.01 {
		px := cx + int(math.Round(float64(radius)*math.Cos(angle)))
		py := cy + int(math.Round(float64(radius)*math.Sin(angle)))
		if image.Pt(px, py).In(b) {
			img.SetRGBA(px, py, col)
		}
	}
}
