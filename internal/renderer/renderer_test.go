package renderer

import (
	"image"
	"image/color"
	"testing"

	"github.com/maax3v3/brickify/internal/brick"
	"github.com/maax3v3/brickify/internal/palette"
	"github.com/maax3v3/brickify/internal/raster"
	"github.com/maax3v3/brickify/internal/tiler"
)

func TestBitmapFont_MeasureString(t *testing.T) {
	bf := NewBitmapFont()

	tests := []struct {
		name         string
		text         string
		size         int
		wantW, wantH int
	}{
		{
			name: "empty string",
			text: "", size: 14,
			wantW: 0, wantH: 0,
		},
		{
			name: "single digit scale 1",
			text: "5", size: 7,
			wantW: 5, wantH: 7,
		},
		{
			name: "two digits scale 1",
			text: "12", size: 7,
			// 2 * (5*1) + (2-1)*1 = 11
			wantW: 11, wantH: 7,
		},
		{
			name: "single digit scale 2",
			text: "5", size: 14,
			wantW: 10, wantH: 14,
		},
		{
			name: "size smaller than glyph height uses scale 1",
			text: "0", size: 3,
			wantW: 5, wantH: 7,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, h := bf.MeasureString(tt.text, tt.size)
			if w != tt.wantW || h != tt.wantH {
				t.Errorf("MeasureString(%q, %d) = (%d, %d), want (%d, %d)",
					tt.text, tt.size, w, h, tt.wantW, tt.wantH)
			}
		})
	}
}

func TestGlyphs_WellFormed(t *testing.T) {
	for r, g := range glyphs {
		for i, line := range g {
			if len(line) != glyphWidth {
				t.Errorf("glyph %q row %d has width %d", r, i, len(line))
			}
		}
	}
	if len(glyphs) != 10 {
		t.Errorf("expected 10 digit glyphs, got %d", len(glyphs))
	}
}

func whiteCanvas(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, color.RGBA{255, 255, 255, 255})
		}
	}
	return img
}

func countBlack(img *image.RGBA) int {
	n := 0
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if img.RGBAAt(x, y) == (color.RGBA{0, 0, 0, 255}) {
				n++
			}
		}
	}
	return n
}

func TestBitmapFont_DrawString_WritesPixels(t *testing.T) {
	img := whiteCanvas(50, 50)
	NewBitmapFont().DrawString(img, "1", 25, 25, color.Black, 7)

	// "1" has 10 inked pixels at scale 1.
	if got := countBlack(img); got != 10 {
		t.Errorf("expected 10 inked pixels, got %d", got)
	}
}

func TestBitmapFont_DrawString_UnknownGlyph(t *testing.T) {
	img := whiteCanvas(50, 50)
	NewBitmapFont().DrawString(img, "X", 25, 25, color.Black, 7)
	if got := countBlack(img); got != 0 {
		t.Fatalf("unexpected %d black pixels for unknown glyph", got)
	}
}

func TestBitmapFont_DrawString_Clipped(t *testing.T) {
	img := whiteCanvas(4, 4)
	// Must not panic when the text runs off every edge.
	NewBitmapFont().DrawString(img, "888", 2, 2, color.Black, 21)
}

func TestBitmapFont_ImplementsFontRenderer(t *testing.T) {
	var _ FontRenderer = (*BitmapFont)(nil)
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.CellSize <= 0 || cfg.LegendPadding <= 0 || cfg.LegendCircleSize <= 0 ||
		cfg.LegendSpacing <= 0 || cfg.LegendMargin <= 0 {
		t.Errorf("default config has non-positive values: %+v", cfg)
	}
}

func tiledGrid(t *testing.T, w, h int, fill func(x, y int) (int, bool)) (*raster.Grid, []tiler.Placement) {
	t.Helper()
	g := raster.NewGrid(w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c, active := fill(x, y)
			g.Colors[y*w+x] = uint8(c)
			g.Active[y*w+x] = active
		}
	}
	return g, tiler.Tile(g, brick.Default)
}

func TestRender_OutputDimensions(t *testing.T) {
	g, ps := tiledGrid(t, 10, 6, func(x, y int) (int, bool) { return x % 2, true })
	cfg := DefaultConfig()
	cfg.CellSize = 8

	out := Render(g, ps, palette.Default(), NewBitmapFont(), cfg)

	if out.Bounds().Dx() != 80 {
		t.Errorf("output width: got %d, want 80", out.Bounds().Dx())
	}
	if out.Bounds().Dy() <= 48 {
		t.Errorf("output height should exceed mosaic height (legend), got %d", out.Bounds().Dy())
	}
}

func TestRender_PlateColorsAndBackground(t *testing.T) {
	// Left half red (palette 2), right quarter inactive.
	g, ps := tiledGrid(t, 4, 2, func(x, y int) (int, bool) { return 2, x < 3 })
	cfg := DefaultConfig()
	cfg.CellSize = 10
	cfg.Studs = false
	pal := palette.Default()

	out := Render(g, ps, pal, NewBitmapFont(), cfg)

	red := pal[2]
	if got := out.RGBAAt(5+10, 5); got != (color.RGBA{red.R, red.G, red.B, 255}) {
		t.Errorf("plate interior: got %v, want %v", got, red)
	}
	if got := out.RGBAAt(35, 5); got != cfg.Background {
		t.Errorf("inactive cell: got %v, want background", got)
	}
	// Outline pixels are darker than the plate body.
	edge := out.RGBAAt(0, 0)
	if int(edge.R)+int(edge.G)+int(edge.B) >= int(red.R)+int(red.G)+int(red.B) {
		t.Errorf("outline %v is not darker than %v", edge, red)
	}
}

func TestRender_StudsLighter(t *testing.T) {
	g, ps := tiledGrid(t, 1, 1, func(x, y int) (int, bool) { return 1, true })
	cfg := DefaultConfig()
	cfg.CellSize = 20
	pal := palette.Default()

	out := Render(g, ps, pal, NewBitmapFont(), cfg)

	body := out.RGBAAt(2, 2)
	stud := out.RGBAAt(10, 10)
	if int(stud.R)+int(stud.G)+int(stud.B) <= int(body.R)+int(body.G)+int(body.B) {
		t.Errorf("stud %v is not lighter than body %v", stud, body)
	}
}

func TestRender_NoPlacements(t *testing.T) {
	g, ps := tiledGrid(t, 5, 5, func(x, y int) (int, bool) { return 0, false })
	if len(ps) != 0 {
		t.Fatalf("expected no placements, got %d", len(ps))
	}
	cfg := DefaultConfig()
	out := Render(g, ps, palette.Default(), NewBitmapFont(), cfg)

	// No legend, so the output is exactly the mosaic.
	if out.Bounds().Dy() != 5*cfg.CellSize {
		t.Errorf("expected height %d (no legend), got %d", 5*cfg.CellSize, out.Bounds().Dy())
	}
}

func TestUsedColors(t *testing.T) {
	ps := []tiler.Placement{{Color: 5}, {Color: 1}, {Color: 5}, {Color: 0}, {Color: 9}}
	got := usedColors(ps)
	want := []int{0, 1, 5}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestCalculateLegendHeight(t *testing.T) {
	cfg := DefaultConfig()
	if h := calculateLegendHeight(0, cfg, 200); h != 0 {
		t.Errorf("expected 0 legend height for no entries, got %d", h)
	}

	row := cfg.LegendCircleSize + cfg.LegendSpacing
	one := calculateLegendHeight(2, cfg, 1000)
	if one != 2*cfg.LegendPadding+row {
		t.Errorf("one row: got %d", one)
	}
	// A narrow image wraps every item onto its own row.
	if narrow := calculateLegendHeight(3, cfg, 10); narrow != 2*cfg.LegendPadding+3*row {
		t.Errorf("narrow: got %d", narrow)
	}
}
