// Package brickify turns a brick-art preview image into a bill of materials:
// the plates needed to build it, grouped by part and color.
//
// The image is sampled onto a small grid, every cell is snapped to one of
// eight palette colors, an optional 64×64 mask decides which cells are
// built, and a greedy scan covers the active cells with the largest plates
// that fit.
//
// Usage as a library:
//
//	img, _ := brickify.LoadImage("preview.png")
//	result, _ := brickify.Compute(img, brickify.DefaultOptions())
//	for _, it := range result.BOM {
//		fmt.Println(it.Part, it.Color, it.Count)
//	}
//
// Or use the file-based convenience:
//
//	result, err := brickify.ComputeFile("preview.png", brickify.DefaultOptions())
package brickify

import (
	"encoding/json"
	"fmt"
	"image"
	stdcolor "image/color"

	"github.com/maax3v3/brickify/internal/aggregation"
	"github.com/maax3v3/brickify/internal/imaging"
	"github.com/maax3v3/brickify/internal/mask"
	"github.com/maax3v3/brickify/internal/palette"
	"github.com/maax3v3/brickify/internal/pipeline"
	"github.com/maax3v3/brickify/internal/raster"
	"github.com/maax3v3/brickify/internal/renderer"
)

// Resampling modes accepted in Options.Resample.
const (
	ResampleBilinear   = raster.ScalerBilinear
	ResampleNearest    = raster.ScalerNearest
	ResampleCatmullRom = raster.ScalerCatmullRom
)

// Result is the aggregated bill of materials.
type Result = aggregation.Result

// Item is one BOM line: a part in a color and how many are needed.
type Item = aggregation.Item

// MaskPolicy replaces masks with implausible coverage by a centered circle.
// The zero value keeps every mask as given.
type MaskPolicy = mask.Policy

// ErrInvalidPalette is returned when the palette is not exactly eight
// distinct hex colors and FallbackPalette is not set.
var ErrInvalidPalette = palette.ErrInvalid

// Options configures a computation.
type Options struct {
	// Palette holds exactly eight hex colors ("#RRGGBB").
	// Default: DefaultPalette().
	Palette []string

	// FallbackPalette substitutes the default palette when Palette is
	// invalid instead of failing.
	FallbackPalette bool

	// Mask is an optional 64×64 inclusion matrix. Accepted forms are
	// [][]bool, [][]int, []any (decoded JSON) and raw JSON bytes. Anything
	// that is not exactly 64×64 is ignored and every cell is built.
	Mask any

	// MaskPolicy guards against empty or full-frame masks.
	// Default: no replacement.
	MaskPolicy MaskPolicy

	// GridW and GridH are the build dimensions in studs. Default: 64×64.
	GridW, GridH int

	// Resample selects how the image is scaled to the grid.
	// Default: bilinear.
	Resample string

	// Font draws the legend numbers in Preview. If nil, a built-in bitmap
	// font is used.
	Font FontRenderer

	// CellSize is the preview size of one stud in pixels. Default: 12.
	CellSize int
}

// FontRenderer is the interface for drawing text onto images.
type FontRenderer interface {
	// DrawString draws text centered at (cx, cy) on the image with the
	// specified color and approximate height in pixels.
	DrawString(img *image.RGBA, text string, cx, cy int, col stdcolor.Color, size int)

	// MeasureString returns the approximate width and height of the text
	// at the given font size.
	MeasureString(text string, size int) (width, height int)
}

// DefaultPalette returns the eight colors used when none are given.
func DefaultPalette() []string {
	return palette.Default().Strings()
}

// DefaultOptions returns Options with sensible defaults.
func DefaultOptions() Options {
	return Options{
		Palette:  DefaultPalette(),
		GridW:    64,
		GridH:    64,
		Resample: ResampleBilinear,
		CellSize: 12,
	}
}

// LoadImage reads an image from disk. Supports PNG, JPEG, WEBP and BMP.
func LoadImage(path string) (image.Image, error) {
	return imaging.Load(path)
}

// SavePNG writes an image to disk as PNG.
func SavePNG(path string, img image.Image) error {
	return imaging.SavePNG(path, img)
}

// Compute rasterizes img onto the grid and returns the bill of materials.
func Compute(img image.Image, opts Options) (*Result, error) {
	out, _, err := compute(img, opts)
	if err != nil {
		return nil, err
	}
	return out.Result, nil
}

// ComputeFile is a convenience that loads an image from path and computes
// its bill of materials.
func ComputeFile(path string, opts Options) (*Result, error) {
	img, err := LoadImage(path)
	if err != nil {
		return nil, fmt.Errorf("loading image: %w", err)
	}
	return Compute(img, opts)
}

// Preview computes the bill of materials and draws the plate layout with a
// color legend below it.
func Preview(img image.Image, opts Options) (*image.RGBA, *Result, error) {
	out, pal, err := compute(img, opts)
	if err != nil {
		return nil, nil, err
	}
	rcfg := renderer.DefaultConfig()
	if opts.CellSize > 0 {
		rcfg.CellSize = opts.CellSize
	}
	return renderer.Render(out.Grid, out.Placements, pal, resolveFont(opts.Font), rcfg), out.Result, nil
}

func compute(img image.Image, opts Options) (*pipeline.Output, palette.Palette, error) {
	if img == nil {
		return nil, palette.Palette{}, fmt.Errorf("input image is nil")
	}
	entries := opts.Palette
	if entries == nil {
		entries = DefaultPalette()
	}
	pal, _, err := palette.Resolve(entries, opts.FallbackPalette)
	if err != nil {
		return nil, pal, err
	}
	scaler, err := raster.ScalerByName(opts.Resample)
	if err != nil {
		return nil, pal, err
	}
	gridW, gridH := opts.GridW, opts.GridH
	if gridW == 0 {
		gridW = 64
	}
	if gridH == 0 {
		gridH = 64
	}

	out, err := pipeline.Compute(img, pipeline.Request{
		Palette: pal,
		Mask:    resolveMask(opts.Mask),
		Policy:  opts.MaskPolicy,
		GridW:   gridW,
		GridH:   gridH,
		Scaler:  scaler,
	})
	if err != nil {
		return nil, pal, err
	}
	return out, pal, nil
}

// resolveMask normalizes the accepted mask forms. Malformed input yields nil.
func resolveMask(v any) *mask.Mask {
	var (
		m  *mask.Mask
		ok bool
	)
	switch t := v.(type) {
	case nil:
		return nil
	case *mask.Mask:
		return t
	case [][]int:
		m, ok = mask.FromBits(t)
	case [][]bool:
		m, ok = fromBools(t)
	case json.RawMessage:
		m, ok = mask.FromJSON(t)
	case []byte:
		m, ok = mask.FromJSON(t)
	case string:
		m, ok = mask.FromJSON([]byte(t))
	default:
		m, ok = mask.FromAny(t)
	}
	if !ok {
		return nil
	}
	return m
}

func fromBools(rows [][]bool) (*mask.Mask, bool) {
	if len(rows) != mask.Size {
		return nil, false
	}
	var m mask.Mask
	for y, row := range rows {
		if len(row) != mask.Size {
			return nil, false
		}
		copy(m[y][:], row)
	}
	return &m, true
}

// resolveFont returns a renderer.FontRenderer, using the built-in bitmap font
// if the user did not provide one.
func resolveFont(f FontRenderer) renderer.FontRenderer {
	if f != nil {
		return &fontAdapter{f}
	}
	return renderer.NewBitmapFont()
}

type fontAdapter struct {
	f FontRenderer
}

func (a *fontAdapter) DrawString(img *image.RGBA, text string, cx, cy int, col stdcolor.Color, size int) {
	a.f.DrawString(img, text, cx, cy, col, size)
}

func (a *fontAdapter) MeasureString(text string, size int) (int, int) {
	return a.f.MeasureString(text, size)
}
