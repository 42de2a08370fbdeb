// Package raster samples a preview image onto the logical brick grid.
package raster

import (
	"errors"
	"fmt"
	"image"

	xdraw "golang.org/x/image/draw"

	"github.com/maax3v3/brickify/internal/color"
	"github.com/maax3v3/brickify/internal/mask"
	"github.com/maax3v3/brickify/internal/palette"
)

// ErrGridSize is returned for non-positive grid dimensions.
var ErrGridSize = errors.New("grid dimensions must be positive")

// Grid is the logical brick grid: one palette index and one active flag per
// cell, row-major (index = y*Width + x).
type Grid struct {
	Width, Height int
	Colors        []uint8
	Active        []bool
}

// NewGrid allocates a grid with every cell active and set to palette entry 0.
func NewGrid(w, h int) *Grid {
	g := &Grid{
		Width:  w,
		Height: h,
		Colors: make([]uint8, w*h),
		Active: make([]bool, w*h),
	}
	for i := range g.Active {
		g.Active[i] = true
	}
	return g
}

// ColorAt returns the palette index at (x, y).
func (g *Grid) ColorAt(x, y int) int {
	return int(g.Colors[y*g.Width+x])
}

// ActiveAt reports whether (x, y) is part of the buildable region.
func (g *Grid) ActiveAt(x, y int) bool {
	return g.Active[y*g.Width+x]
}

// ActiveCount returns the number of active cells.
func (g *Grid) ActiveCount() int {
	n := 0
	for _, a := range g.Active {
		if a {
			n++
		}
	}
	return n
}

// Scaler names accepted by ScalerByName.
const (
	ScalerBilinear   = "bilinear"
	ScalerNearest    = "nearest"
	ScalerCatmullRom = "catmullrom"
)

// ScalerByName maps a resampling name to an x/image scaler. An empty name
// selects bilinear, the closest match to a browser canvas draw.
func ScalerByName(name string) (xdraw.Scaler, error) {
	switch name {
	case "", ScalerBilinear:
		return xdraw.ApproxBiLinear, nil
	case ScalerNearest:
		return xdraw.NearestNeighbor, nil
	case ScalerCatmullRom:
		return xdraw.CatmullRom, nil
	}
	return nil, fmt.Errorf("unknown resampling %q (supported: bilinear, nearest, catmullrom)", name)
}

// Rasterize samples img at exactly gridW×gridH points, quantizes each sample
// onto pal and marks it active according to m. Images already at grid size
// are read pixel for pixel; others are resampled with scaler (bilinear when
// nil).
func Rasterize(img image.Image, gridW, gridH int, pal palette.Palette, m *mask.Mask, scaler xdraw.Scaler) (*Grid, error) {
	if img == nil {
		return nil, fmt.Errorf("input image is nil")
	}
	if gridW <= 0 || gridH <= 0 {
		return nil, fmt.Errorf("%w: got %dx%d", ErrGridSize, gridW, gridH)
	}

	src := resample(img, gridW, gridH, scaler)
	b := src.Bounds()

	g := NewGrid(gridW, gridH)
	for y := 0; y < gridH; y++ {
		for x := 0; x < gridW; x++ {
			idx := y*gridW + x
			px := color.FromStdColor(src.At(b.Min.X+x, b.Min.Y+y))
			g.Colors[idx] = uint8(pal.Quantize(px))
			g.Active[idx] = m.ValueAt(x, y, gridW, gridH)
		}
	}
	return g, nil
}

func resample(img image.Image, w, h int, scaler xdraw.Scaler) image.Image {
	b := img.Bounds()
	if b.Dx() == w && b.Dy() == h {
		return img
	}
	if scaler == nil {
		scaler = xdraw.ApproxBiLinear
	}
	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	scaler.Scale(dst, dst.Bounds(), img, b, xdraw.Src, nil)
	return dst
}
