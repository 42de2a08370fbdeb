// Package palette holds the fixed 8-color brick palette and the nearest-color
// quantizer that maps arbitrary pixels onto it.
package palette

import (
	"errors"
	"fmt"
	"image"
	"regexp"
	"slices"
	"strings"

	"github.com/cenkalti/dominantcolor"
	"github.com/lucasb-eyer/go-colorful"

	"github.com/maax3v3/brickify/internal/color"
)

// Size is the number of colors in every palette.
const Size = 8

// TransparentAlpha is the alpha below which a pixel counts as background and
// maps to the first palette entry without a distance search.
const TransparentAlpha = 10

// ErrInvalid is returned when the input does not hold exactly Size distinct,
// valid #RRGGBB colors.
var ErrInvalid = errors.New("palette must be 8 valid #RRGGBB colors")

var hexPattern = regexp.MustCompile(`^#[0-9A-F]{6}$`)

// Palette is an ordered set of Size colors. Grid cells refer to entries by
// index, so the order is part of every result.
type Palette [Size]color.RGBA

// DefaultHex is the documented fallback palette, taken from classic brick
// colors.
var DefaultHex = [Size]string{
	"#F2F3F2", // white
	"#1B2A34", // black
	"#C4281B", // bright red
	"#0D69AB", // bright blue
	"#F5CD2F", // bright yellow
	"#287F46", // dark green
	"#D7C599", // brick yellow
	"#A3A2A4", // medium stone grey
}

// Default returns the fallback palette.
func Default() Palette {
	var p Palette
	for i, h := range DefaultHex {
		c, _ := color.ParseHex(h)
		p[i] = c
	}
	return p
}

// Normalize upper-cases s and reports whether the result is a canonical
// "#RRGGBB" string.
func Normalize(s string) (string, bool) {
	u := strings.ToUpper(s)
	if !hexPattern.MatchString(u) {
		return "", false
	}
	return u, true
}

// Parse builds a palette from hex strings. Entries that fail normalization
// are dropped; what remains must be exactly Size distinct colors.
func Parse(entries []string) (Palette, error) {
	valid := make([]string, 0, len(entries))
	for _, e := range entries {
		if h, ok := Normalize(e); ok {
			valid = append(valid, h)
		}
	}
	if len(valid) != Size {
		return Palette{}, fmt.Errorf("%w: got %d valid of %d entries", ErrInvalid, len(valid), len(entries))
	}

	var p Palette
	seen := make(map[string]bool, Size)
	for i, h := range valid {
		if seen[h] {
			return Palette{}, fmt.Errorf("%w: duplicate color %s", ErrInvalid, h)
		}
		seen[h] = true
		c, err := color.ParseHex(h)
		if err != nil {
			return Palette{}, fmt.Errorf("%w: %v", ErrInvalid, err)
		}
		p[i] = c
	}
	return p, nil
}

// Resolve parses entries and, when fallback is set, substitutes the default
// palette for invalid input instead of failing. The second return value
// reports whether the fallback was used.
func Resolve(entries []string, fallback bool) (Palette, bool, error) {
	p, err := Parse(entries)
	if err == nil {
		return p, false, nil
	}
	if fallback {
		return Default(), true, nil
	}
	return Palette{}, false, err
}

// Hex returns the canonical hex string of entry i.
func (p Palette) Hex(i int) string {
	return p[i].Hex()
}

// Strings returns every entry as a canonical hex string, in order.
func (p Palette) Strings() []string {
	out := make([]string, Size)
	for i := range p {
		out[i] = p[i].Hex()
	}
	return out
}

// Index returns the position of a hex color in the palette.
func (p Palette) Index(hex string) (int, bool) {
	h, ok := Normalize(hex)
	if !ok {
		return 0, false
	}
	for i := range p {
		if p[i].Hex() == h {
			return i, true
		}
	}
	return 0, false
}

// Nearest returns the index of the entry with the smallest squared RGB
// distance to (r, g, b). The first entry reaching the minimum wins.
func (p Palette) Nearest(r, g, b uint8) int {
	px := color.RGBA{R: r, G: g, B: b, A: 255}
	best, bestD := 0, -1
	for i := range p {
		d := color.DistanceSq(px, p[i])
		if bestD < 0 || d < bestD {
			best, bestD = i, d
		}
	}
	return best
}

// Quantize maps a pixel to a palette index. Nearly transparent pixels are
// background and map to entry 0.
func (p Palette) Quantize(c color.RGBA) int {
	if c.A < TransparentAlpha {
		return 0
	}
	return p.Nearest(c.R, c.G, c.B)
}

// Extract proposes a palette from the dominant colors of img. Missing
// entries are filled from the default palette and the result is ordered from
// darkest to lightest.
func Extract(img image.Image) Palette {
	seen := make(map[string]bool, Size)
	var picked []color.RGBA
	for _, c := range dominantcolor.FindWeight(img, Size) {
		rgba := color.RGBA{R: c.RGBA.R, G: c.RGBA.G, B: c.RGBA.B, A: 255}
		if seen[rgba.Hex()] {
			continue
		}
		seen[rgba.Hex()] = true
		picked = append(picked, rgba)
		if len(picked) == Size {
			break
		}
	}
	for _, d := range Default() {
		if len(picked) == Size {
			break
		}
		if seen[d.Hex()] {
			continue
		}
		seen[d.Hex()] = true
		picked = append(picked, d)
	}

	SortByBrightness(picked)
	var p Palette
	copy(p[:], picked)
	return p
}

// SortByBrightness orders colors from darkest to brightest by relative
// luminance.
func SortByBrightness(colors []color.RGBA) {
	slices.SortStableFunc(colors, func(a, b color.RGBA) int {
		ya, yb := luminance(a), luminance(b)
		switch {
		case ya < yb:
			return -1
		case ya > yb:
			return 1
		}
		return 0
	})
}

func luminance(c color.RGBA) float64 {
	cf, _ := colorful.MakeColor(c.ToStdColor())
	r, g, b := cf.LinearRgb()
	return 0.2126*r + 0.7152*g + 0.0722*b
}
