package renderer

import (
	"image"
	"image/color"
)

// FontRenderer is the interface for drawing text onto images.
// Implementations can be swapped (e.g., bitmap font, TTF font).
type FontRenderer interface {
	// DrawString draws the given text centered at (cx, cy) on the image
	// with the specified color and font size (approximate height in pixels).
	DrawString(img *image.RGBA, text string, cx, cy int, col color.Color, size int)

	// MeasureString returns the approximate width and height of the text
	// at the given font size.
	MeasureString(text string, size int) (width, height int)
}

// BitmapFont draws digits from a built-in 5x7 pixel font. Other runes
// advance the cursor without drawing.
type BitmapFont struct{}

// NewBitmapFont creates a new BitmapFont.
func NewBitmapFont() *BitmapFont {
	return &BitmapFont{}
}

const (
	glyphWidth  = 5
	glyphHeight = 7
)

// Rows top to bottom, '#' is an inked pixel.
var glyphs = map[rune][glyphHeight]string{
	'0': {".###.", "#...#", "#..##", "#.#.#", "##..#", "#...#", ".###."},
	'1': {"..#..", ".##..", "..#..", "..#..", "..#..", "..#..", ".###."},
	'2': {".###.", "#...#", "....#", "...#.", "..#..", ".#...", "#####"},
	'3': {".###.", "#...#", "....#", "..##.", "....#", "#...#", ".###."},
	'4': {"...#.", "..##.", ".#.#.", "#..#.", "#####", "...#.", "...#."},
	'5': {"#####", "#....", "####.", "....#", "....#", "#...#", ".###."},
	'6': {"..##.", ".#...", "#....", "####.", "#...#", "#...#", ".###."},
	'7': {"#####", "....#", "...#.", "..#..", ".#...", ".#...", ".#..."},
	'8': {".###.", "#...#", "#...#", ".###.", "#...#", "#...#", ".###."},
	'9': {".###.", "#...#", "#...#", ".####", "....#", "...#.", ".##.."},
}

func scaleFor(size int) int {
	if s := size / glyphHeight; s > 1 {
		return s
	}
	return 1
}

func (bf *BitmapFont) DrawString(img *image.RGBA, text string, cx, cy int, col color.Color, size int) {
	scale := scaleFor(size)
	totalW, totalH := bf.MeasureString(text, size)
	b := img.Bounds()
	x0 := cx - totalW/2
	y0 := cy - totalH/2

	for _, ch := range text {
		if glyph, ok := glyphs[ch]; ok {
			for row, line := range glyph {
				for c := 0; c < glyphWidth; c++ {
					if line[c] != '#' {
						continue
					}
					fillRect(img, x0+c*scale, y0+row*scale, scale, scale, b, col)
				}
			}
		}
		x0 += (glyphWidth + 1) * scale
	}
}

// fillRect paints a w x h block at (x, y) relative to the image origin,
// clipped to b.
func fillRect(img *image.RGBA, x, y, w, h int, b image.Rectangle, col color.Color) {
	for dy := 0; dy < h; dy++ {
		for dx := 0; dx < w; dx++ {
			px, py := b.Min.X+x+dx, b.Min.Y+y+dy
			if image.Pt(px, py).In(b) {
				img.Set(px, py, col)
			}
		}
	}
}

func (bf *BitmapFont) MeasureString(text string, size int) (width, height int) {
	n := len([]rune(text))
	if n == 0 {
		return 0, 0
	}
	scale := scaleFor(size)
	return n*glyphWidth*scale + (n-1)*scale, glyphHeight * scale
}
