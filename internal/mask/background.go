package mask

import (
	"image"

	xdraw "golang.org/x/image/draw"

	"github.com/maax3v3/brickify/internal/color"
)

// transparentAlpha matches the quantizer: cells below it are background.
const transparentAlpha = 10

// FromBackground derives a subject mask from the image itself, for previews
// that come without one. The image is sampled at 64×64 and flood-filled from
// every border cell across cells whose color stays within tolerancePct of
// the average border color; reached cells are background, the rest subject.
//
// The distance is the largest per-channel difference, so a subject that
// differs from the backdrop in a single channel is still kept.
func FromBackground(img image.Image, tolerancePct float64) *Mask {
	buf := sample(img)
	ref := borderMean(buf)
	threshold := int(tolerancePct / 100.0 * 255.0)

	isBackground := func(c color.RGBA) bool {
		if c.A < transparentAlpha {
			return true
		}
		return chebyshev(c, ref) <= threshold
	}

	var reached [Size][Size]bool
	var queue []image.Point
	push := func(x, y int) {
		if reached[y][x] || !isBackground(buf[y*Size+x]) {
			return
		}
		reached[y][x] = true
		queue = append(queue, image.Point{X: x, Y: y})
	}
	for i := 0; i < Size; i++ {
		push(i, 0)
		push(i, Size-1)
		push(0, i)
		push(Size-1, i)
	}

	for len(queue) > 0 {
		p := queue[0]
		queue = queue[1:]
		for _, d := range [4]image.Point{{-1, 0}, {1, 0}, {0, -1}, {0, 1}} {
			nx, ny := p.X+d.X, p.Y+d.Y
			if nx < 0 || nx >= Size || ny < 0 || ny >= Size {
				continue
			}
			push(nx, ny)
		}
	}

	var m Mask
	for y := 0; y < Size; y++ {
		for x := 0; x < Size; x++ {
			m[y][x] = !reached[y][x]
		}
	}
	return &m
}

// sample reads img as a flat Size×Size buffer of non-premultiplied colors.
func sample(img image.Image) []color.RGBA {
	b := img.Bounds()
	src := img
	if b.Dx() != Size || b.Dy() != Size {
		dst := image.NewNRGBA(image.Rect(0, 0, Size, Size))
		xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, xdraw.Src, nil)
		src = dst
	}
	sb := src.Bounds()
	buf := make([]color.RGBA, Size*Size)
	for y := 0; y < Size; y++ {
		for x := 0; x < Size; x++ {
			buf[y*Size+x] = color.FromStdColor(src.At(sb.Min.X+x, sb.Min.Y+y))
		}
	}
	return buf
}

func borderMean(buf []color.RGBA) color.RGBA {
	var r, g, b, n int
	add := func(c color.RGBA) {
		if c.A < transparentAlpha {
			return
		}
		r += int(c.R)
		g += int(c.G)
		b += int(c.B)
		n++
	}
	for i := 0; i < Size; i++ {
		add(buf[i])
		add(buf[(Size-1)*Size+i])
		if i > 0 && i < Size-1 {
			add(buf[i*Size])
			add(buf[i*Size+Size-1])
		}
	}
	if n == 0 {
		return color.RGBA{}
	}
	return color.RGBA{
		R: uint8((r + n/2) / n),
		G: uint8((g + n/2) / n),
		B: uint8((b + n/2) / n),
		A: 255,
	}
}

func chebyshev(a, b color.RGBA) int {
	d := absDiff(a.R, b.R)
	if g := absDiff(a.G, b.G); g > d {
		d = g
	}
	if bl := absDiff(a.B, b.B); bl > d {
		d = bl
	}
	return d
}

func absDiff(a, b uint8) int {
	if a > b {
		return int(a - b)
	}
	return int(b - a)
}
