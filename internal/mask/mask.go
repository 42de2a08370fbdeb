// Package mask resolves which grid cells belong to the buildable subject.
//
// Masks arrive as loosely typed 64×64 matrices (numbers, strings or
// booleans). They are coerced once at the boundary into a strict boolean
// Mask; a malformed matrix is treated as absent, which means every cell is
// active.
package mask

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Size is the fixed logical resolution of a mask along each axis.
const Size = 64

// Mask is a 64×64 inclusion matrix indexed [y][x]. True cells are buildable.
// A nil *Mask means "no mask": every cell is active.
type Mask [Size][Size]bool

// ValueAt reports whether grid cell (x, y) of a gridW×gridH grid is active,
// using nearest-cell lookup into the mask.
func (m *Mask) ValueAt(x, y, gridW, gridH int) bool {
	if m == nil {
		return true
	}
	mx := min(Size-1, x*Size/gridW)
	my := min(Size-1, y*Size/gridH)
	return m[my][mx]
}

// Count returns the number of active cells.
func (m *Mask) Count() int {
	if m == nil {
		return Size * Size
	}
	n := 0
	for y := range m {
		for x := range m[y] {
			if m[y][x] {
				n++
			}
		}
	}
	return n
}

// Coverage returns the active fraction of the mask in [0, 1].
func (m *Mask) Coverage() float64 {
	return float64(m.Count()) / float64(Size*Size)
}

// Bits returns the mask as a 0/1 matrix, the shape it is exchanged in.
func (m *Mask) Bits() [][]int {
	out := make([][]int, Size)
	for y := range out {
		out[y] = make([]int, Size)
		if m == nil {
			for x := range out[y] {
				out[y][x] = 1
			}
			continue
		}
		for x := range out[y] {
			if m[y][x] {
				out[y][x] = 1
			}
		}
	}
	return out
}

// FromBits builds a mask from a 0/1 matrix; only cells equal to 1 are on. It
// reports false when the matrix is not exactly 64×64.
func FromBits(rows [][]int) (*Mask, bool) {
	if len(rows) != Size {
		return nil, false
	}
	var m Mask
	for y, row := range rows {
		if len(row) != Size {
			return nil, false
		}
		for x, v := range row {
			m[y][x] = v == 1
		}
	}
	return &m, true
}

// FromAny validates a decoded JSON value. It must be 64 arrays of 64 values
// each accepted by CoerceBit; otherwise the result is (nil, false) and the
// caller treats the mask as absent.
func FromAny(v any) (*Mask, bool) {
	rows, ok := v.([]any)
	if !ok || len(rows) != Size {
		return nil, false
	}
	var m Mask
	for y, r := range rows {
		row, ok := r.([]any)
		if !ok || len(row) != Size {
			return nil, false
		}
		for x, cell := range row {
			bit, ok := CoerceBit(cell)
			if !ok {
				return nil, false
			}
			m[y][x] = bit
		}
	}
	return &m, true
}

// FromJSON decodes a raw JSON mask. Empty input, null and malformed
// matrices all yield (nil, false).
func FromJSON(data []byte) (*Mask, bool) {
	if len(data) == 0 {
		return nil, false
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, false
	}
	return FromAny(v)
}

// CoerceBit normalizes one loosely typed mask cell. Booleans map to
// themselves, a number is on only when it equals 1 (any other number is
// off), and strings accept 1/0, true/false, yes/no, on/off or a number. The
// second result is false for values that cannot be read as a bit.
func CoerceBit(v any) (bool, bool) {
	switch t := v.(type) {
	case bool:
		return t, true
	case float64:
		return numberBit(t)
	case float32:
		return numberBit(float64(t))
	case int:
		return t == 1, true
	case int64:
		return t == 1, true
	case uint8:
		return t == 1, true
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return false, false
		}
		return numberBit(f)
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "1", "true", "yes", "on":
			return true, true
		case "0", "false", "no", "off", "":
			return false, true
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return false, false
		}
		return numberBit(f)
	}
	return false, false
}

func numberBit(f float64) (bool, bool) {
	if math.IsNaN(f) {
		return false, false
	}
	return f == 1, true
}
