package mask

import (
	"encoding/json"
	"image"
	"image/color"
	"testing"
)

func fullRows(v any) []any {
	rows := make([]any, Size)
	for y := range rows {
		row := make([]any, Size)
		for x := range row {
			row[x] = v
		}
		rows[y] = row
	}
	return rows
}

func TestValueAt_NilMaskIsActive(t *testing.T) {
	var m *Mask
	for _, p := range []image.Point{{0, 0}, {47, 47}, {3, 40}} {
		if !m.ValueAt(p.X, p.Y, 48, 48) {
			t.Errorf("nil mask should be active at %v", p)
		}
	}
}

func TestValueAt_NearestCell(t *testing.T) {
	var m Mask
	// Only the top-left mask quadrant is on.
	for y := 0; y < 32; y++ {
		for x := 0; x < 32; x++ {
			m[y][x] = true
		}
	}

	tests := []struct {
		name         string
		x, y, gw, gh int
		want         bool
	}{
		{"4x4 top-left", 0, 0, 4, 4, true},
		{"4x4 inside quadrant", 1, 1, 4, 4, true},
		{"4x4 right of quadrant", 2, 0, 4, 4, false},
		{"4x4 below quadrant", 0, 2, 4, 4, false},
		{"48x48 last inside", 23, 23, 48, 48, true},
		{"48x48 first outside", 24, 23, 48, 48, false},
		{"128 wide maps two cells per mask cell", 63, 0, 128, 64, true},
		{"128 wide first outside", 64, 0, 128, 64, false},
		{"1x1 grid samples origin", 0, 0, 1, 1, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := m.ValueAt(tt.x, tt.y, tt.gw, tt.gh); got != tt.want {
				t.Errorf("ValueAt(%d,%d,%d,%d) = %v, want %v", tt.x, tt.y, tt.gw, tt.gh, got, tt.want)
			}
		})
	}
}

func TestValueAt_ClampsToLastCell(t *testing.T) {
	var m Mask
	m[Size-1][Size-1] = true
	// 65 wide: x=64 maps to floor(64*64/65)=63.
	if !m.ValueAt(64, 64, 65, 65) {
		t.Error("expected the last grid cell to map onto mask cell 63")
	}
}

func TestCoerceBit(t *testing.T) {
	tests := []struct {
		name   string
		in     any
		want   bool
		wantOK bool
	}{
		{"true", true, true, true},
		{"false", false, false, true},
		{"json one", float64(1), true, true},
		{"json zero", float64(0), false, true},
		{"json fractional", 0.5, false, true},
		{"json two", float64(2), false, true},
		{"json negative", float64(-1), false, true},
		{"int two", 2, false, true},
		{"int", 1, true, true},
		{"json number", json.Number("1"), true, true},
		{"string one", "1", true, true},
		{"string zero", "0", false, true},
		{"string TRUE", " TRUE ", true, true},
		{"string off", "off", false, true},
		{"empty string", "", false, true},
		{"numeric string one", "1.0", true, true},
		{"numeric string two", "2", false, true},
		{"numeric string fractional", "0.5", false, true},
		{"garbage string", "maybe", false, false},
		{"nil", nil, false, false},
		{"nested", []any{1}, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := CoerceBit(tt.in)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("CoerceBit(%#v) = (%v, %v), want (%v, %v)", tt.in, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestFromAny(t *testing.T) {
	t.Run("all ones", func(t *testing.T) {
		m, ok := FromAny(fullRows(float64(1)))
		if !ok {
			t.Fatal("expected valid mask")
		}
		if m.Count() != Size*Size {
			t.Errorf("count = %d, want %d", m.Count(), Size*Size)
		}
	})

	t.Run("mixed loose types", func(t *testing.T) {
		rows := fullRows("0")
		rows[0].([]any)[0] = true
		rows[1].([]any)[2] = "yes"
		rows[3].([]any)[4] = float64(1)
		m, ok := FromAny(rows)
		if !ok {
			t.Fatal("expected valid mask")
		}
		if !m[0][0] || !m[1][2] || !m[3][4] {
			t.Error("coerced cells not set")
		}
		if m.Count() != 3 {
			t.Errorf("count = %d, want 3", m.Count())
		}
	})

	t.Run("63 rows", func(t *testing.T) {
		if _, ok := FromAny(fullRows(float64(1))[:63]); ok {
			t.Error("63 rows must be rejected")
		}
	})

	t.Run("short row", func(t *testing.T) {
		rows := fullRows(float64(1))
		rows[10] = rows[10].([]any)[:63]
		if _, ok := FromAny(rows); ok {
			t.Error("a 63-cell row must be rejected")
		}
	})

	t.Run("uncoercible cell", func(t *testing.T) {
		rows := fullRows(float64(1))
		rows[5].([]any)[5] = map[string]any{}
		if _, ok := FromAny(rows); ok {
			t.Error("object cell must be rejected")
		}
	})

	t.Run("not an array", func(t *testing.T) {
		if _, ok := FromAny("mask"); ok {
			t.Error("string must be rejected")
		}
		if _, ok := FromAny(nil); ok {
			t.Error("nil must be rejected")
		}
	})
}

func TestFromJSON(t *testing.T) {
	var m Mask
	m[7][9] = true
	data, err := json.Marshal(m.Bits())
	if err != nil {
		t.Fatal(err)
	}

	got, ok := FromJSON(data)
	if !ok {
		t.Fatal("expected valid mask")
	}
	if *got != m {
		t.Error("decoded mask differs from the original")
	}

	for _, in := range []string{"", "null", "[]", "{", `[[1,0]]`} {
		if _, ok := FromJSON([]byte(in)); ok {
			t.Errorf("FromJSON(%q) should be absent", in)
		}
	}
}

func TestFromBits(t *testing.T) {
	var m Mask
	m[0][63] = true
	got, ok := FromBits(m.Bits())
	if !ok || *got != m {
		t.Fatal("bits round trip failed")
	}
	if _, ok := FromBits(make([][]int, 63)); ok {
		t.Error("63 rows must be rejected")
	}

	rows := m.Bits()
	rows[5][5] = 2
	rows[6][6] = -1
	got, ok = FromBits(rows)
	if !ok {
		t.Fatal("values other than 0 and 1 must not invalidate the mask")
	}
	if got[5][5] || got[6][6] {
		t.Error("only cells equal to 1 may be active")
	}
}

func TestFromAny_OnlyOneIsActive(t *testing.T) {
	for _, v := range []any{float64(2), 0.5, float64(-1), "2"} {
		rows := fullRows(float64(0))
		rows[0].([]any)[0] = v
		m, ok := FromAny(rows)
		if !ok {
			t.Fatalf("cell %#v invalidated the mask", v)
		}
		if m.ValueAt(0, 0, Size, Size) {
			t.Errorf("cell %#v: ValueAt(0, 0) = true, want false", v)
		}
	}
}

func TestBits_NilMaskIsFull(t *testing.T) {
	var m *Mask
	bits := m.Bits()
	if len(bits) != Size || bits[63][63] != 1 || bits[0][0] != 1 {
		t.Error("nil mask should expand to all ones")
	}
}

func TestCoverage(t *testing.T) {
	var m Mask
	if m.Coverage() != 0 {
		t.Errorf("empty mask coverage = %f", m.Coverage())
	}
	for x := 0; x < Size; x++ {
		m[0][x] = true
	}
	if got, want := m.Coverage(), 1.0/64; got != want {
		t.Errorf("coverage = %f, want %f", got, want)
	}
	var none *Mask
	if none.Coverage() != 1 {
		t.Error("nil mask coverage should be 1")
	}
}

func TestPolicyApply(t *testing.T) {
	p := DefaultPolicy()

	t.Run("nil passes through", func(t *testing.T) {
		m, replaced := p.Apply(nil)
		if m != nil || replaced {
			t.Error("nil mask must stay nil")
		}
	})

	t.Run("empty mask replaced", func(t *testing.T) {
		m, replaced := p.Apply(&Mask{})
		if !replaced {
			t.Fatal("expected replacement")
		}
		if *m != *Circle(p.RadiusRatio) {
			t.Error("replacement is not the fallback circle")
		}
	})

	t.Run("full mask replaced", func(t *testing.T) {
		full, _ := FromAny(fullRows(true))
		if _, replaced := p.Apply(full); !replaced {
			t.Error("expected replacement of a full mask")
		}
	})

	t.Run("plausible mask kept", func(t *testing.T) {
		var m Mask
		for y := 16; y < 48; y++ {
			for x := 16; x < 48; x++ {
				m[y][x] = true
			}
		}
		got, replaced := p.Apply(&m)
		if replaced || got != &m {
			t.Error("a quarter-coverage mask should be kept")
		}
	})

	t.Run("zero policy disabled", func(t *testing.T) {
		empty := &Mask{}
		got, replaced := Policy{}.Apply(empty)
		if replaced || got != empty {
			t.Error("zero policy must not replace")
		}
	})
}

func TestCircle(t *testing.T) {
	m := Circle(0.42)
	if !m[32][32] || !m[31][31] {
		t.Error("center must be inside")
	}
	if m[0][0] || m[63][63] || m[0][32] {
		t.Error("corners and edges must be outside")
	}
	// Symmetric about both axes.
	for y := 0; y < Size; y++ {
		for x := 0; x < Size; x++ {
			if m[y][x] != m[Size-1-y][x] || m[y][x] != m[y][Size-1-x] {
				t.Fatalf("circle not symmetric at (%d,%d)", x, y)
			}
		}
	}
	cov := m.Coverage()
	p := DefaultPolicy()
	if cov < p.MinCoverage || cov > p.MaxCoverage {
		t.Errorf("fallback circle coverage %f is itself degenerate", cov)
	}
}

func TestFromBackground(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, Size, Size))
	for y := 0; y < Size; y++ {
		for x := 0; x < Size; x++ {
			c := color.RGBA{250, 249, 246, 255}
			if x >= 20 && x < 44 && y >= 16 && y < 48 {
				c = color.RGBA{194, 65, 12, 255}
			}
			img.SetRGBA(x, y, c)
		}
	}

	m := FromBackground(img, 10)

	if m[0][0] || m[63][63] || m[10][10] {
		t.Error("backdrop cells should be background")
	}
	if !m[30][30] || !m[16][20] || !m[47][43] {
		t.Error("subject cells should be active")
	}
	if got := m.Count(); got != 24*32 {
		t.Errorf("active cells = %d, want %d", got, 24*32)
	}
}

func TestFromBackground_EnclosedBackdropColorStaysSubject(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, Size, Size))
	white := color.RGBA{255, 255, 255, 255}
	black := color.RGBA{0, 0, 0, 255}
	for y := 0; y < Size; y++ {
		for x := 0; x < Size; x++ {
			img.SetRGBA(x, y, white)
		}
	}
	// A black ring with a white hole: the hole is not reachable from the border.
	for y := 20; y < 44; y++ {
		for x := 20; x < 44; x++ {
			if x < 24 || x >= 40 || y < 24 || y >= 40 {
				img.SetRGBA(x, y, black)
			}
		}
	}

	m := FromBackground(img, 10)
	if !m[32][32] {
		t.Error("enclosed hole should remain part of the subject")
	}
	if m[5][5] {
		t.Error("outer backdrop should be background")
	}
}

func TestFromBackground_TransparentIsBackground(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 128, 128))
	for y := 40; y < 88; y++ {
		for x := 40; x < 88; x++ {
			img.SetNRGBA(x, y, color.NRGBA{10, 200, 10, 255})
		}
	}

	m := FromBackground(img, 10)
	if m[0][0] || m[63][0] {
		t.Error("transparent border should be background")
	}
	if !m[32][32] {
		t.Error("opaque center should be subject")
	}
}
