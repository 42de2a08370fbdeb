package mask

// Policy replaces masks whose coverage is implausible for a photo subject
// with a centered circle. The thresholds were tuned by eye against
// AI-provided masks, so they are configuration rather than constants.
type Policy struct {
	MinCoverage float64 // below this the mask is considered empty
	MaxCoverage float64 // above this the mask is considered the whole frame
	RadiusRatio float64 // fallback circle radius as a fraction of the side
}

// DefaultPolicy returns the thresholds used by the upload flow.
func DefaultPolicy() Policy {
	return Policy{
		MinCoverage: 0.02,
		MaxCoverage: 0.92,
		RadiusRatio: 0.42,
	}
}

// Enabled reports whether the policy does anything.
func (p Policy) Enabled() bool {
	return p.RadiusRatio > 0 && (p.MinCoverage > 0 || p.MaxCoverage > 0)
}

// Apply returns the mask to use and whether it was replaced. A nil mask
// passes through untouched: no mask means the full grid is active.
func (p Policy) Apply(m *Mask) (*Mask, bool) {
	if m == nil || !p.Enabled() {
		return m, false
	}
	cov := m.Coverage()
	if cov < p.MinCoverage || (p.MaxCoverage > 0 && cov > p.MaxCoverage) {
		return Circle(p.RadiusRatio), true
	}
	return m, false
}

// Circle returns a mask with a filled circle centered on the grid. A cell is
// inside when its center lies within radiusRatio*Size of the grid center.
func Circle(radiusRatio float64) *Mask {
	var m Mask
	r := radiusRatio * Size
	c := float64(Size) / 2
	for y := 0; y < Size; y++ {
		for x := 0; x < Size; x++ {
			dx := float64(x) + 0.5 - c
			dy := float64(y) + 0.5 - c
			m[y][x] = dx*dx+dy*dy <= r*r
		}
	}
	return &m
}
