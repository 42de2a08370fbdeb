// Package brick defines the static catalog of rectangular plate footprints
// the tiler may place.
package brick

import (
	"fmt"
	"slices"
)

// FallbackPart is placed on a single cell when no catalog shape fits.
const FallbackPart = "plate_1x1"

// Shape is a rectangular footprint of W×H grid cells.
type Shape struct {
	W, H int
	Part string
}

// Area returns the footprint size in studs.
func (s Shape) Area() int {
	return s.W * s.H
}

// Square reports whether the shape looks the same after rotation.
func (s Shape) Square() bool {
	return s.W == s.H
}

// Catalog is an ordered list of shapes, largest area first. Shapes of equal
// area keep their declaration order.
type Catalog struct {
	shapes []Shape
	area   map[string]int
}

// NewCatalog sorts shapes by descending area (stable) and indexes their areas
// by part name.
func NewCatalog(shapes []Shape) (Catalog, error) {
	sorted := slices.Clone(shapes)
	area := make(map[string]int, len(sorted))
	for _, s := range sorted {
		if s.W <= 0 || s.H <= 0 {
			return Catalog{}, fmt.Errorf("shape %q has non-positive size %dx%d", s.Part, s.W, s.H)
		}
		if s.Part == "" {
			return Catalog{}, fmt.Errorf("shape %dx%d has no part name", s.W, s.H)
		}
		if _, dup := area[s.Part]; dup {
			return Catalog{}, fmt.Errorf("duplicate part %q", s.Part)
		}
		area[s.Part] = s.Area()
	}
	slices.SortStableFunc(sorted, func(a, b Shape) int {
		return b.Area() - a.Area()
	})
	return Catalog{shapes: sorted, area: area}, nil
}

// MustCatalog is NewCatalog for static tables.
func MustCatalog(shapes []Shape) Catalog {
	c, err := NewCatalog(shapes)
	if err != nil {
		panic(err)
	}
	return c
}

// Shapes returns the shapes in trial order. The slice must not be modified.
func (c Catalog) Shapes() []Shape {
	return c.shapes
}

// Area returns the stud area of a part. Parts outside the catalog count as a
// single stud, the size of the fallback plate.
func (c Catalog) Area(part string) int {
	if a, ok := c.area[part]; ok {
		return a
	}
	return 1
}

// Has reports whether part is in the catalog.
func (c Catalog) Has(part string) bool {
	_, ok := c.area[part]
	return ok
}

// Plates is the plate list in declaration order. Equal-area ties in the
// sorted catalog are resolved by this order, so it is part of the output
// contract.
var Plates = []Shape{
	{2, 8, "plate_2x8"},
	{1, 8, "plate_1x8"},
	{2, 6, "plate_2x6"},
	{1, 6, "plate_1x6"},
	{2, 4, "plate_2x4"},
	{1, 4, "plate_1x4"},
	{3, 4, "plate_3x4"},
	{3, 3, "plate_3x3"},
	{2, 3, "plate_2x3"},
	{1, 3, "plate_1x3"},
	{4, 4, "plate_4x4"},
	{4, 3, "plate_4x3"},
	{4, 2, "plate_4x2"},
	{2, 2, "plate_2x2"},
	{1, 2, "plate_1x2"},
	{1, 1, "plate_1x1"},
}

// Default is the process-wide catalog built from Plates.
var Default = MustCatalog(Plates)
