// Package aggregation folds tile placements into a bill of materials.
package aggregation

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"

	"github.com/maax3v3/brickify/internal/brick"
	"github.com/maax3v3/brickify/internal/palette"
	"github.com/maax3v3/brickify/internal/tiler"
)

// ErrInconsistent is returned by Validate when the totals disagree with the
// item list.
var ErrInconsistent = errors.New("bom totals are inconsistent")

// Item is one (part, color) line of the bill of materials.
type Item struct {
	Part  string `json:"part"`
	Color string `json:"color"`
	Count int    `json:"count"`
}

// Result is the bill of materials plus its summary numbers.
type Result struct {
	BOM         []Item `json:"bom"`
	TotalPieces int    `json:"totalPieces"` // sum of counts
	TotalStuds  int    `json:"totalStuds"`  // sum of count × part area
	UniqueItems int    `json:"uniqueItems"` // len(BOM)
}

type key struct {
	part  string
	color int
}

// Aggregate counts placements per (part, color). Items are ordered by count,
// largest first; equal counts keep first-seen order.
func Aggregate(ps []tiler.Placement, pal palette.Palette, cat brick.Catalog) *Result {
	index := make(map[key]int)
	items := make([]Item, 0)
	for _, p := range ps {
		k := key{part: p.Part, color: p.Color}
		i, ok := index[k]
		if !ok {
			i = len(items)
			index[k] = i
			items = append(items, Item{Part: p.Part, Color: pal.Hex(p.Color)})
		}
		items[i].Count++
	}

	slices.SortStableFunc(items, func(a, b Item) int {
		return b.Count - a.Count
	})
	return Summarize(items, cat)
}

// Summarize computes the totals for an item list.
func Summarize(items []Item, cat brick.Catalog) *Result {
	if items == nil {
		items = make([]Item, 0)
	}
	r := &Result{BOM: items, UniqueItems: len(items)}
	for _, it := range items {
		r.TotalPieces += it.Count
		r.TotalStuds += it.Count * cat.Area(it.Part)
	}
	return r
}

// Validate checks that the summary numbers agree with the items and that
// every item is well formed.
func (r *Result) Validate(cat brick.Catalog) error {
	if r == nil {
		return fmt.Errorf("%w: result is nil", ErrInconsistent)
	}
	seen := make(map[Item]bool, len(r.BOM))
	for i, it := range r.BOM {
		if it.Part == "" {
			return fmt.Errorf("%w: item %d has no part", ErrInconsistent, i)
		}
		if _, ok := palette.Normalize(it.Color); !ok {
			return fmt.Errorf("%w: item %d has invalid color %q", ErrInconsistent, i, it.Color)
		}
		if it.Count <= 0 {
			return fmt.Errorf("%w: item %d has count %d", ErrInconsistent, i, it.Count)
		}
		k := Item{Part: it.Part, Color: it.Color}
		if seen[k] {
			return fmt.Errorf("%w: duplicate item %s %s", ErrInconsistent, it.Part, it.Color)
		}
		seen[k] = true
	}

	want := Summarize(r.BOM, cat)
	switch {
	case r.TotalPieces != want.TotalPieces:
		return fmt.Errorf("%w: totalPieces %d, items sum to %d", ErrInconsistent, r.TotalPieces, want.TotalPieces)
	case r.TotalStuds != want.TotalStuds:
		return fmt.Errorf("%w: totalStuds %d, items cover %d", ErrInconsistent, r.TotalStuds, want.TotalStuds)
	case r.UniqueItems != want.UniqueItems:
		return fmt.Errorf("%w: uniqueItems %d, %d items listed", ErrInconsistent, r.UniqueItems, want.UniqueItems)
	}
	return nil
}

// SortedByPalette returns a copy of the items ordered by palette position,
// then by count (largest first). Colors outside the palette sort last.
func (r *Result) SortedByPalette(pal palette.Palette) []Item {
	items := slices.Clone(r.BOM)
	pos := func(hex string) int {
		if i, ok := pal.Index(hex); ok {
			return i
		}
		return palette.Size
	}
	slices.SortStableFunc(items, func(a, b Item) int {
		if pa, pb := pos(a.Color), pos(b.Color); pa != pb {
			return pa - pb
		}
		return b.Count - a.Count
	})
	return items
}

// WriteCSV writes the items as "part,color,count" rows under a header.
// Fields containing a comma, quote or newline are quoted.
func (r *Result) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"part", "color", "count"}); err != nil {
		return fmt.Errorf("writing csv header: %w", err)
	}
	for _, it := range r.BOM {
		if err := cw.Write([]string{it.Part, it.Color, strconv.Itoa(it.Count)}); err != nil {
			return fmt.Errorf("writing csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}
