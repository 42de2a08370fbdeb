package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"os"
	"path/filepath"

	xdraw "golang.org/x/image/draw"

	"github.com/maax3v3/brickify/internal/aggregation"
	"github.com/maax3v3/brickify/internal/brick"
	"github.com/maax3v3/brickify/internal/cli"
	"github.com/maax3v3/brickify/internal/imaging"
	"github.com/maax3v3/brickify/internal/mask"
	"github.com/maax3v3/brickify/internal/palette"
	"github.com/maax3v3/brickify/internal/raster"
	"github.com/maax3v3/brickify/internal/renderer"
	"github.com/maax3v3/brickify/internal/tiler"
)

// Artifact names written for every job.
const (
	BOMFile     = "bom.json"
	CSVFile     = "parts-list.csv"
	PreviewFile = "preview.png"
)

// Request describes one BOM computation over an already decoded image.
type Request struct {
	Palette palette.Palette
	Mask    *mask.Mask  // nil means every cell is active
	Policy  mask.Policy // zero value keeps the mask as given
	GridW   int
	GridH   int
	Scaler  xdraw.Scaler  // nil selects bilinear
	Catalog brick.Catalog // zero value selects brick.Default
}

// Output carries every intermediate product of a computation.
type Output struct {
	Grid         *raster.Grid
	Placements   []tiler.Placement
	Result       *aggregation.Result
	MaskReplaced bool
}

// Compute rasterizes img, tiles the grid and aggregates the placements.
func Compute(img image.Image, req Request) (*Output, error) {
	cat := req.Catalog
	if len(cat.Shapes()) == 0 {
		cat = brick.Default
	}

	m, replaced := req.Policy.Apply(req.Mask)

	g, err := raster.Rasterize(img, req.GridW, req.GridH, req.Palette, m, req.Scaler)
	if err != nil {
		return nil, fmt.Errorf("rasterizing: %w", err)
	}

	placements := tiler.Tile(g, cat)
	return &Output{
		Grid:         g,
		Placements:   placements,
		Result:       aggregation.Aggregate(placements, req.Palette, cat),
		MaskReplaced: replaced,
	}, nil
}

// Artifact is one named file produced for a job.
type Artifact struct {
	Name        string
	ContentType string
	Data        []byte
}

// EncodeResult serializes the BOM JSON and CSV artifacts.
func EncodeResult(r *aggregation.Result) ([]Artifact, error) {
	js, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding %s: %w", BOMFile, err)
	}
	var csv bytes.Buffer
	if err := r.WriteCSV(&csv); err != nil {
		return nil, fmt.Errorf("encoding %s: %w", CSVFile, err)
	}
	return []Artifact{
		{Name: BOMFile, ContentType: "application/json", Data: append(js, '\n')},
		{Name: CSVFile, ContentType: "text/csv; charset=utf-8", Data: csv.Bytes()},
	}, nil
}

// RenderPreview draws the tiled layout as PNG bytes.
func RenderPreview(out *Output, pal palette.Palette, font renderer.FontRenderer, cellSize int) (Artifact, error) {
	if font == nil {
		font = renderer.NewBitmapFont()
	}
	rcfg := renderer.DefaultConfig()
	if cellSize > 0 {
		rcfg.CellSize = cellSize
	}
	scaleLegendConfig(&rcfg, out.Grid.Width*rcfg.CellSize)

	img := renderer.Render(out.Grid, out.Placements, pal, font, rcfg)
	data, err := imaging.EncodePNG(img)
	if err != nil {
		return Artifact{}, err
	}
	return Artifact{Name: PreviewFile, ContentType: "image/png", Data: data}, nil
}

// Run executes the one-shot CLI flow: acquire the image, compute the BOM and
// write the artifacts into cfg.OutDir.
func Run(ctx context.Context, cfg cli.ComputeConfig, font renderer.FontRenderer) error {
	// Step 1: Validate the palette before touching the image
	var pal palette.Palette
	if !cfg.AutoPalette {
		p, fellBack, err := palette.Resolve(cfg.Palette, cfg.FallbackPalette)
		if err != nil {
			return err
		}
		if fellBack {
			fmt.Println("Palette invalid or missing, using the default brick palette")
		}
		pal = p
	}

	scaler, err := raster.ScalerByName(cfg.Resample)
	if err != nil {
		return err
	}

	// Step 2: Load input image
	fmt.Printf("Loading image: %s\n", describe(cfg.InPath))
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}
	fetcher := imaging.NewFetcher(nil)
	fetcher.AllowFiles = true
	img, err := fetcher.FetchImage(ctx, cfg.InPath)
	if err != nil {
		return err
	}
	fmt.Printf("Image loaded: %dx%d\n", img.Bounds().Dx(), img.Bounds().Dy())

	if cfg.AutoPalette {
		fmt.Println("Extracting palette...")
		pal = palette.Extract(img)
	}
	fmt.Printf("Palette: %v\n", pal.Strings())

	// Step 3: Resolve the subject mask
	m, err := loadMask(cfg, img)
	if err != nil {
		return err
	}

	// Step 4: Rasterize, tile and aggregate
	fmt.Printf("Tiling %dx%d grid...\n", cfg.GridW, cfg.GridH)
	out, err := Compute(img, Request{
		Palette: pal,
		Mask:    m,
		Policy:  cfg.Policy,
		GridW:   cfg.GridW,
		GridH:   cfg.GridH,
		Scaler:  scaler,
	})
	if err != nil {
		return err
	}
	if out.MaskReplaced {
		fmt.Println("Mask coverage implausible, using a centered circle instead")
	}
	fmt.Printf("Active cells: %d / %d\n", out.Grid.ActiveCount(), cfg.GridW*cfg.GridH)
	fmt.Printf("Pieces: %d, studs: %d, unique items: %d\n",
		out.Result.TotalPieces, out.Result.TotalStuds, out.Result.UniqueItems)

	// Step 5: Write artifacts
	artifacts, err := EncodeResult(out.Result)
	if err != nil {
		return err
	}
	if cfg.Preview {
		fmt.Println("Rendering preview...")
		a, err := RenderPreview(out, pal, font, cfg.CellSize)
		if err != nil {
			return fmt.Errorf("rendering preview: %w", err)
		}
		artifacts = append(artifacts, a)
	}

	dir := imaging.ExpandPath(cfg.OutDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}
	for _, a := range artifacts {
		path := filepath.Join(dir, a.Name)
		fmt.Printf("Saving %s\n", path)
		if err := os.WriteFile(path, a.Data, 0o644); err != nil {
			return fmt.Errorf("saving %s: %w", a.Name, err)
		}
	}

	fmt.Println("Done!")
	return nil
}

// loadMask returns the mask file's contents, a background-derived mask, or
// nil. A malformed mask file is reported and ignored.
func loadMask(cfg cli.ComputeConfig, img image.Image) (*mask.Mask, error) {
	switch {
	case cfg.MaskPath != "":
		data, err := os.ReadFile(imaging.ExpandPath(cfg.MaskPath))
		if err != nil {
			return nil, fmt.Errorf("reading mask: %w", err)
		}
		m, ok := mask.FromJSON(data)
		if !ok {
			fmt.Println("Mask is not a 64x64 matrix, treating every cell as active")
			return nil, nil
		}
		fmt.Printf("Mask loaded: %.1f%% coverage\n", m.Coverage()*100)
		return m, nil
	case cfg.AutoMask:
		fmt.Println("Deriving mask from background...")
		m := mask.FromBackground(img, cfg.MaskTolerance)
		fmt.Printf("Mask coverage: %.1f%%\n", m.Coverage()*100)
		return m, nil
	}
	return nil, nil
}

func describe(src string) string {
	if len(src) > 64 {
		return src[:61] + "..."
	}
	return src
}

func scaleLegendConfig(cfg *renderer.Config, w int) {
	if w > 1000 {
		cfg.LegendCircleSize = 50
		cfg.LegendSpacing = 25
		cfg.LegendPadding = 30
		cfg.LegendMargin = 30
	} else if w > 500 {
		cfg.LegendCircleSize = 36
		cfg.LegendSpacing = 18
		cfg.LegendPadding = 24
		cfg.LegendMargin = 24
	}
}
