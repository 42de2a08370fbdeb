package cli

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/maax3v3/brickify/internal/imaging"
	"github.com/maax3v3/brickify/internal/mask"
	"github.com/maax3v3/brickify/internal/raster"
)

// ErrHelp is returned when -h or -help was requested.
var ErrHelp = flag.ErrHelp

// ComputeConfig holds the parsed arguments of the one-shot CLI.
type ComputeConfig struct {
	InPath          string // file path, http(s) URL or data URL
	OutDir          string
	Palette         []string
	AutoPalette     bool
	FallbackPalette bool
	MaskPath        string
	AutoMask        bool
	MaskTolerance   float64
	Policy          mask.Policy
	GridW           int
	GridH           int
	Resample        string
	Preview         bool
	CellSize        int
	Timeout         time.Duration
}

// ServeConfig holds the parsed arguments of the HTTP service.
type ServeConfig struct {
	Addr          string
	DBPath        string
	AdminMode     bool
	PublicURL     string
	Timeout       time.Duration
	MaxImageBytes int64
	Price         int
	Currency      string
}

// ParseCompute parses the one-shot CLI arguments and returns a validated
// ComputeConfig.
func ParseCompute(args []string, stderr io.Writer) (ComputeConfig, error) {
	fs := flag.NewFlagSet("brickify", flag.ContinueOnError)
	fs.SetOutput(stderr)

	inPath := fs.String("in", "", "Preview image: path, http(s) URL or data URL (required)")
	outDir := fs.String("out-dir", "", "Directory for bom.json, parts-list.csv and preview.png (required)")
	pal := fs.String("palette", "", `Eight comma-separated #RRGGBB colors, or "auto" to extract them from the image (required)`)
	fallback := fs.Bool("fallback-palette", false, "Use the default brick palette when -palette is invalid")
	maskPath := fs.String("mask", "", "Path to a JSON file holding a 64x64 subject mask")
	autoMask := fs.Bool("auto-mask", false, "Derive the subject mask from the image background when -mask is not given")
	maskTolerance := fs.Float64("mask-tolerance", 12, "Background tolerance percentage for -auto-mask (0-100)")
	maskPolicy := fs.String("mask-policy", "default", `Degenerate mask handling: "default" replaces near-empty or near-full masks with a centered circle, "off" keeps them`)
	gridW := fs.Int("grid-w", 64, "Grid width in studs")
	gridH := fs.Int("grid-h", 64, "Grid height in studs")
	resample := fs.String("resample", raster.ScalerBilinear, "Resampling when the image is not grid sized (bilinear, nearest, catmullrom)")
	preview := fs.Bool("preview", true, "Render preview.png")
	cellSize := fs.Int("cell-size", 12, "Preview pixels per stud")
	timeout := fs.Duration("timeout", 30*time.Second, "Timeout for fetching a remote image")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: brickify [options]\n\nOptions:\n")
		fs.PrintDefaults()
		fmt.Fprintf(stderr, "\nExample:\n  brickify -in=preview.png -out-dir=out -palette=#F2F3F2,#1B2A34,#C4281B,#0D69AB,#F5CD2F,#287F46,#D7C599,#A3A2A4\n")
	}

	if err := fs.Parse(args); err != nil {
		return ComputeConfig{}, err
	}

	if *inPath == "" {
		return ComputeConfig{}, fmt.Errorf("-in is required")
	}
	if *outDir == "" {
		return ComputeConfig{}, fmt.Errorf("-out-dir is required")
	}
	if *pal == "" && !*fallback {
		return ComputeConfig{}, fmt.Errorf("-palette is required")
	}
	if *gridW <= 0 || *gridH <= 0 {
		return ComputeConfig{}, fmt.Errorf("-grid-w and -grid-h must be positive, got %dx%d", *gridW, *gridH)
	}
	if *maskTolerance < 0 || *maskTolerance > 100 {
		return ComputeConfig{}, fmt.Errorf("-mask-tolerance must be between 0 and 100, got %f", *maskTolerance)
	}
	if *cellSize < 1 {
		return ComputeConfig{}, fmt.Errorf("-cell-size must be >= 1, got %d", *cellSize)
	}
	if _, err := raster.ScalerByName(*resample); err != nil {
		return ComputeConfig{}, fmt.Errorf("-resample: %w", err)
	}

	cfg := ComputeConfig{
		InPath:          *inPath,
		OutDir:          *outDir,
		FallbackPalette: *fallback,
		MaskPath:        *maskPath,
		AutoMask:        *autoMask,
		MaskTolerance:   *maskTolerance,
		GridW:           *gridW,
		GridH:           *gridH,
		Resample:        *resample,
		Preview:         *preview,
		CellSize:        *cellSize,
		Timeout:         *timeout,
	}

	switch strings.ToLower(*maskPolicy) {
	case "default":
		cfg.Policy = mask.DefaultPolicy()
	case "off":
	default:
		return ComputeConfig{}, fmt.Errorf("-mask-policy must be \"default\" or \"off\", got %q", *maskPolicy)
	}

	if strings.EqualFold(strings.TrimSpace(*pal), "auto") {
		cfg.AutoPalette = true
	} else if *pal != "" {
		cfg.Palette = SplitList(*pal)
	}

	return cfg, nil
}

// ParseServe parses the service arguments. Unset flags fall back to the
// BRICKIFY_* environment variables read through getenv.
func ParseServe(args []string, getenv func(string) string, stderr io.Writer) (ServeConfig, error) {
	if getenv == nil {
		getenv = os.Getenv
	}
	fs := flag.NewFlagSet("brickifyd", flag.ContinueOnError)
	fs.SetOutput(stderr)

	addr := fs.String("addr", envOr(getenv, "BRICKIFY_ADDR", ":8080"), "Listen address")
	dbPath := fs.String("db", envOr(getenv, "BRICKIFY_DB", "brickify.db"), "SQLite database path")
	admin := fs.Bool("admin-mode", Truthy(getenv("BRICKIFY_ADMIN_MODE")), "Bypass payment at checkout")
	publicURL := fs.String("public-url", getenv("BRICKIFY_PUBLIC_URL"), "Origin used in checkout redirect URLs (default: request origin)")
	timeout := fs.Duration("timeout", 60*time.Second, "Per-request compute timeout")
	maxBytes := fs.Int64("max-image-bytes", imaging.DefaultMaxBytes, "Largest accepted image in bytes")
	price := fs.Int("price", 4900, "Checkout amount")
	currency := fs.String("currency", "KRW", "Checkout currency")

	if err := fs.Parse(args); err != nil {
		return ServeConfig{}, err
	}

	if *addr == "" {
		return ServeConfig{}, fmt.Errorf("-addr is required")
	}
	if *dbPath == "" {
		return ServeConfig{}, fmt.Errorf("-db is required")
	}
	if *timeout <= 0 {
		return ServeConfig{}, fmt.Errorf("-timeout must be positive, got %s", *timeout)
	}
	if *maxBytes <= 0 {
		return ServeConfig{}, fmt.Errorf("-max-image-bytes must be positive, got %d", *maxBytes)
	}
	if *price < 0 {
		return ServeConfig{}, fmt.Errorf("-price must be >= 0, got %d", *price)
	}

	return ServeConfig{
		Addr:          *addr,
		DBPath:        *dbPath,
		AdminMode:     *admin,
		PublicURL:     strings.TrimRight(*publicURL, "/"),
		Timeout:       *timeout,
		MaxImageBytes: *maxBytes,
		Price:         *price,
		Currency:      strings.ToUpper(*currency),
	}, nil
}

// Truthy reports whether s is one of 1, true, yes, on (case-insensitive).
func Truthy(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

// SplitList splits a comma-separated flag value and trims each element.
func SplitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// IsHelp reports whether err signals a help request rather than a failure.
func IsHelp(err error) bool {
	return errors.Is(err, ErrHelp)
}

func envOr(getenv func(string) string, key, def string) string {
	if v := getenv(key); v != "" {
		return v
	}
	return def
}
