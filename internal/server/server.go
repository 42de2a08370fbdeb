// Package server exposes BOM computation, job artifacts and checkout over
// HTTP.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/maax3v3/brickify/internal/aggregation"
	"github.com/maax3v3/brickify/internal/cli"
	"github.com/maax3v3/brickify/internal/imaging"
	"github.com/maax3v3/brickify/internal/mask"
	"github.com/maax3v3/brickify/internal/palette"
	"github.com/maax3v3/brickify/internal/raster"
	"github.com/maax3v3/brickify/internal/renderer"
	"github.com/maax3v3/brickify/internal/store"
)

// Config holds the service settings.
type Config struct {
	AdminMode     bool
	PublicURL     string // origin for absolute URLs; empty uses the request origin
	Timeout       time.Duration
	MaxImageBytes int64
	MaxGrid       int
	Price         int
	Currency      string
	CellSize      int
	MaskPolicy    mask.Policy
	Proxy         imaging.ProxyPolicy
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		Timeout:       60 * time.Second,
		MaxImageBytes: imaging.DefaultMaxBytes,
		MaxGrid:       256,
		Price:         4900,
		Currency:      "KRW",
		CellSize:      12,
		MaskPolicy:    mask.DefaultPolicy(),
		Proxy:         imaging.DefaultProxyPolicy(),
	}
}

// ConfigFrom applies parsed flags on top of DefaultConfig.
func ConfigFrom(c cli.ServeConfig) Config {
	cfg := DefaultConfig()
	cfg.AdminMode = c.AdminMode
	cfg.PublicURL = c.PublicURL
	cfg.Timeout = c.Timeout
	cfg.MaxImageBytes = c.MaxImageBytes
	cfg.Price = c.Price
	cfg.Currency = c.Currency
	return cfg
}

// Server serves the brickify API.
type Server struct {
	store   *store.Store
	fetcher *imaging.Fetcher
	font    renderer.FontRenderer
	cfg     Config
}

// New returns a server backed by st. A nil fetcher uses the default HTTP
// client.
func New(st *store.Store, fetcher *imaging.Fetcher, cfg Config) *Server {
	if fetcher == nil {
		fetcher = imaging.NewFetcher(nil)
	}
	fetcher.MaxBytes = cfg.MaxImageBytes
	fetcher.AllowFiles = false
	return &Server{
		store:   st,
		fetcher: fetcher,
		font:    renderer.NewBitmapFont(),
		cfg:     cfg,
	}
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(LoggingMiddleware)
	r.Use(middleware.Recoverer)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSONError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Get("/healthz", s.healthz)
	r.Route("/api", func(r chi.Router) {
		r.Post("/upload", s.upload)
		r.Post("/bom", s.computeBOM)
		r.Post("/save-bom", s.saveBOM)
		r.Get("/download", s.download)
		r.Get("/files/{jobID}/{name}", s.file)
		r.Post("/checkout", s.checkout)
		r.Get("/image-proxy", s.imageProxy)
	})
	return r
}

// statusError carries an explicit HTTP status.
type statusError struct {
	code int
	err  error
}

func (e *statusError) Error() string { return e.err.Error() }

func (e *statusError) Unwrap() error { return e.err }

func badRequest(format string, args ...any) error {
	return &statusError{code: http.StatusBadRequest, err: fmt.Errorf(format, args...)}
}

func statusOf(err error) int {
	var se *statusError
	switch {
	case errors.As(err, &se):
		return se.code
	case errors.Is(err, palette.ErrInvalid),
		errors.Is(err, store.ErrInvalidJobID),
		errors.Is(err, imaging.ErrProxyURL),
		errors.Is(err, raster.ErrGridSize),
		errors.Is(err, aggregation.ErrInconsistent):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, imaging.ErrLoad):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// writeError maps err to a status code and writes it as a JSON error.
func writeError(w http.ResponseWriter, err error) {
	code := statusOf(err)
	if code >= http.StatusInternalServerError {
		log.Printf("internal error: %v", err)
	}
	writeJSONError(w, code, err.Error())
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("failed to encode json response: %v", err)
	}
}

// decodeJSON reads a JSON body of at most limit bytes into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, limit int64, v any) error {
	body := http.MaxBytesReader(w, r.Body, limit)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return &statusError{code: http.StatusRequestEntityTooLarge, err: fmt.Errorf("request body exceeds %d bytes", mbe.Limit)}
		}
		return badRequest("invalid JSON body: %w", err)
	}
	return nil
}

// origin returns the scheme and host used for absolute URLs.
func (s *Server) origin(r *http.Request) string {
	if s.cfg.PublicURL != "" {
		return s.cfg.PublicURL
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if fwd := r.Header.Get("X-Forwarded-Proto"); fwd == "http" || fwd == "https" {
		scheme = fwd
	}
	return scheme + "://" + r.Host
}

const filesPrefix = "/api/files/"

func filePath(jobID, name string) string {
	return filesPrefix + jobID + "/" + name
}

func (s *Server) fileURL(r *http.Request, jobID, name string) string {
	return s.origin(r) + filePath(jobID, name)
}
