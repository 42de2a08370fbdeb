package imaging

import (
	"context"
	"encoding/base64"
	"errors"
	"image"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	data, err := EncodePNG(image.NewRGBA(image.Rect(0, 0, w, h)))
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func TestFetch_DataURL(t *testing.T) {
	data := pngBytes(t, 3, 3)
	f := NewFetcher(nil)

	src := "data:image/png;base64," + base64.StdEncoding.EncodeToString(data)
	got, ct, err := f.Fetch(context.Background(), src)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if ct != "image/png" || len(got) != len(data) {
		t.Errorf("got content type %q, %d bytes", ct, len(got))
	}

	unpadded := "data:image/png;base64," + base64.RawStdEncoding.EncodeToString(data)
	if _, _, err := f.Fetch(context.Background(), unpadded); err != nil {
		t.Errorf("unpadded base64: %v", err)
	}

	got, ct, err = f.Fetch(context.Background(), "data:text/plain;charset=utf-8,a%20b")
	if err != nil || string(got) != "a b" || ct != "text/plain" {
		t.Errorf("percent-encoded: got %q %q %v", got, ct, err)
	}
}

func TestFetch_DataURLErrors(t *testing.T) {
	f := NewFetcher(nil)
	for _, src := range []string{
		"data:image/png;base64",
		"data:image/png;base64,!!!",
		"data:image/png;base64,",
	} {
		if _, _, err := f.Fetch(context.Background(), src); !errors.Is(err, ErrLoad) {
			t.Errorf("Fetch(%q): expected ErrLoad, got %v", src, err)
		}
	}
}

func TestFetch_HTTP(t *testing.T) {
	data := pngBytes(t, 5, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok.png":
			w.Header().Set("Content-Type", "image/png")
			w.Write(data)
		case "/empty.png":
			w.WriteHeader(http.StatusOK)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	f := NewFetcher(srv.Client())

	img, err := f.FetchImage(context.Background(), srv.URL+"/ok.png")
	if err != nil {
		t.Fatalf("FetchImage: %v", err)
	}
	if img.Bounds().Dx() != 5 || img.Bounds().Dy() != 4 {
		t.Errorf("dimensions %v", img.Bounds())
	}

	for _, path := range []string{"/missing.png", "/empty.png"} {
		if _, err := f.FetchImage(context.Background(), srv.URL+path); !errors.Is(err, ErrLoad) {
			t.Errorf("%s: expected ErrLoad, got %v", path, err)
		}
	}

	f.MaxBytes = 10
	if _, _, err := f.Fetch(context.Background(), srv.URL+"/ok.png"); !errors.Is(err, ErrLoad) {
		t.Errorf("oversized: expected ErrLoad, got %v", err)
	}
}

func TestFetch_CanceledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("x"))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := NewFetcher(srv.Client()).Fetch(ctx, srv.URL)
	if !errors.Is(err, context.Canceled) || !errors.Is(err, ErrLoad) {
		t.Errorf("expected a canceled load error, got %v", err)
	}
}

func TestFetchImage_CorruptData(t *testing.T) {
	src := "data:image/png;base64," + base64.StdEncoding.EncodeToString([]byte("nope"))
	_, err := NewFetcher(nil).FetchImage(context.Background(), src)
	var le *LoadError
	if !errors.As(err, &le) {
		t.Fatalf("expected *LoadError, got %v", err)
	}
	if le.Source != "data URL (image/png)" {
		t.Errorf("source = %q", le.Source)
	}
}

func TestFetch_LocalFiles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.png")
	if err := os.WriteFile(path, pngBytes(t, 1, 1), 0644); err != nil {
		t.Fatal(err)
	}

	f := NewFetcher(nil)
	if _, _, err := f.Fetch(context.Background(), path); !errors.Is(err, ErrLoad) {
		t.Errorf("local files must be refused by default, got %v", err)
	}

	f.AllowFiles = true
	if _, err := f.FetchImage(context.Background(), path); err != nil {
		t.Errorf("AllowFiles: %v", err)
	}
}

func TestProxyPolicy_Check(t *testing.T) {
	p := DefaultProxyPolicy()
	tests := []struct {
		name    string
		raw     string
		wantErr bool
	}{
		{"public object", "https://abc.supabase.co/storage/v1/object/public/bucket/a.png", false},
		{"nested subdomain", "https://x.y.supabase.co/storage/v1/object/public/a.png", false},
		{"empty", "", true},
		{"http", "http://abc.supabase.co/storage/v1/object/public/a.png", true},
		{"other host", "https://example.com/storage/v1/object/public/a.png", true},
		{"suffix trick", "https://abc.supabase.co.evil.com/storage/v1/object/public/a.png", true},
		{"private path", "https://abc.supabase.co/storage/v1/object/sign/a.png", true},
		{"garbage", "::::", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.Check(tt.raw)
			if tt.wantErr {
				if !errors.Is(err, ErrProxyURL) {
					t.Errorf("expected ErrProxyURL, got %v", err)
				}
				return
			}
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}
