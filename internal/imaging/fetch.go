package imaging

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"io"
	"net/http"
	"net/url"
	"os"
	"regexp"
	"strings"
)

// DefaultMaxBytes caps downloaded and uploaded images.
const DefaultMaxBytes = 10 << 20

// Fetcher obtains image bytes from data URLs, http(s) URLs and, when
// AllowFiles is set, local paths.
type Fetcher struct {
	Client     *http.Client
	MaxBytes   int64
	AllowFiles bool
}

// NewFetcher returns a fetcher with the default size cap.
func NewFetcher(client *http.Client) *Fetcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &Fetcher{Client: client, MaxBytes: DefaultMaxBytes}
}

// Fetch returns the raw bytes behind src. Every failure is a *LoadError.
func (f *Fetcher) Fetch(ctx context.Context, src string) ([]byte, string, error) {
	var (
		data        []byte
		contentType string
		err         error
	)
	switch {
	case strings.HasPrefix(src, "data:"):
		data, contentType, err = decodeDataURL(src)
	case strings.HasPrefix(src, "http://"), strings.HasPrefix(src, "https://"):
		data, contentType, err = f.get(ctx, src)
	case f.AllowFiles && src != "":
		data, err = os.ReadFile(ExpandPath(src))
	default:
		err = fmt.Errorf("unsupported image source")
	}
	if err != nil {
		return nil, "", loadErr(src, err)
	}
	if len(data) == 0 {
		return nil, "", loadErr(src, ErrEmpty)
	}
	if f.MaxBytes > 0 && int64(len(data)) > f.MaxBytes {
		return nil, "", loadErr(src, fmt.Errorf("image exceeds %d bytes", f.MaxBytes))
	}
	return data, contentType, nil
}

// FetchImage fetches and decodes src.
func (f *Fetcher) FetchImage(ctx context.Context, src string) (image.Image, error) {
	data, _, err := f.Fetch(ctx, src)
	if err != nil {
		return nil, err
	}
	img, _, err := Decode(data)
	if err != nil {
		return nil, loadErr(src, err)
	}
	return img, nil
}

func (f *Fetcher) get(ctx context.Context, src string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return nil, "", err
	}
	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, "", fmt.Errorf("upstream fetch failed: %d", resp.StatusCode)
	}

	var body io.Reader = resp.Body
	if f.MaxBytes > 0 {
		body = io.LimitReader(resp.Body, f.MaxBytes+1)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, "", fmt.Errorf("reading body: %w", err)
	}
	return data, resp.Header.Get("Content-Type"), nil
}

// decodeDataURL handles "data:[<mediatype>][;base64],<payload>".
func decodeDataURL(src string) ([]byte, string, error) {
	comma := strings.IndexByte(src, ',')
	if comma < 0 {
		return nil, "", fmt.Errorf("malformed data URL")
	}
	meta, payload := src[len("data:"):comma], src[comma+1:]

	contentType := meta
	isBase64 := strings.HasSuffix(meta, ";base64")
	if isBase64 {
		contentType = strings.TrimSuffix(meta, ";base64")
	}
	if i := strings.IndexByte(contentType, ';'); i >= 0 {
		contentType = contentType[:i]
	}

	if !isBase64 {
		data, err := url.PathUnescape(payload)
		if err != nil {
			return nil, "", fmt.Errorf("unescaping data URL: %w", err)
		}
		return []byte(data), contentType, nil
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		// Some encoders drop the padding.
		var rawErr error
		data, rawErr = base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "="))
		if rawErr != nil {
			return nil, "", fmt.Errorf("decoding base64 payload: %w", err)
		}
	}
	return data, contentType, nil
}

// ErrProxyURL is returned for URLs the image proxy refuses to fetch.
var ErrProxyURL = errors.New("url not allowed")

// ProxyPolicy restricts which remote images may be relayed.
type ProxyPolicy struct {
	HostPattern *regexp.Regexp
	PathPrefix  string
}

// DefaultProxyPolicy allows public objects of hosted storage buckets.
func DefaultProxyPolicy() ProxyPolicy {
	return ProxyPolicy{
		HostPattern: regexp.MustCompile(`(?i)^[a-z0-9-]+(?:\.[a-z0-9-]+)*\.supabase\.co$`),
		PathPrefix:  "/storage/v1/object/public/",
	}
}

// Check parses raw and verifies it is an https URL on an allowed host under
// the allowed path prefix.
func (p ProxyPolicy) Check(raw string) (*url.URL, error) {
	if raw == "" {
		return nil, fmt.Errorf("%w: url is required", ErrProxyURL)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid url", ErrProxyURL)
	}
	if u.Scheme != "https" {
		return nil, fmt.Errorf("%w: only https is allowed", ErrProxyURL)
	}
	if p.HostPattern == nil || !p.HostPattern.MatchString(u.Hostname()) {
		return nil, fmt.Errorf("%w: host is not allowed", ErrProxyURL)
	}
	if p.PathPrefix != "" && !strings.HasPrefix(u.Path, p.PathPrefix) {
		return nil, fmt.Errorf("%w: invalid path", ErrProxyURL)
	}
	return u, nil
}
