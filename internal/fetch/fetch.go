// Package fetch retrieves IIIF documents and images over HTTP(S) or from
// the local filesystem.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/MeKo-Tech/folio/internal/version"
)

const (
	// DefaultManifestTimeout bounds a single document request.
	DefaultManifestTimeout = 10 * time.Second
	// DefaultImageTimeout bounds a single image request.
	DefaultImageTimeout = 30 * time.Second
)

// ErrNotFound matches HTTP 404 responses and missing local files.
var ErrNotFound = errors.New("resource not found")

// Error describes a failed fetch.
type Error struct {
	URL        string
	Message    string
	StatusCode int
	Cause      error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("fetch %s: %s: %v", e.URL, e.Message, e.Cause)
	}
	return fmt.Sprintf("fetch %s: %s", e.URL, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is lets errors.Is(err, ErrNotFound) match 404 responses.
func (e *Error) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == http.StatusNotFound
}

// Options configures a Client.
type Options struct {
	ManifestTimeout time.Duration
	ImageTimeout    time.Duration
	UserAgent       string
	Headers         map[string]string
}

// DefaultOptions returns the default request settings.
func DefaultOptions() *Options {
	return &Options{
		ManifestTimeout: DefaultManifestTimeout,
		ImageTimeout:    DefaultImageTimeout,
		UserAgent:       DefaultUserAgent(),
	}
}

// DefaultUserAgent identifies the build.
func DefaultUserAgent() string {
	return "folio/" + version.Version
}

// Client loads JSON documents and image bytes. Redirects are followed.
type Client struct {
	http *http.Client
	opts Options
}

// New returns a client. A nil opts uses DefaultOptions; zero fields are
// filled from it.
func New(opts *Options) *Client {
	d := DefaultOptions()
	o := *d
	if opts != nil {
		o = *opts
		if o.ManifestTimeout <= 0 {
			o.ManifestTimeout = d.ManifestTimeout
		}
		if o.ImageTimeout <= 0 {
			o.ImageTimeout = d.ImageTimeout
		}
		if o.UserAgent == "" {
			o.UserAgent = d.UserAgent
		}
	}
	return &Client{http: &http.Client{}, opts: o}
}

// WithHTTPClient replaces the underlying HTTP client.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.http = hc
	return c
}

// IsRemote reports whether ref is an http(s) URL.
func IsRemote(ref string) bool {
	return strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://")
}

// ExpandHome replaces a leading ~ with the user's home directory.
func ExpandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

// LoadJSON returns the raw body of a remote document or the contents of a
// local file.
func (c *Client) LoadJSON(ctx context.Context, ref string) ([]byte, error) {
	if !IsRemote(ref) {
		data, err := os.ReadFile(ExpandHome(ref))
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, &Error{URL: ref, Message: "file not found", StatusCode: http.StatusNotFound, Cause: err}
			}
			return nil, &Error{URL: ref, Message: "failed to read file", Cause: err}
		}
		return data, nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.opts.ManifestTimeout)
	defer cancel()

	var buf strings.Builder
	if _, err := c.get(ctx, ref, "application/json, application/ld+json;q=0.9, */*;q=0.1", &buf); err != nil {
		return nil, err
	}
	return []byte(buf.String()), nil
}

// Download streams the body of url into w and returns the byte count.
func (c *Client) Download(ctx context.Context, url string, w io.Writer) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.ImageTimeout)
	defer cancel()

	return c.get(ctx, url, "image/*", w)
}

func (c *Client) get(ctx context.Context, url, accept string, w io.Writer) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, &Error{URL: url, Message: "failed to create request", Cause: err}
	}
	req.Header.Set("User-Agent", c.opts.UserAgent)
	req.Header.Set("Accept", accept)
	for key, value := range c.opts.Headers {
		req.Header.Set(key, value)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, &Error{URL: url, Message: "HTTP request failed", Cause: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return 0, &Error{
			URL:        url,
			Message:    fmt.Sprintf("HTTP status %d", resp.StatusCode),
			StatusCode: resp.StatusCode,
		}
	}

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, &Error{URL: url, Message: "failed to read response body", Cause: err}
	}
	return n, nil
}
