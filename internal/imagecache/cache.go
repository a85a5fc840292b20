// Package imagecache stores downloaded page images under content-addressed
// names so repeated runs fetch each image URL once.
package imagecache

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"  // register decoder
	_ "image/jpeg" // register decoder
	_ "image/png"  // register decoder
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	_ "golang.org/x/image/bmp"  // register decoder
	_ "golang.org/x/image/tiff" // register decoder
	_ "golang.org/x/image/webp" // register decoder

	"github.com/MeKo-Tech/folio/internal/address"
)

// ErrUndecodable is returned when verification is on and the fetched bytes
// are not an image of a known format.
var ErrUndecodable = errors.New("downloaded file is not a decodable image")

// Downloader streams the body of an image URL.
type Downloader interface {
	Download(ctx context.Context, url string, w io.Writer) (int64, error)
}

// Cache is a directory of images named by the SHA-1 of their URL.
type Cache struct {
	root   string
	dl     Downloader
	verify bool
	logger *slog.Logger
}

// Option configures a Cache.
type Option func(*Cache)

// WithVerify checks that downloaded bytes decode as an image before they
// are committed to the cache. Formats without a registered decoder are not
// checked.
func WithVerify(v bool) Option {
	return func(c *Cache) { c.verify = v }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Cache) { c.logger = l }
}

// New returns a cache rooted at root.
func New(root string, dl Downloader, opts ...Option) *Cache {
	c := &Cache{root: root, dl: dl, logger: slog.Default()}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Root returns the cache directory.
func (c *Cache) Root() string {
	return c.root
}

// Path returns where url is cached for format.
func (c *Cache) Path(url, format string) string {
	return address.ImageCachePath(url, c.root, format)
}

// Ensure returns the local path of url, downloading it on a miss. hit is
// true when no download was needed. The file appears under its final name
// only once complete, so concurrent callers never see partial images.
func (c *Cache) Ensure(ctx context.Context, url, format string) (path string, hit bool, err error) {
	path = c.Path(url, format)
	if info, err := os.Stat(path); err == nil && info.Mode().IsRegular() && info.Size() > 0 {
		return path, true, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return "", false, fmt.Errorf("create cache directory: %w", err)
	}

	tmp := path + ".part-" + uuid.NewString()
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644) //nolint:gosec // G302/G304: cache file
	if err != nil {
		return "", false, fmt.Errorf("create cache file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp)
		}
	}()

	n, err := c.dl.Download(ctx, url, f)
	if cerr := f.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("close cache file: %w", cerr)
	}
	if err != nil {
		return "", false, err
	}

	if c.verify && verifiable(format) {
		if err = checkDecodable(tmp); err != nil {
			return "", false, fmt.Errorf("%s: %w", url, err)
		}
	}

	if err = os.Rename(tmp, path); err != nil {
		return "", false, fmt.Errorf("commit cache file: %w", err)
	}
	c.logger.Debug("Cached image", "url", url, "path", path, "bytes", n)
	return path, false, nil
}

func verifiable(format string) bool {
	switch strings.ToLower(format) {
	case "jpg", "jpeg", "png", "gif", "tif", "tiff", "webp", "bmp":
		return true
	default:
		return false
	}
}

func checkDecodable(path string) error {
	f, err := os.Open(path) //nolint:gosec // G304: cache file
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	if _, _, err := image.DecodeConfig(f); err != nil {
		return fmt.Errorf("%w: %v", ErrUndecodable, err)
	}
	return nil
}
