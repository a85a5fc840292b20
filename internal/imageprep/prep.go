// Package imageprep derives OCR input images from cached page images:
// bounded size and optional grayscale conversion.
package imageprep

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	_ "golang.org/x/image/bmp"  // register decoder
	_ "golang.org/x/image/tiff" // register decoder
	_ "golang.org/x/image/webp" // register decoder
)

// Options selects the transformations. The zero value disables them.
type Options struct {
	// MaxSide bounds the longer image side in pixels; 0 keeps the size.
	MaxSide   int  `mapstructure:"max_side" yaml:"max_side" json:"max_side" validate:"gte=0"`
	Grayscale bool `mapstructure:"grayscale" yaml:"grayscale" json:"grayscale"`
}

// Enabled reports whether Prepare would do anything.
func (o Options) Enabled() bool {
	return o.MaxSide > 0 || o.Grayscale
}

// DerivedPath is where Prepare writes the variant of src for o.
func DerivedPath(src string, o Options) string {
	base := strings.TrimSuffix(src, filepath.Ext(src))
	suffix := fmt.Sprintf(".prep-%d", o.MaxSide)
	if o.Grayscale {
		suffix += "-gray"
	}
	return base + suffix + ".png"
}

// Prepare returns the image to hand to the OCR engine: src itself when no
// transformation is enabled, otherwise a PNG derived from it. Derived files
// are reused across calls.
func Prepare(src string, o Options) (string, error) {
	if !o.Enabled() {
		return src, nil
	}
	dst := DerivedPath(src, o)
	if info, err := os.Stat(dst); err == nil && info.Size() > 0 {
		return dst, nil
	}

	img, err := imaging.Open(src, imaging.AutoOrientation(true))
	if err != nil {
		return "", fmt.Errorf("open %s: %w", src, err)
	}

	b := img.Bounds()
	if o.MaxSide > 0 && (b.Dx() > o.MaxSide || b.Dy() > o.MaxSide) {
		img = imaging.Fit(img, o.MaxSide, o.MaxSide, imaging.Lanczos)
	}
	if o.Grayscale {
		img = imaging.Grayscale(img)
	}

	tmp := dst + ".part-" + uuid.NewString()
	f, err := os.Create(tmp) //nolint:gosec // G304: derived from cache path
	if err != nil {
		return "", fmt.Errorf("create %s: %w", tmp, err)
	}
	if err := imaging.Encode(f, img, imaging.PNG); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return "", fmt.Errorf("encode %s: %w", dst, err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("close %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, dst); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("commit %s: %w", dst, err)
	}
	return dst, nil
}
