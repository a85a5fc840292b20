package testutil

import (
	"bytes"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// ImageSize represents image dimensions.
type ImageSize struct {
	Width  int
	Height int
}

var (
	// Common page sizes.
	SmallSize  = ImageSize{320, 240}
	MediumSize = ImageSize{640, 480}
)

// GenerateTextImage renders text centered on a white page.
func GenerateTextImage(text string, size ImageSize) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, size.Width, size.Height))
	draw.Draw(img, img.Bounds(), &image.Uniform{color.White}, image.Point{}, draw.Src)

	face := basicfont.Face7x13
	drawer := &font.Drawer{
		Dst:  img,
		Src:  &image.Uniform{color.Black},
		Face: face,
	}
	textWidth := font.MeasureString(face, text).Ceil()
	textHeight := face.Metrics().Height.Ceil()
	drawer.Dot = fixed.P((size.Width-textWidth)/2, (size.Height+textHeight)/2)
	drawer.DrawString(text)

	return img
}

// CreateTestImage creates a uniformly colored image.
func CreateTestImage(width, height int, c color.Color) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), &image.Uniform{c}, image.Point{}, draw.Src)
	return img
}

// EncodePNG returns img as PNG bytes.
func EncodePNG(t testing.TB, img image.Image) []byte {
	t.Helper()

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// EncodeJPEG returns img as JPEG bytes.
func EncodeJPEG(t testing.TB, img image.Image) []byte {
	t.Helper()

	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}))
	return buf.Bytes()
}

// SaveImage saves an image to the specified path as PNG.
func SaveImage(t *testing.T, img image.Image, path string) {
	t.Helper()

	require.NoError(t, EnsureDir(filepath.Dir(path)))
	require.NoError(t, os.WriteFile(path, EncodePNG(t, img), 0o600))
}
