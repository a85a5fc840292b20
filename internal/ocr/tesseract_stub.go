//go:build !tesseract

package ocr

import "fmt"

// ErrTesseractNotLinked is returned by the tesseract engine in builds without libtesseract.
var ErrTesseractNotLinked = fmt.Errorf("%w: tesseract not linked; build with -tags=tesseract", ErrEngineUnavailable)

func newTesseract(_ []string) (Engine, error) { return nil, ErrTesseractNotLinked }
