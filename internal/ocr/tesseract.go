//go:build tesseract

package ocr

import (
	"context"
	"fmt"
	"strings"

	"github.com/otiai10/gosseract/v2"
)

// newTesseract returns the libtesseract-backed engine when the build tag is enabled.
func newTesseract(languages []string) (Engine, error) {
	return &tesseractEngine{languages: languages, newClient: gosseract.NewClient}, nil
}

type tesseractEngine struct {
	languages []string
	newClient func() *gosseract.Client
}

func (e *tesseractEngine) Name() string { return "tesseract" }

// Recognize treats model as a "+"-joined tesseract language list. DOI-style
// references, which only mean something to kraken, fall back to the
// configured languages.
func (e *tesseractEngine) Recognize(ctx context.Context, imagePath, model string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	langs := e.languages
	if model != "" && !LooksLikePersistentID(model) {
		langs = strings.Split(model, "+")
	}

	c := e.newClient()
	defer func() { _ = c.Close() }()

	if len(langs) > 0 {
		if err := c.SetLanguage(langs...); err != nil {
			return "", fmt.Errorf("set languages: %w", err)
		}
	}
	if err := c.SetImage(imagePath); err != nil {
		return "", fmt.Errorf("set image: %w", err)
	}
	text, err := c.Text()
	if err != nil {
		return "", fmt.Errorf("tesseract: %w", err)
	}
	return text, nil
}
