// Package ocr defines the OCR capability used by the pipeline and its
// adapters: the kraken command-line tool and, when built with the
// tesseract tag, libtesseract via gosseract.
package ocr

import (
	"context"
	"errors"
	"strings"
	"sync"
)

// DefaultModel is the kraken model used when none is configured
// (CATMuS Print Fondue Large).
const DefaultModel = "10.5281/zenodo.10592716"

// ErrEngineUnavailable is returned when the engine's executable or library
// is missing.
var ErrEngineUnavailable = errors.New("ocr engine unavailable")

// Engine recognizes the text of a single page image.
type Engine interface {
	Name() string
	// Recognize returns the page text, possibly empty. A failure applies to
	// this page only.
	Recognize(ctx context.Context, imagePath, model string) (string, error)
}

// ModelResolver turns a model reference into the identifier handed to the
// engine, installing the model first when needed.
type ModelResolver interface {
	EnsureAvailable(ctx context.Context, ref string) (string, error)
}

// ResolverFunc adapts a function to ModelResolver.
type ResolverFunc func(ctx context.Context, ref string) (string, error)

// EnsureAvailable calls f.
func (f ResolverFunc) EnsureAvailable(ctx context.Context, ref string) (string, error) {
	return f(ctx, ref)
}

// Passthrough resolves every reference to itself.
var Passthrough ModelResolver = ResolverFunc(func(_ context.Context, ref string) (string, error) {
	return ref, nil
})

// LooksLikePersistentID reports whether ref is a DOI-style reference that
// must be installed before use.
func LooksLikePersistentID(ref string) bool {
	return strings.HasPrefix(ref, "10.") || strings.Contains(ref, "zenodo.")
}

// Memoize wraps r so each reference is resolved at most once. Failed
// resolutions are not cached.
func Memoize(r ModelResolver) ModelResolver {
	return &memoResolver{next: r, done: map[string]string{}}
}

type memoResolver struct {
	next ModelResolver
	mu   sync.Mutex
	done map[string]string
}

func (m *memoResolver) EnsureAvailable(ctx context.Context, ref string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.done[ref]; ok {
		return v, nil
	}
	v, err := m.next.EnsureAvailable(ctx, ref)
	if err != nil {
		return "", err
	}
	m.done[ref] = v
	return v, nil
}
