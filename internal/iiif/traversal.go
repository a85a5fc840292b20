package iiif

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync/atomic"
)

// Loader fetches the raw JSON of a resource reference. References starting
// with http:// or https:// are remote; anything else is a local path.
type Loader interface {
	LoadJSON(ctx context.Context, ref string) ([]byte, error)
}

// LoaderFunc adapts a function to the Loader interface.
type LoaderFunc func(ctx context.Context, ref string) ([]byte, error)

// LoadJSON calls f.
func (f LoaderFunc) LoadJSON(ctx context.Context, ref string) ([]byte, error) {
	return f(ctx, ref)
}

// ErrTraversalReused is yielded when a manifest sequence is ranged over a
// second time.
var ErrTraversalReused = errors.New("iiif: manifest traversal already consumed")

// LoadManifest fetches and parses a manifest.
func LoadManifest(ctx context.Context, l Loader, ref string) (*Manifest, error) {
	raw, err := l.LoadJSON(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("load manifest %s: %w", ref, err)
	}
	m, err := ParseManifest(raw)
	if err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", ref, err)
	}
	return m, nil
}

// LoadCollection fetches and parses a collection.
func LoadCollection(ctx context.Context, l Loader, ref string) (*Collection, error) {
	raw, err := l.LoadJSON(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("load collection %s: %w", ref, err)
	}
	c, err := ParseCollection(raw)
	if err != nil {
		return nil, fmt.Errorf("parse collection %s: %w", ref, err)
	}
	return c, nil
}

// TraverseOptions controls Manifests.
type TraverseOptions struct {
	// ContinueOnError yields a failing manifest reference together with its
	// error and moves on, instead of ending the sequence.
	ContinueOnError bool
	// Recursive expands nested collections[] depth-first after a
	// collection's own manifests.
	Recursive bool
}

// ManifestEntry is one yielded manifest. ID is the manifest's own @id for a
// root manifest and the referencing @id for collection members.
type ManifestEntry struct {
	ID       string
	Manifest *Manifest
}

// Manifests lazily yields the manifests reachable from ref. A manifest root
// yields itself; a collection yields each referenced manifest in order.
// Resources are fetched only as the sequence is consumed. The sequence can
// be ranged over once.
func Manifests(ctx context.Context, l Loader, ref string, opts TraverseOptions) iter.Seq2[ManifestEntry, error] {
	var used atomic.Bool
	return func(yield func(ManifestEntry, error) bool) {
		if used.Swap(true) {
			yield(ManifestEntry{}, ErrTraversalReused)
			return
		}
		t := &traversal{ctx: ctx, loader: l, opts: opts, seen: map[string]bool{}}
		t.root(ref, yield)
	}
}

type traversal struct {
	ctx    context.Context
	loader Loader
	opts   TraverseOptions
	seen   map[string]bool
}

func (t *traversal) root(ref string, yield func(ManifestEntry, error) bool) {
	raw, err := t.loader.LoadJSON(t.ctx, ref)
	if err != nil {
		yield(ManifestEntry{ID: ref}, fmt.Errorf("load %s: %w", ref, err))
		return
	}
	typ, err := DeclaredType(raw)
	if err != nil {
		yield(ManifestEntry{ID: ref}, fmt.Errorf("load %s: %w", ref, err))
		return
	}
	switch typ {
	case TypeManifest:
		m, err := ParseManifest(raw)
		if err != nil {
			yield(ManifestEntry{ID: ref}, fmt.Errorf("parse manifest %s: %w", ref, err))
			return
		}
		yield(ManifestEntry{ID: m.ID, Manifest: m}, nil)
	case TypeCollection:
		c, err := ParseCollection(raw)
		if err != nil {
			yield(ManifestEntry{ID: ref}, fmt.Errorf("parse collection %s: %w", ref, err))
			return
		}
		t.seen[ref] = true
		t.seen[c.ID] = true
		t.collection(c, yield)
	default:
		yield(ManifestEntry{ID: ref}, &UnsupportedResourceTypeError{Type: typ})
	}
}

// collection returns false when iteration must stop.
func (t *traversal) collection(c *Collection, yield func(ManifestEntry, error) bool) bool {
	for _, id := range c.ManifestIDs() {
		if err := t.ctx.Err(); err != nil {
			yield(ManifestEntry{ID: id}, err)
			return false
		}
		m, err := LoadManifest(t.ctx, t.loader, id)
		if err != nil {
			if !yield(ManifestEntry{ID: id}, err) || !t.opts.ContinueOnError {
				return false
			}
			continue
		}
		if !yield(ManifestEntry{ID: id, Manifest: m}, nil) {
			return false
		}
	}
	if !t.opts.Recursive {
		return true
	}
	for _, ref := range c.Collections {
		if ref.ID == "" || t.seen[ref.ID] {
			continue
		}
		t.seen[ref.ID] = true
		nested, err := LoadCollection(t.ctx, t.loader, ref.ID)
		if err != nil {
			if !yield(ManifestEntry{ID: ref.ID}, err) || !t.opts.ContinueOnError {
				return false
			}
			continue
		}
		if !t.collection(nested, yield) {
			return false
		}
	}
	return true
}
