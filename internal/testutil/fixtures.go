package testutil

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

// CanvasFixture describes one canvas of a fixture manifest.
type CanvasFixture struct {
	ID string
	// ServiceID is the Image API base. Empty produces an image resource
	// without a service.
	ServiceID string
	// NoImages produces a canvas with an empty images[].
	NoImages bool
}

// Pages returns n canvases under manifestID whose services live under
// serviceBase, named p1..pn.
func Pages(manifestID, serviceBase string, n int) []CanvasFixture {
	pages := make([]CanvasFixture, n)
	for i := range pages {
		pages[i] = CanvasFixture{
			ID:        fmt.Sprintf("%s/canvas/p%d", manifestID, i+1),
			ServiceID: fmt.Sprintf("%s/p%d", serviceBase, i+1),
		}
	}
	return pages
}

// ManifestDoc builds a single-sequence manifest document.
func ManifestDoc(id string, canvases ...CanvasFixture) map[string]any {
	cs := make([]any, 0, len(canvases))
	for _, c := range canvases {
		canvas := map[string]any{
			"@id":    c.ID,
			"@type":  "sc:Canvas",
			"label":  c.ID,
			"width":  1000,
			"height": 1500,
		}
		if c.NoImages {
			canvas["images"] = []any{}
		} else {
			resource := map[string]any{
				"@id":    c.ID + "/full.jpg",
				"@type":  "dctypes:Image",
				"format": "image/jpeg",
			}
			if c.ServiceID != "" {
				resource["service"] = map[string]any{
					"@context": "http://iiif.io/api/image/2/context.json",
					"@id":      c.ServiceID,
					"profile":  "http://iiif.io/api/image/2/level1.json",
				}
			}
			canvas["images"] = []any{map[string]any{
				"@type":      "oa:Annotation",
				"motivation": "sc:painting",
				"resource":   resource,
				"on":         c.ID,
			}}
		}
		cs = append(cs, canvas)
	}
	return map[string]any{
		"@context": "http://iiif.io/api/presentation/2/context.json",
		"@id":      id,
		"@type":    "sc:Manifest",
		"label":    "Fixture " + id,
		"sequences": []any{map[string]any{
			"@type":    "sc:Sequence",
			"canvases": cs,
		}},
	}
}

// ManifestJSON is ManifestDoc encoded.
func ManifestJSON(t testing.TB, id string, canvases ...CanvasFixture) []byte {
	t.Helper()
	return MustJSON(t, ManifestDoc(id, canvases...))
}

// CollectionDoc builds a collection referencing manifestIDs.
func CollectionDoc(id string, manifestIDs ...string) map[string]any {
	refs := make([]any, 0, len(manifestIDs))
	for _, m := range manifestIDs {
		refs = append(refs, map[string]any{"@id": m, "@type": "sc:Manifest"})
	}
	return map[string]any{
		"@context":  "http://iiif.io/api/presentation/2/context.json",
		"@id":       id,
		"@type":     "sc:Collection",
		"label":     "Fixture " + id,
		"manifests": refs,
	}
}

// CollectionJSON is CollectionDoc encoded.
func CollectionJSON(t testing.TB, id string, manifestIDs ...string) []byte {
	t.Helper()
	return MustJSON(t, CollectionDoc(id, manifestIDs...))
}

// MustJSON marshals v or fails the test.
func MustJSON(t testing.TB, v any) []byte {
	t.Helper()

	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}
