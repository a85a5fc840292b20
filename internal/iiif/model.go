// Package iiif models the subset of IIIF Presentation API 2.1 needed to
// locate page images: collections, manifests, sequences, canvases, image
// annotations and Image API service descriptors.
package iiif

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Declared resource types.
const (
	TypeManifest   = "sc:Manifest"
	TypeCollection = "sc:Collection"
)

// Extra holds fields of a resource that the model does not name. They are
// preserved on decode so callers can inspect provider-specific data.
type Extra map[string]json.RawMessage

// ImageService is an IIIF Image API service descriptor. Its ID is the base
// URL from which image URLs are derived.
type ImageService struct {
	ID      string          `json:"@id"`
	Type    string          `json:"@type,omitempty"`
	Profile json.RawMessage `json:"profile,omitempty"`
	Context json.RawMessage `json:"@context,omitempty"`
	Extra   Extra           `json:"-"`
}

// URL renders an Image API URL for the given parameters.
func (s *ImageService) URL(p ImageParams) string {
	return p.URL(s.ID)
}

// ServiceList is the normalized form of a resource's "service" field, which
// may be absent, a single descriptor or a list of descriptors.
type ServiceList []ImageService

// UnmarshalJSON accepts null, an object or an array of objects.
func (l *ServiceList) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	switch {
	case len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")):
		*l = nil
		return nil
	case trimmed[0] == '[':
		var many []ImageService
		if err := json.Unmarshal(trimmed, &many); err != nil {
			return err
		}
		*l = many
		return nil
	case trimmed[0] == '{':
		var one ImageService
		if err := json.Unmarshal(trimmed, &one); err != nil {
			return err
		}
		*l = ServiceList{one}
		return nil
	default:
		return fmt.Errorf("service: expected object or array, got %s", truncate(trimmed, 32))
	}
}

// First returns the first descriptor, or nil for an empty list.
func (l ServiceList) First() *ImageService {
	if len(l) == 0 {
		return nil
	}
	return &l[0]
}

// ImageResource is the image content of an annotation.
type ImageResource struct {
	ID      string      `json:"@id,omitempty"`
	Type    string      `json:"@type,omitempty"`
	Format  string      `json:"format,omitempty"`
	Width   int         `json:"width,omitempty"`
	Height  int         `json:"height,omitempty"`
	Service ServiceList `json:"service,omitempty"`
	Extra   Extra       `json:"-"`
}

// Annotation links a canvas to an image resource.
type Annotation struct {
	ID         string        `json:"@id,omitempty"`
	Type       string        `json:"@type,omitempty"`
	Motivation string        `json:"motivation,omitempty"`
	Resource   ImageResource `json:"resource"`
	On         string        `json:"on,omitempty"`
}

// Canvas is a single page or view.
type Canvas struct {
	ID     string          `json:"@id"`
	Type   string          `json:"@type"`
	Label  json.RawMessage `json:"label,omitempty"`
	Width  int             `json:"width,omitempty"`
	Height int             `json:"height,omitempty"`
	Images []Annotation    `json:"images,omitempty"`
	Extra  Extra           `json:"-"`
}

// PrimaryService returns the first resolvable image descriptor across the
// canvas's image links, in link order. A link resolves to the first entry
// of its service list.
func (c *Canvas) PrimaryService() *ImageService {
	for i := range c.Images {
		if svc := c.Images[i].Resource.Service.First(); svc != nil {
			return svc
		}
	}
	return nil
}

// ImageURL renders the primary image URL, reporting false when the canvas
// has no resolvable descriptor.
func (c *Canvas) ImageURL(p ImageParams) (string, bool) {
	svc := c.PrimaryService()
	if svc == nil {
		return "", false
	}
	return svc.URL(p), true
}

// Sequence is an ordered list of canvases.
type Sequence struct {
	ID       string   `json:"@id,omitempty"`
	Type     string   `json:"@type"`
	Canvases []Canvas `json:"canvases,omitempty"`
}

// Manifest describes a single digitized object.
type Manifest struct {
	ID        string            `json:"@id"`
	Type      string            `json:"@type"`
	Label     json.RawMessage   `json:"label,omitempty"`
	Metadata  []json.RawMessage `json:"metadata,omitempty"`
	Sequences []Sequence        `json:"sequences,omitempty"`
	Extra     Extra             `json:"-"`
}

// Canvases flattens all sequences in order.
func (m *Manifest) Canvases() []Canvas {
	n := 0
	for i := range m.Sequences {
		n += len(m.Sequences[i].Canvases)
	}
	out := make([]Canvas, 0, n)
	for i := range m.Sequences {
		out = append(out, m.Sequences[i].Canvases...)
	}
	return out
}

// ResourceRef is an entry of a collection's manifests[] or collections[].
type ResourceRef struct {
	ID    string          `json:"@id,omitempty"`
	Type  string          `json:"@type,omitempty"`
	Label json.RawMessage `json:"label,omitempty"`
	Extra Extra           `json:"-"`

	// HasID records that the decoded document carried an @id key, even
	// an empty one.
	HasID bool `json:"-"`
}

func (r *ResourceRef) hasID() bool {
	return r.HasID || r.ID != ""
}

// Collection groups manifests and other collections.
type Collection struct {
	ID          string          `json:"@id"`
	Type        string          `json:"@type"`
	Label       json.RawMessage `json:"label,omitempty"`
	Manifests   []ResourceRef   `json:"manifests,omitempty"`
	Collections []ResourceRef   `json:"collections,omitempty"`
	Extra       Extra           `json:"-"`
}

// ManifestIDs lists the ids of manifest references that carry one.
func (c *Collection) ManifestIDs() []string {
	ids := make([]string, 0, len(c.Manifests))
	for _, ref := range c.Manifests {
		if ref.ID != "" {
			ids = append(ids, ref.ID)
		}
	}
	return ids
}

// The aliases below strip the methods so the custom decoders can delegate
// to encoding/json without recursing.
type (
	imageServiceAlias  ImageService
	imageResourceAlias ImageResource
	canvasAlias        Canvas
	manifestAlias      Manifest
	resourceRefAlias   ResourceRef
	collectionAlias    Collection
)

func (s *ImageService) UnmarshalJSON(data []byte) error {
	var a imageServiceAlias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	extra, err := collectExtra(data, "@id", "@type", "profile", "@context")
	if err != nil {
		return err
	}
	*s = ImageService(a)
	s.Extra = extra
	return nil
}

func (r *ImageResource) UnmarshalJSON(data []byte) error {
	var a imageResourceAlias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	extra, err := collectExtra(data, "@id", "@type", "format", "width", "height", "service")
	if err != nil {
		return err
	}
	*r = ImageResource(a)
	r.Extra = extra
	return nil
}

func (c *Canvas) UnmarshalJSON(data []byte) error {
	var a canvasAlias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	extra, err := collectExtra(data, "@id", "@type", "label", "width", "height", "images")
	if err != nil {
		return err
	}
	*c = Canvas(a)
	c.Extra = extra
	return nil
}

func (m *Manifest) UnmarshalJSON(data []byte) error {
	var a manifestAlias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	extra, err := collectExtra(data, "@id", "@type", "label", "metadata", "sequences")
	if err != nil {
		return err
	}
	*m = Manifest(a)
	m.Extra = extra
	return nil
}

func (r *ResourceRef) UnmarshalJSON(data []byte) error {
	var a resourceRefAlias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	extra, err := collectExtra(data, "@id", "@type", "label")
	if err != nil {
		return err
	}
	var keys map[string]json.RawMessage
	if err := json.Unmarshal(data, &keys); err != nil {
		return err
	}
	*r = ResourceRef(a)
	r.Extra = extra
	_, r.HasID = keys["@id"]
	return nil
}

func (c *Collection) UnmarshalJSON(data []byte) error {
	var a collectionAlias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	extra, err := collectExtra(data, "@id", "@type", "label", "manifests", "collections")
	if err != nil {
		return err
	}
	*c = Collection(a)
	c.Extra = extra
	return nil
}

func collectExtra(data []byte, known ...string) (Extra, error) {
	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, err
	}
	for _, k := range known {
		delete(all, k)
	}
	if len(all) == 0 {
		return nil, nil
	}
	return Extra(all), nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
