package iiif

import "strings"

// Image API parameter defaults.
const (
	DefaultRegion   = "full"
	DefaultSize     = "!3000,3000"
	DefaultRotation = "0"
	DefaultQuality  = "default"
	DefaultFormat   = "jpg"
)

// ImageParams are the Image API request parameters. Values are opaque and
// passed through verbatim.
type ImageParams struct {
	Region   string `json:"region" yaml:"region"`
	Size     string `json:"size" yaml:"size"`
	Rotation string `json:"rotation" yaml:"rotation"`
	Quality  string `json:"quality" yaml:"quality"`
	Format   string `json:"format" yaml:"format"`
}

// DefaultImageParams returns the parameters used when none are configured.
func DefaultImageParams() ImageParams {
	return ImageParams{
		Region:   DefaultRegion,
		Size:     DefaultSize,
		Rotation: DefaultRotation,
		Quality:  DefaultQuality,
		Format:   DefaultFormat,
	}
}

// WithDefaults fills empty fields from DefaultImageParams.
func (p ImageParams) WithDefaults() ImageParams {
	d := DefaultImageParams()
	if p.Region == "" {
		p.Region = d.Region
	}
	if p.Size == "" {
		p.Size = d.Size
	}
	if p.Rotation == "" {
		p.Rotation = d.Rotation
	}
	if p.Quality == "" {
		p.Quality = d.Quality
	}
	if p.Format == "" {
		p.Format = d.Format
	}
	return p
}

// URL renders base/region/size/rotation/quality.format. Trailing slashes on
// base are removed first.
func (p ImageParams) URL(base string) string {
	var b strings.Builder
	b.WriteString(strings.TrimRight(base, "/"))
	b.WriteByte('/')
	b.WriteString(p.Region)
	b.WriteByte('/')
	b.WriteString(p.Size)
	b.WriteByte('/')
	b.WriteString(p.Rotation)
	b.WriteByte('/')
	b.WriteString(p.Quality)
	b.WriteByte('.')
	b.WriteString(p.Format)
	return b.String()
}
