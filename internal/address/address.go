// Package address derives the deterministic names used by the pipeline:
// per-manifest output files, cached image files and work-unit keys.
package address

import (
	"crypto/sha1" //nolint:gosec // G505: content addressing, not security
	"encoding/hex"
	"path/filepath"
	"strings"
)

// KeySeparator joins the components of a work-unit key.
const KeySeparator = "|"

// Digest returns the lowercase hex SHA-1 of s.
func Digest(s string) string {
	sum := sha1.Sum([]byte(s)) //nolint:gosec // G401: see import
	return hex.EncodeToString(sum[:])
}

// ManifestOutputPath is <outputRoot>/<sha1(manifestID)>.jsonl.
func ManifestOutputPath(manifestID, outputRoot string) string {
	return filepath.Join(outputRoot, Digest(manifestID)+".jsonl")
}

// ImageCachePath is <cacheRoot>/images/<sha1(imageURL)>.<format>.
func ImageCachePath(imageURL, cacheRoot, format string) string {
	return filepath.Join(cacheRoot, "images", Digest(imageURL)+"."+format)
}

// WorkUnit identifies one page rendered with one parameter set and OCR'd
// with one model.
type WorkUnit struct {
	ManifestID string
	CanvasID   string
	Model      string
	Format     string
	Size       string
	Quality    string
	Region     string
	Rotation   string
}

// Key joins the fields in fixed order. Changing any field yields a
// different key.
func (u WorkUnit) Key() string {
	return strings.Join([]string{
		u.ManifestID,
		u.CanvasID,
		u.Model,
		u.Format,
		u.Size,
		u.Quality,
		u.Region,
		u.Rotation,
	}, KeySeparator)
}

// PageKey is WorkUnit.Key for loose arguments.
func PageKey(manifestID, canvasID, model, format, size, quality, region, rotation string) string {
	return WorkUnit{
		ManifestID: manifestID,
		CanvasID:   canvasID,
		Model:      model,
		Format:     format,
		Size:       size,
		Quality:    quality,
		Region:     region,
		Rotation:   rotation,
	}.Key()
}
