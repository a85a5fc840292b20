package ledger

import "time"

// ModelInfo names the model as requested and as resolved for the engine.
type ModelInfo struct {
	Ref      string `json:"ref"`
	Resolved string `json:"resolved"`
}

// Record is one output line: the OCR result for a single page.
type Record struct {
	CreatedAt        string    `json:"created_at"`
	PageKey          string    `json:"page_key"`
	CanvasIndex      int       `json:"canvas_index"`
	Engine           string    `json:"engine"`
	Model            ModelInfo `json:"model"`
	ManifestURL      string    `json:"manifest_url"`
	CanvasID         string    `json:"canvas_id"`
	ImageURL         string    `json:"image_url"`
	ElapsedMS        int64     `json:"elapsed_ms"`
	Text             string    `json:"text"`
	SourceMetadataID *string   `json:"source_metadata_id"`
	ARK              *string   `json:"ark"`
}

// Timestamp formats t as an RFC 3339 UTC timestamp.
func Timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// Optional returns nil for an empty string, so it encodes as JSON null.
func Optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
