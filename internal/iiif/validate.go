package iiif

import "fmt"

// ValidationIssue is a structural problem found by a validator.
type ValidationIssue struct {
	Path    string `json:"path" yaml:"path"`
	Message string `json:"message" yaml:"message"`
}

func (i ValidationIssue) String() string {
	return i.Path + ": " + i.Message
}

// Issue messages.
const (
	MsgNoSequences    = "Missing or empty sequences[]."
	MsgNoImages       = "Canvas missing images[]."
	MsgNoService      = "Image resource missing service (IIIF Image API)."
	MsgNoCanvases     = "No canvases found."
	MsgNoManifests    = "Empty manifests[]."
	MsgMissingID      = "Missing @id."
	pathNoCanvases    = "sequences[*].canvases"
	pathCanvasImages  = "images"
	pathCanvasService = "images[0].resource.service"
)

// ValidateManifest checks that every page of m can yield an image URL. An
// empty result means the manifest is pipeline-valid.
func ValidateManifest(m *Manifest) []ValidationIssue {
	if len(m.Sequences) == 0 {
		return []ValidationIssue{{Path: "sequences", Message: MsgNoSequences}}
	}

	var issues []ValidationIssue
	canvases := 0
	for si := range m.Sequences {
		for ci := range m.Sequences[si].Canvases {
			canvases++
			prefix := fmt.Sprintf("sequences[%d].canvases[%d].", si, ci)
			for _, issue := range ValidateCanvas(&m.Sequences[si].Canvases[ci]) {
				issue.Path = prefix + issue.Path
				issues = append(issues, issue)
			}
		}
	}
	if canvases == 0 {
		issues = append(issues, ValidationIssue{Path: pathNoCanvases, Message: MsgNoCanvases})
	}
	return issues
}

// ValidateCollection checks that c references at least one manifest and
// that every reference carries an @id key. An empty @id counts as present.
func ValidateCollection(c *Collection) []ValidationIssue {
	var issues []ValidationIssue
	if len(c.Manifests) == 0 {
		issues = append(issues, ValidationIssue{Path: "manifests", Message: MsgNoManifests})
	}
	for i, ref := range c.Manifests {
		if !ref.hasID() {
			issues = append(issues, ValidationIssue{
				Path:    fmt.Sprintf("manifests[%d].@id", i),
				Message: MsgMissingID,
			})
		}
	}
	return issues
}

// ValidateCanvas checks a single canvas in isolation.
func ValidateCanvas(c *Canvas) []ValidationIssue {
	if len(c.Images) == 0 {
		return []ValidationIssue{{Path: pathCanvasImages, Message: MsgNoImages}}
	}
	if c.PrimaryService() == nil {
		return []ValidationIssue{{Path: pathCanvasService, Message: MsgNoService}}
	}
	return nil
}
