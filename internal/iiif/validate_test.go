package iiif

import (
	"testing"

	"github.com/MeKo-Tech/folio/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustManifest(t *testing.T, raw []byte) *Manifest {
	t.Helper()
	m, err := ParseManifest(raw)
	require.NoError(t, err)
	return m
}

func TestValidateManifest_Valid(t *testing.T) {
	m := mustManifest(t, testutil.ManifestJSON(t, "m", testutil.Pages("m", "https://img", 3)...))
	assert.Empty(t, ValidateManifest(m))
}

func TestValidateManifest_NoSequences(t *testing.T) {
	m := mustManifest(t, []byte(`{"@id":"m","@type":"sc:Manifest"}`))
	assert.Equal(t, []ValidationIssue{{Path: "sequences", Message: MsgNoSequences}}, ValidateManifest(m))
}

func TestValidateManifest_NoCanvases(t *testing.T) {
	m := mustManifest(t, []byte(`{"@id":"m","@type":"sc:Manifest","sequences":[{"@type":"sc:Sequence","canvases":[]}]}`))
	assert.Equal(t, []ValidationIssue{{Path: "sequences[*].canvases", Message: MsgNoCanvases}}, ValidateManifest(m))
}

func TestValidateManifest_CanvasIssues(t *testing.T) {
	m := mustManifest(t, testutil.ManifestJSON(t, "m",
		testutil.CanvasFixture{ID: "c0", ServiceID: "https://img/0"},
		testutil.CanvasFixture{ID: "c1", NoImages: true},
		testutil.CanvasFixture{ID: "c2"},
	))

	assert.Equal(t, []ValidationIssue{
		{Path: "sequences[0].canvases[1].images", Message: MsgNoImages},
		{Path: "sequences[0].canvases[2].images[0].resource.service", Message: MsgNoService},
	}, ValidateManifest(m))
}

func TestValidateCollection(t *testing.T) {
	c, err := ParseCollection([]byte(`{"@id":"c","@type":"sc:Collection","manifests":[{"@id":"m1"},{"label":"x"}]}`))
	require.NoError(t, err)
	assert.Equal(t, []ValidationIssue{{Path: "manifests[1].@id", Message: MsgMissingID}}, ValidateCollection(c))

	empty, err := ParseCollection([]byte(`{"@id":"c","@type":"sc:Collection"}`))
	require.NoError(t, err)
	assert.Equal(t, []ValidationIssue{{Path: "manifests", Message: MsgNoManifests}}, ValidateCollection(empty))
}

func TestValidateCollection_EmptyIDCountsAsPresent(t *testing.T) {
	c, err := ParseCollection([]byte(`{"@id":"c","@type":"sc:Collection","manifests":[{"@id":""},{"@type":"sc:Manifest"}]}`))
	require.NoError(t, err)
	assert.True(t, c.Manifests[0].HasID)
	assert.False(t, c.Manifests[1].HasID)
	assert.Equal(t, []ValidationIssue{{Path: "manifests[1].@id", Message: MsgMissingID}}, ValidateCollection(c))
}

func TestValidateCanvas(t *testing.T) {
	assert.Equal(t, []ValidationIssue{{Path: "images", Message: MsgNoImages}}, ValidateCanvas(&Canvas{ID: "c"}))
	assert.Equal(t,
		[]ValidationIssue{{Path: "images[0].resource.service", Message: MsgNoService}},
		ValidateCanvas(&Canvas{ID: "c", Images: []Annotation{{}}}))
	assert.Empty(t, ValidateCanvas(&Canvas{ID: "c", Images: []Annotation{{Resource: ImageResource{Service: ServiceList{{ID: "s"}}}}}}))
}
