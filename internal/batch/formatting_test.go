package batch

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/MeKo-Tech/folio/internal/iiif"
	"github.com/MeKo-Tech/folio/internal/worker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleSummary() *Summary {
	return &Summary{
		RunID:    "run-1",
		Workers:  2,
		Duration: 1500 * time.Millisecond,
		Outcomes: []Outcome{
			{
				Task: Task{ManifestID: "https://ex.org/m1", OutputPath: "/out/a.jsonl"},
				Result: &worker.Result{
					Stage: worker.StageDone, Success: true,
					PagesProcessed: 5, PagesSkipped: 2, PagesFailed: 1, Elapsed: 2 * time.Second,
				},
			},
			{Task: Task{ManifestID: "https://ex.org/m2", OutputPath: "/out/b.jsonl"}, Skipped: true},
			{
				Task: Task{ManifestID: "https://ex.org/m3", OutputPath: "/out/c.jsonl"},
				Result: &worker.Result{
					Stage:            worker.StageRejected,
					ValidationIssues: []iiif.ValidationIssue{{Path: "sequences", Message: iiif.MsgNoSequences}},
					Error:            "manifest failed validation with 1 issue(s)",
				},
			},
			{Task: Task{ManifestID: "https://ex.org/m4", OutputPath: "/out/d.jsonl"}},
		},
	}
}

func TestSummaryCounts(t *testing.T) {
	s := sampleSummary()
	assert.Equal(t, 1, s.Processed())
	assert.Equal(t, 1, s.SkippedManifests())
	assert.Equal(t, []string{"https://ex.org/m3", "https://ex.org/m4"}, s.Failed())
	assert.Equal(t, 5, s.TotalPages())
}

func TestSummaryFormat_Text(t *testing.T) {
	out, err := sampleSummary().Format("text")
	require.NoError(t, err)

	assert.Contains(t, out, "Manifests processed: 1")
	assert.Contains(t, out, "Manifests skipped (output exists): 1")
	assert.Contains(t, out, "Manifests failed: 2")
	assert.Contains(t, out, "Total pages: 5")
	assert.Contains(t, out, "  - https://ex.org/m3\n")
}

func TestSummaryFormat_JSON(t *testing.T) {
	out, err := sampleSummary().Format("json")
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	assert.Equal(t, "run-1", decoded["run_id"])
	assert.InDelta(t, 5, decoded["total_pages"], 0)
	assert.Len(t, decoded["outcomes"], 4)
	assert.Len(t, decoded["manifests_failed"], 2)
}

func TestSummaryFormat_JSONNoFailures(t *testing.T) {
	s := &Summary{}
	out, err := s.Format("json")
	require.NoError(t, err)
	assert.Contains(t, out, `"manifests_failed": []`)
}

func TestSummaryFormat_CSV(t *testing.T) {
	out, err := sampleSummary().Format("csv")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 5)
	assert.Equal(t, strings.Join(csvHeader, ","), lines[0])
	assert.Equal(t, "https://ex.org/m1,/out/a.jsonl,done,5,2,1,0,2000,", lines[1])
	assert.Equal(t, "https://ex.org/m2,/out/b.jsonl,skipped,0,0,0,0,0,", lines[2])
	assert.Contains(t, lines[3], ",rejected,0,0,0,1,")
	assert.Contains(t, lines[4], ",not_started,")
}

func TestSummaryFormat_Invalid(t *testing.T) {
	_, err := sampleSummary().Format("xml")
	assert.Error(t, err)
}

func TestSummaryWrite(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, sampleSummary().Write(&buf, ""))
	assert.Contains(t, buf.String(), "Summary:")
}

func TestConsoleProgress(t *testing.T) {
	var buf bytes.Buffer
	p := NewConsoleProgress(&buf)
	s := sampleSummary()

	p.OnStart(len(s.Outcomes))
	for i, o := range s.Outcomes {
		p.OnManifest(i+1, len(s.Outcomes), o)
	}
	p.OnComplete(s)

	out := buf.String()
	assert.Contains(t, out, "Found 4 manifest(s) to process")
	assert.Contains(t, out, "[1/4] done: https://ex.org/m1 (5 processed, 2 skipped, 1 failed")
	assert.Contains(t, out, "[2/4] skipped (output exists): https://ex.org/m2")
	assert.Contains(t, out, "[3/4] rejected: https://ex.org/m3")
	assert.Contains(t, out, "    - sequences: "+iiif.MsgNoSequences)
	assert.Contains(t, out, "[4/4] not started: https://ex.org/m4")
	assert.Contains(t, out, "Completed in")
}

func TestLogProgressAndMulti(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	rec := &recordingProgress{}
	p := MultiProgress{NewLogProgress(logger, slog.LevelInfo), rec, NoOpProgress{}}
	s := sampleSummary()

	p.OnStart(1)
	p.OnManifest(1, 1, s.Outcomes[0])
	p.OnComplete(s)

	assert.Contains(t, buf.String(), `"msg":"Starting run"`)
	assert.Contains(t, buf.String(), `"stage":"done"`)
	assert.Contains(t, buf.String(), `"msg":"Run completed"`)
	assert.Equal(t, []int{1}, rec.updates)
	assert.True(t, rec.complete)
}
