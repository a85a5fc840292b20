package batch

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/MeKo-Tech/folio/internal/worker"
)

// Outcome is what happened to one task.
type Outcome struct {
	Task    Task           `json:"task"`
	Skipped bool           `json:"skipped"`
	Result  *worker.Result `json:"result,omitempty"`
}

// Failed reports whether the manifest was attempted or abandoned without
// success. Skipped manifests are not failures.
func (o Outcome) Failed() bool {
	if o.Skipped {
		return false
	}
	return o.Result == nil || !o.Result.Success
}

// Summary holds the outcome of a run.
type Summary struct {
	RunID    string        `json:"run_id"`
	Workers  int           `json:"workers"`
	Duration time.Duration `json:"duration_ns"`
	Outcomes []Outcome     `json:"outcomes"`
}

// Processed counts manifests that completed successfully.
func (s *Summary) Processed() int {
	n := 0
	for _, o := range s.Outcomes {
		if !o.Skipped && !o.Failed() {
			n++
		}
	}
	return n
}

// SkippedManifests counts manifests skipped because their output existed.
func (s *Summary) SkippedManifests() int {
	n := 0
	for _, o := range s.Outcomes {
		if o.Skipped {
			n++
		}
	}
	return n
}

// Failed returns the manifest ids that did not complete.
func (s *Summary) Failed() []string {
	var ids []string
	for _, o := range s.Outcomes {
		if o.Failed() {
			ids = append(ids, o.Task.ManifestID)
		}
	}
	return ids
}

// TotalPages sums pages processed across successful manifests.
func (s *Summary) TotalPages() int {
	n := 0
	for _, o := range s.Outcomes {
		if o.Result != nil && o.Result.Success {
			n += o.Result.PagesProcessed
		}
	}
	return n
}

// Format renders the summary as text, json or csv.
func (s *Summary) Format(format string) (string, error) {
	switch format {
	case "json":
		return s.formatJSON()
	case "csv":
		return s.formatCSV()
	case "text", "":
		return s.formatText(), nil
	default:
		return "", fmt.Errorf("unsupported summary format: %s", format)
	}
}

// Write renders the summary to w.
func (s *Summary) Write(w io.Writer, format string) error {
	out, err := s.Format(format)
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, out)
	return err
}

func (s *Summary) formatJSON() (string, error) {
	payload := struct {
		*Summary
		Processed  int      `json:"manifests_processed"`
		Skipped    int      `json:"manifests_skipped"`
		Failed     []string `json:"manifests_failed"`
		TotalPages int      `json:"total_pages"`
	}{
		Summary:    s,
		Processed:  s.Processed(),
		Skipped:    s.SkippedManifests(),
		Failed:     s.Failed(),
		TotalPages: s.TotalPages(),
	}
	if payload.Failed == nil {
		payload.Failed = []string{}
	}
	bts, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return "", err
	}
	return string(bts) + "\n", nil
}

var csvHeader = []string{
	"manifest_id", "output_path", "stage", "pages_processed", "pages_skipped", "pages_failed",
	"validation_issues", "elapsed_ms", "error",
}

func (s *Summary) formatCSV() (string, error) {
	var output strings.Builder
	writer := csv.NewWriter(&output)
	if err := writer.Write(csvHeader); err != nil {
		return "", err
	}
	for _, o := range s.Outcomes {
		row := []string{o.Task.ManifestID, o.Task.OutputPath, outcomeStage(o), "0", "0", "0", "0", "0", ""}
		if r := o.Result; r != nil {
			row[3] = strconv.Itoa(r.PagesProcessed)
			row[4] = strconv.Itoa(r.PagesSkipped)
			row[5] = strconv.Itoa(r.PagesFailed)
			row[6] = strconv.Itoa(len(r.ValidationIssues))
			row[7] = strconv.FormatInt(r.Elapsed.Milliseconds(), 10)
			row[8] = r.Error
		}
		if err := writer.Write(row); err != nil {
			return "", err
		}
	}
	writer.Flush()
	return output.String(), writer.Error()
}

func (s *Summary) formatText() string {
	var b strings.Builder
	b.WriteString(strings.Repeat("=", 60) + "\n")
	b.WriteString("Summary:\n")
	fmt.Fprintf(&b, "  Manifests processed: %d\n", s.Processed())
	fmt.Fprintf(&b, "  Manifests skipped (output exists): %d\n", s.SkippedManifests())
	fmt.Fprintf(&b, "  Manifests failed: %d\n", len(s.Failed()))
	fmt.Fprintf(&b, "  Total pages: %d\n", s.TotalPages())
	fmt.Fprintf(&b, "  Workers: %d\n", s.Workers)
	fmt.Fprintf(&b, "  Duration: %v\n", s.Duration.Round(time.Millisecond))
	if failed := s.Failed(); len(failed) > 0 {
		fmt.Fprintf(&b, "\nFailed manifests (%d):\n", len(failed))
		for _, id := range failed {
			fmt.Fprintf(&b, "  - %s\n", id)
		}
	}
	return b.String()
}

func outcomeStage(o Outcome) string {
	switch {
	case o.Skipped:
		return "skipped"
	case o.Result == nil:
		return "not_started"
	default:
		return string(o.Result.Stage)
	}
}
