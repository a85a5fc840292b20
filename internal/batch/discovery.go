package batch

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/MeKo-Tech/folio/internal/address"
	"github.com/MeKo-Tech/folio/internal/fetch"
	"github.com/MeKo-Tech/folio/internal/iiif"
)

// Task assigns one manifest to its output file.
type Task struct {
	ManifestID string `json:"manifest_id"`
	OutputPath string `json:"output_path"`
}

// SkippedRef is an input reference that could not be expanded.
type SkippedRef struct {
	Ref    string `json:"ref"`
	Reason string `json:"reason"`
}

// CSVURLColumn is the column read from manifest CSV reports.
const CSVURLColumn = "manifest_url"

// ErrNoManifestColumn is returned for CSV files without a manifest_url column.
var ErrNoManifestColumn = errors.New("csv has no " + CSVURLColumn + " column")

// ReadList parses a manifest list: one entry per line, either
// "manifest_id<TAB>output_path" or a bare manifest id whose output path is
// derived under outputDir. Blank lines and lines starting with '#' are
// ignored.
func ReadList(r io.Reader, outputDir string) ([]Task, error) {
	var tasks []Task
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		id, out, hasPath := strings.Cut(text, "\t")
		id, out = strings.TrimSpace(id), strings.TrimSpace(out)
		switch {
		case id == "":
			return nil, fmt.Errorf("line %d: empty manifest id", line)
		case hasPath && out != "":
		case outputDir == "":
			return nil, fmt.Errorf("line %d: no output path for %s and no output directory given", line, id)
		default:
			out = address.ManifestOutputPath(id, outputDir)
		}
		tasks = append(tasks, Task{ManifestID: id, OutputPath: fetch.ExpandHome(out)})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read manifest list: %w", err)
	}
	return tasks, nil
}

// ReadListFile is ReadList on a file.
func ReadListFile(path, outputDir string) ([]Task, error) {
	f, err := os.Open(fetch.ExpandHome(path))
	if err != nil {
		return nil, fmt.Errorf("open manifest list: %w", err)
	}
	defer func() { _ = f.Close() }()
	return ReadList(f, outputDir)
}

// WriteList writes tasks in the tab-separated list format.
func WriteList(w io.Writer, tasks []Task) error {
	bw := bufio.NewWriter(w)
	for _, t := range tasks {
		if _, err := fmt.Fprintf(bw, "%s\t%s\n", t.ManifestID, t.OutputPath); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// WriteListFile writes tasks to path, creating parent directories.
func WriteListFile(path string, tasks []Task) error {
	path = fetch.ExpandHome(path)
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("create list directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create manifest list: %w", err)
	}
	if err := WriteList(f, tasks); err != nil {
		_ = f.Close()
		return fmt.Errorf("write manifest list: %w", err)
	}
	return f.Close()
}

// ReadCSVURLs returns the non-empty values of the manifest_url column.
func ReadCSVURLs(r io.Reader) ([]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	col := slices.IndexFunc(header, func(h string) bool {
		return strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")) == CSVURLColumn
	})
	if col < 0 {
		return nil, ErrNoManifestColumn
	}

	var urls []string
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return urls, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
		if col >= len(row) {
			continue
		}
		if u := strings.TrimSpace(row[col]); u != "" {
			urls = append(urls, u)
		}
	}
}

// ReadCSVURLsFile is ReadCSVURLs on a file.
func ReadCSVURLsFile(path string) ([]string, error) {
	f, err := os.Open(fetch.ExpandHome(path))
	if err != nil {
		return nil, fmt.Errorf("open csv: %w", err)
	}
	defer func() { _ = f.Close() }()
	return ReadCSVURLs(f)
}

// Prepare expands every ref (manifest or collection) into one task per
// manifest, with output paths derived under outputDir. A manifest reached
// from several refs is listed once. With opts.ContinueOnError, refs and
// manifests that fail to load are reported in skipped instead of aborting.
func Prepare(ctx context.Context, l iiif.Loader, refs []string, outputDir string,
	opts iiif.TraverseOptions, logger *slog.Logger,
) (tasks []Task, skipped []SkippedRef, err error) {
	if logger == nil {
		logger = slog.Default()
	}
	seen := map[string]bool{}
	for _, ref := range refs {
		for entry, err := range iiif.Manifests(ctx, l, ref, opts) {
			if err != nil {
				if ctx.Err() != nil || !opts.ContinueOnError {
					return tasks, skipped, err
				}
				logger.Warn("Skipping unreachable resource", "ref", entry.ID, "error", err)
				skipped = append(skipped, SkippedRef{Ref: entry.ID, Reason: err.Error()})
				continue
			}
			if seen[entry.ID] {
				continue
			}
			seen[entry.ID] = true
			tasks = append(tasks, Task{
				ManifestID: entry.ID,
				OutputPath: address.ManifestOutputPath(entry.ID, outputDir),
			})
		}
	}
	logger.Info("Prepared manifest list", "refs", len(refs), "manifests", len(tasks), "skipped", len(skipped))
	return tasks, skipped, nil
}
