package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/MeKo-Tech/folio/internal/iiif"
)

const (
	outputFormatText = "text"
	outputFormatJSON = "json"
	outputFormatYAML = "yaml"
	outputFormatCSV  = "csv"
)

// resourceIssues groups the issues found on one manifest or collection.
type resourceIssues struct {
	Resource string                 `json:"resource" yaml:"resource"`
	Issues   []iiif.ValidationIssue `json:"issues" yaml:"issues"`
}

// validationReport is the machine-readable form of a validate run.
type validationReport struct {
	Ref       string           `json:"ref" yaml:"ref"`
	Scope     string           `json:"scope" yaml:"scope"`
	Valid     bool             `json:"valid" yaml:"valid"`
	Issues    int              `json:"issue_count" yaml:"issue_count"`
	Resources []resourceIssues `json:"resources" yaml:"resources"`
}

func (r *validationReport) add(resource string, issues []iiif.ValidationIssue) {
	if len(issues) == 0 {
		return
	}
	r.Resources = append(r.Resources, resourceIssues{Resource: resource, Issues: issues})
	r.Issues += len(issues)
}

var validateCmd = &cobra.Command{
	Use:   "validate <manifest-or-collection>",
	Short: "Check IIIF resources against pipeline requirements",
	Long: `Validate a IIIF Presentation 2.x manifest or collection against the
minimal structure the OCR pipeline needs: every canvas must carry an image
with an IIIF Image API service.

For a collection the collection itself is checked first, then every
referenced manifest. Use --skip-manifests to check only the collection.

Exit status is 0 when everything is valid, 2 when issues were found and 1
when a resource could not be loaded.

Examples:
  folio validate manifest.json
  folio validate https://example.org/iiif/collection --skip-manifests
  folio validate manifest.json --canvas https://example.org/canvas/p3
  folio validate collection.json --format yaml`,
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE:         runValidate,
}

func init() {
	validateCmd.Flags().Bool("skip-manifests", false, "for collections, only validate the collection structure")
	validateCmd.Flags().String("canvas", "", "validate only the canvas with this @id")
	validateCmd.Flags().StringP("format", "f", outputFormatText, "report format (text, json, yaml)")
	validateCmd.Flags().Bool("recursive", false, "descend into nested collections")
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	ref := args[0]
	format, _ := cmd.Flags().GetString("format")
	if !slices.Contains([]string{outputFormatText, outputFormatJSON, outputFormatYAML}, format) {
		return fmt.Errorf("invalid output format: %s (must be one of: text, json, yaml)", format)
	}
	skipManifests, _ := cmd.Flags().GetBool("skip-manifests")
	canvasID, _ := cmd.Flags().GetString("canvas")

	cfg := GetConfig()
	if cmd.Flags().Changed("recursive") {
		cfg.Batch.RecursiveCollections, _ = cmd.Flags().GetBool("recursive")
	}
	client := newFetchClient(cfg)
	ctx := cmd.Context()

	raw, err := client.LoadJSON(ctx, ref)
	if err != nil {
		return exitWith(1, "loading %s: %w", ref, err)
	}

	report := &validationReport{Ref: ref, Scope: "manifests"}
	if iiif.IsCollection(raw) {
		coll, err := iiif.ParseCollection(raw)
		if err != nil {
			return exitWith(1, "parsing collection %s: %w", ref, err)
		}
		report.add(ref, iiif.ValidateCollection(coll))
		if skipManifests {
			report.Scope = "collection"
			return finishValidation(cmd.OutOrStdout(), report, format)
		}
	}

	// Loading failures end the run; only structural issues are collected.
	opts := iiif.TraverseOptions{Recursive: cfg.Batch.RecursiveCollections}
	found := false
	for entry, err := range iiif.Manifests(ctx, client, ref, opts) {
		if err != nil {
			return exitWith(1, "processing manifests: %w", err)
		}
		if canvasID == "" {
			report.add(entry.ID, iiif.ValidateManifest(entry.Manifest))
			continue
		}
		for i, c := range entry.Manifest.Canvases() {
			if c.ID != canvasID {
				continue
			}
			found = true
			issues := iiif.ValidateCanvas(&c)
			for j := range issues {
				issues[j].Path = fmt.Sprintf("canvases[%d].%s", i, issues[j].Path)
			}
			report.add(entry.ID, issues)
		}
	}
	if canvasID != "" {
		if !found {
			return exitWith(1, "canvas %s not found", canvasID)
		}
		report.Scope = "canvas"
	}
	return finishValidation(cmd.OutOrStdout(), report, format)
}

// errValidationFailed marks a run whose report lists issues.
var errValidationFailed = errors.New("validation failed")

func finishValidation(w io.Writer, report *validationReport, format string) error {
	report.Valid = report.Issues == 0
	if report.Resources == nil {
		report.Resources = []resourceIssues{}
	}

	var err error
	switch format {
	case outputFormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		err = enc.Encode(report)
	case outputFormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		err = enc.Encode(report)
		if err == nil {
			err = enc.Close()
		}
	default:
		_, err = io.WriteString(w, formatValidationText(report))
	}
	if err != nil {
		return fmt.Errorf("writing report: %w", err)
	}

	if !report.Valid {
		return &ExitError{
			Code: 2,
			Err:  fmt.Errorf("%w: %d issue(s) across %d resource(s)", errValidationFailed, report.Issues, len(report.Resources)),
		}
	}
	return nil
}

func formatValidationText(report *validationReport) string {
	var sb strings.Builder
	prefix := "Validation"
	if report.Scope == "collection" {
		prefix = "Collection validation"
	}
	if report.Valid {
		sb.WriteString(prefix + " passed (pipeline requirements).\n")
		return sb.String()
	}
	fmt.Fprintf(&sb, "%s failed: %d issue(s) across %d resource(s)\n", prefix, report.Issues, len(report.Resources))
	for _, r := range report.Resources {
		writeIssues(&sb, r.Resource, r.Issues)
	}
	return sb.String()
}

func writeIssues(sb *strings.Builder, resource string, issues []iiif.ValidationIssue) {
	fmt.Fprintf(sb, "\nResource: %s\n", resource)
	for i, issue := range issues {
		fmt.Fprintf(sb, "  %3d. %s\n", i+1, issue)
	}
}
