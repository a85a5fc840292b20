package config

import (
	"strings"
	"testing"
	"time"

	"github.com/MeKo-Tech/folio/internal/fetch"
	"github.com/MeKo-Tech/folio/internal/iiif"
	"github.com/MeKo-Tech/folio/internal/ocr"
)

const infoLevel = "info"

// TestDefaultConfig verifies that DefaultConfig returns expected values.
func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.LogLevel != infoLevel {
		t.Errorf("Expected log_level '%s', got %s", infoLevel, cfg.LogLevel)
	}
	if cfg.OutputDir != DefaultOutputDir {
		t.Errorf("Expected output_dir %s, got %s", DefaultOutputDir, cfg.OutputDir)
	}
	if cfg.CacheDir != DefaultCacheDir {
		t.Errorf("Expected cache_dir %s, got %s", DefaultCacheDir, cfg.CacheDir)
	}
	if cfg.OCR.Engine != ocr.EngineKraken {
		t.Errorf("Expected engine kraken, got %s", cfg.OCR.Engine)
	}
	if cfg.OCR.Model != ocr.DefaultModel {
		t.Errorf("Expected model %s, got %s", ocr.DefaultModel, cfg.OCR.Model)
	}
	if !cfg.OCR.ModelAutoInstall {
		t.Error("Expected model_auto_install to be true")
	}
	if cfg.Batch.Workers != 1 {
		t.Errorf("Expected batch workers 1, got %d", cfg.Batch.Workers)
	}
	if !cfg.Batch.Resume {
		t.Error("Expected resume to be enabled by default")
	}
	if cfg.Batch.SkipExisting {
		t.Error("Expected skip_existing to be disabled by default")
	}
	if cfg.Batch.RecursiveCollections {
		t.Error("Expected recursive_collections to be disabled by default")
	}
	if !cfg.Fetch.VerifyImages {
		t.Error("Expected verify_images to be enabled by default")
	}
	if cfg.Output.Format != "text" {
		t.Errorf("Expected output format 'text', got %s", cfg.Output.Format)
	}
	if cfg.Metrics.Addr != "" {
		t.Errorf("Expected metrics disabled, got %s", cfg.Metrics.Addr)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("DefaultConfig() does not validate: %v", err)
	}
}

func TestDefaultConfigImageParams(t *testing.T) {
	cfg := DefaultConfig()
	if got := cfg.ImageParams(); got != iiif.DefaultImageParams() {
		t.Errorf("ImageParams() = %+v, want %+v", got, iiif.DefaultImageParams())
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid defaults", func(*Config) {}, ""},
		{"bad log level", func(c *Config) { c.LogLevel = "trace" }, "invalid log level"},
		{"bad output format", func(c *Config) { c.Output.Format = "xml" }, "invalid output format"},
		{"empty output format allowed", func(c *Config) { c.Output.Format = "" }, ""},
		{"bad engine", func(c *Config) { c.OCR.Engine = "abbyy" }, "invalid OCR engine"},
		{"tesseract engine", func(c *Config) { c.OCR.Engine = ocr.EngineTesseract }, ""},
		{"zero workers", func(c *Config) { c.Batch.Workers = 0 }, "Batch.Workers"},
		{"negative max pages", func(c *Config) { c.Batch.MaxPages = -1 }, "Batch.MaxPages"},
		{"empty model", func(c *Config) { c.OCR.Model = "" }, "OCR.Model"},
		{"negative timeout", func(c *Config) { c.OCR.TimeoutSec = -5 }, "OCR.TimeoutSec"},
		{"empty cache dir", func(c *Config) { c.CacheDir = "" }, "CacheDir"},
		{"bad image format", func(c *Config) { c.Image.Format = "jp2" }, "Image.Format"},
		{"bad quality", func(c *Config) { c.Image.Quality = "sepia" }, "Image.Quality"},
		{"negative max side", func(c *Config) { c.Preprocess.MaxSide = -1 }, "Preprocess.MaxSide"},
		{"zero manifest timeout", func(c *Config) { c.Fetch.ManifestTimeoutSec = 0 }, "Fetch.ManifestTimeoutSec"},
		{"metrics addr", func(c *Config) { c.Metrics.Addr = ":9090" }, ""},
		{"bad metrics addr", func(c *Config) { c.Metrics.Addr = "not an address" }, "Metrics.Addr"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestImageParamsFillsBlanks(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Image.Size = ""
	cfg.Image.Format = "png"

	got := cfg.ImageParams()
	if got.Size != iiif.DefaultSize {
		t.Errorf("Expected size %s, got %s", iiif.DefaultSize, got.Size)
	}
	if got.Format != "png" {
		t.Errorf("Expected format png, got %s", got.Format)
	}
}

func TestToOCRConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.OCR.KrakenBin = "/opt/kraken/bin/kraken"
	cfg.OCR.ModelAutoInstall = false
	cfg.OCR.Languages = []string{"deu", "lat"}

	oc := cfg.ToOCRConfig(nil)
	if oc.Engine != ocr.EngineKraken {
		t.Errorf("Expected engine kraken, got %s", oc.Engine)
	}
	if oc.KrakenBin != "/opt/kraken/bin/kraken" {
		t.Errorf("Expected kraken bin to carry over, got %s", oc.KrakenBin)
	}
	if oc.AutoInstall {
		t.Error("Expected auto install to be disabled")
	}
	if len(oc.Languages) != 2 || oc.Languages[0] != "deu" {
		t.Errorf("Expected languages [deu lat], got %v", oc.Languages)
	}
}

func TestToFetchOptions(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Fetch.ManifestTimeoutSec = 3
	cfg.Fetch.ImageTimeoutSec = 0
	cfg.Fetch.UserAgent = ""

	opts := cfg.ToFetchOptions()
	if opts.ManifestTimeout != 3*time.Second {
		t.Errorf("Expected manifest timeout 3s, got %v", opts.ManifestTimeout)
	}
	if opts.ImageTimeout != fetch.DefaultImageTimeout {
		t.Errorf("Expected default image timeout, got %v", opts.ImageTimeout)
	}
	if opts.UserAgent != fetch.DefaultUserAgent() {
		t.Errorf("Expected default user agent, got %s", opts.UserAgent)
	}
}

func TestPageTimeout(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.PageTimeout() != 0 {
		t.Errorf("Expected no page timeout, got %v", cfg.PageTimeout())
	}
	cfg.OCR.TimeoutSec = 90
	if cfg.PageTimeout() != 90*time.Second {
		t.Errorf("Expected 90s, got %v", cfg.PageTimeout())
	}
}

func TestFieldPath(t *testing.T) {
	if got := fieldPath("Config.Batch.Workers"); got != "Batch.Workers" {
		t.Errorf("fieldPath() = %s", got)
	}
	if got := fieldPath("Workers"); got != "Workers" {
		t.Errorf("fieldPath() = %s", got)
	}
}
