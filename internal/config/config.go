package config

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/MeKo-Tech/folio/internal/fetch"
	"github.com/MeKo-Tech/folio/internal/iiif"
	"github.com/MeKo-Tech/folio/internal/imageprep"
	"github.com/MeKo-Tech/folio/internal/ocr"
)

// Config represents the complete configuration for folio. It is loaded from
// folio.yaml, FOLIO_* environment variables and command-line flags.
type Config struct {
	// Global settings
	LogLevel string `mapstructure:"log_level" yaml:"log_level" json:"log_level"`
	Verbose  bool   `mapstructure:"verbose" yaml:"verbose" json:"verbose"`

	// OutputDir receives one JSONL file per manifest.
	OutputDir string `mapstructure:"output_dir" yaml:"output_dir" json:"output_dir" validate:"required"`
	// CacheDir holds downloaded page images under images/.
	CacheDir string `mapstructure:"cache_dir" yaml:"cache_dir" json:"cache_dir" validate:"required"`

	Image      ImageConfig       `mapstructure:"image" yaml:"image" json:"image"`
	OCR        OCRConfig         `mapstructure:"ocr" yaml:"ocr" json:"ocr"`
	Preprocess imageprep.Options `mapstructure:"preprocess" yaml:"preprocess" json:"preprocess"`
	Batch      BatchConfig       `mapstructure:"batch" yaml:"batch" json:"batch"`
	Fetch      FetchConfig       `mapstructure:"fetch" yaml:"fetch" json:"fetch"`
	Output     OutputConfig      `mapstructure:"output" yaml:"output" json:"output"`
	Metrics    MetricsConfig     `mapstructure:"metrics" yaml:"metrics" json:"metrics"`
}

// ImageConfig holds the IIIF Image API request parameters.
type ImageConfig struct {
	Region   string `mapstructure:"region" yaml:"region" json:"region" validate:"required"`
	Size     string `mapstructure:"size" yaml:"size" json:"size" validate:"required"`
	Rotation string `mapstructure:"rotation" yaml:"rotation" json:"rotation" validate:"required"`
	Quality  string `mapstructure:"quality" yaml:"quality" json:"quality" validate:"oneof=default color gray bitonal"`
	Format   string `mapstructure:"format" yaml:"format" json:"format" validate:"oneof=jpg png gif webp tif"`
}

// OCRConfig selects the engine and model.
type OCRConfig struct {
	Engine           string   `mapstructure:"engine" yaml:"engine" json:"engine"`
	Model            string   `mapstructure:"model" yaml:"model" json:"model" validate:"required"`
	ModelAutoInstall bool     `mapstructure:"model_auto_install" yaml:"model_auto_install" json:"model_auto_install"`
	KrakenBin        string   `mapstructure:"kraken_bin" yaml:"kraken_bin" json:"kraken_bin"`
	Languages        []string `mapstructure:"languages" yaml:"languages" json:"languages"`
	// TimeoutSec bounds a single page's recognition; 0 disables the bound.
	TimeoutSec int `mapstructure:"timeout_sec" yaml:"timeout_sec" json:"timeout_sec" validate:"gte=0"`
}

// BatchConfig contains settings for multi-manifest runs.
type BatchConfig struct {
	Workers              int  `mapstructure:"workers" yaml:"workers" json:"workers" validate:"gte=1"`
	Resume               bool `mapstructure:"resume" yaml:"resume" json:"resume"`
	MaxPages             int  `mapstructure:"max_pages" yaml:"max_pages" json:"max_pages" validate:"gte=0"`
	SkipExisting         bool `mapstructure:"skip_existing" yaml:"skip_existing" json:"skip_existing"`
	RecursiveCollections bool `mapstructure:"recursive_collections" yaml:"recursive_collections" json:"recursive_collections"`
	ContinueOnError      bool `mapstructure:"continue_on_error" yaml:"continue_on_error" json:"continue_on_error"`
}

// FetchConfig contains HTTP client settings.
type FetchConfig struct {
	ManifestTimeoutSec int    `mapstructure:"manifest_timeout_sec" yaml:"manifest_timeout_sec" json:"manifest_timeout_sec" validate:"gte=1"`
	ImageTimeoutSec    int    `mapstructure:"image_timeout_sec" yaml:"image_timeout_sec" json:"image_timeout_sec" validate:"gte=1"`
	UserAgent          string `mapstructure:"user_agent" yaml:"user_agent" json:"user_agent"`
	// VerifyImages decodes the header of every downloaded image before it
	// enters the cache.
	VerifyImages bool `mapstructure:"verify_images" yaml:"verify_images" json:"verify_images"`
}

// OutputConfig contains output formatting settings.
type OutputConfig struct {
	Format        string `mapstructure:"format" yaml:"format" json:"format"`
	NormalizeText bool   `mapstructure:"normalize_text" yaml:"normalize_text" json:"normalize_text"`
}

// MetricsConfig contains the Prometheus endpoint settings.
type MetricsConfig struct {
	// Addr is the listen address for /metrics; empty disables the endpoint.
	Addr string `mapstructure:"addr" yaml:"addr" json:"addr" validate:"omitempty,hostname_port"`
}

// Default values shared between DefaultConfig and the loader.
const (
	DefaultOutputDir = "out"
	DefaultCacheDir  = ".folio-cache"
)

// DefaultConfig returns a configuration with default values.
func DefaultConfig() Config {
	params := iiif.DefaultImageParams()
	return Config{
		LogLevel:  "info",
		Verbose:   false,
		OutputDir: DefaultOutputDir,
		CacheDir:  DefaultCacheDir,
		Image: ImageConfig{
			Region:   params.Region,
			Size:     params.Size,
			Rotation: params.Rotation,
			Quality:  params.Quality,
			Format:   params.Format,
		},
		OCR: OCRConfig{
			Engine:           ocr.EngineKraken,
			Model:            ocr.DefaultModel,
			ModelAutoInstall: true,
			KrakenBin:        "kraken",
			Languages:        []string{"eng"},
			TimeoutSec:       0,
		},
		Preprocess: imageprep.Options{},
		Batch: BatchConfig{
			Workers:              1,
			Resume:               true,
			MaxPages:             0,
			SkipExisting:         false,
			RecursiveCollections: false,
			ContinueOnError:      true,
		},
		Fetch: FetchConfig{
			ManifestTimeoutSec: int(fetch.DefaultManifestTimeout / time.Second),
			ImageTimeoutSec:    int(fetch.DefaultImageTimeout / time.Second),
			UserAgent:          fetch.DefaultUserAgent(),
			VerifyImages:       true,
		},
		Output: OutputConfig{
			Format:        "text",
			NormalizeText: true,
		},
	}
}

var (
	validLogLevels     = []string{"debug", "info", "warn", "error"}
	validOutputFormats = []string{"text", "json", "csv"}
	validEngines       = []string{ocr.EngineKraken, ocr.EngineTesseract}
)

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	if !slices.Contains(validLogLevels, c.LogLevel) {
		return fmt.Errorf("invalid log level: %s (must be one of: %s)", c.LogLevel, strings.Join(validLogLevels, ", "))
	}
	if c.Output.Format != "" && !slices.Contains(validOutputFormats, c.Output.Format) {
		return fmt.Errorf("invalid output format: %s (must be one of: %s)",
			c.Output.Format, strings.Join(validOutputFormats, ", "))
	}
	if !slices.Contains(validEngines, c.OCR.Engine) {
		return fmt.Errorf("invalid OCR engine: %s (must be one of: %s)", c.OCR.Engine, strings.Join(validEngines, ", "))
	}
	if err := validator.New().Struct(c); err != nil {
		return describeValidationError(err)
	}
	return nil
}

func describeValidationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}
	fe := verrs[0]
	if fe.Param() != "" {
		return fmt.Errorf("invalid %s: %v (must satisfy %s=%s)", fieldPath(fe.Namespace()), fe.Value(), fe.Tag(), fe.Param())
	}
	return fmt.Errorf("invalid %s: %v (must satisfy %s)", fieldPath(fe.Namespace()), fe.Value(), fe.Tag())
}

// fieldPath turns "Config.Batch.Workers" into "Batch.Workers".
func fieldPath(ns string) string {
	_, rest, found := strings.Cut(ns, ".")
	if !found {
		return ns
	}
	return rest
}

// ImageParams converts the image section to request parameters.
func (c *Config) ImageParams() iiif.ImageParams {
	return iiif.ImageParams{
		Region:   c.Image.Region,
		Size:     c.Image.Size,
		Rotation: c.Image.Rotation,
		Quality:  c.Image.Quality,
		Format:   c.Image.Format,
	}.WithDefaults()
}

// ToOCRConfig converts the OCR section to the engine factory configuration.
func (c *Config) ToOCRConfig(logger *slog.Logger) ocr.Config {
	return ocr.Config{
		Engine:      c.OCR.Engine,
		KrakenBin:   c.OCR.KrakenBin,
		AutoInstall: c.OCR.ModelAutoInstall,
		Languages:   c.OCR.Languages,
		Logger:      logger,
	}
}

// PageTimeout is the per-page OCR bound.
func (c *Config) PageTimeout() time.Duration {
	return time.Duration(c.OCR.TimeoutSec) * time.Second
}

// ToFetchOptions converts the fetch section to client options.
func (c *Config) ToFetchOptions() *fetch.Options {
	opts := fetch.DefaultOptions()
	if c.Fetch.ManifestTimeoutSec > 0 {
		opts.ManifestTimeout = time.Duration(c.Fetch.ManifestTimeoutSec) * time.Second
	}
	if c.Fetch.ImageTimeoutSec > 0 {
		opts.ImageTimeout = time.Duration(c.Fetch.ImageTimeoutSec) * time.Second
	}
	if c.Fetch.UserAgent != "" {
		opts.UserAgent = c.Fetch.UserAgent
	}
	return opts
}
