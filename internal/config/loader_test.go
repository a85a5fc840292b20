package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/viper"
)

func newTestLoader() *Loader {
	return NewLoaderWithViper(viper.New())
}

// chdir switches to dir for the duration of the test.
func chdir(t *testing.T, dir string) {
	t.Helper()
	originalWd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Failed to get working directory: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Failed to change directory: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(originalWd) })
}

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "folio.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}
	return path
}

func TestNewLoader(t *testing.T) {
	loader := NewLoader()
	if loader == nil {
		t.Fatal("NewLoader() returned nil")
	}
	if loader.GetViper() != viper.GetViper() {
		t.Error("NewLoader() should use the global viper instance")
	}
}

func TestLoadWithNoConfigFile(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("HOME", t.TempDir())

	cfg, err := newTestLoader().Load()
	if err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}
	if cfg.LogLevel != infoLevel {
		t.Errorf("Expected default log level '%s', got %s", infoLevel, cfg.LogLevel)
	}
	if cfg.OutputDir != DefaultOutputDir {
		t.Errorf("Expected default output dir, got %s", cfg.OutputDir)
	}
	if cfg.Image.Size != "!3000,3000" {
		t.Errorf("Expected default size, got %s", cfg.Image.Size)
	}
}

func TestLoadFromSearchPath(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	writeConfig(t, dir, "log_level: debug\nbatch:\n  workers: 3\n")

	loader := newTestLoader()
	cfg, err := loader.Load()
	if err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("Expected log level debug, got %s", cfg.LogLevel)
	}
	if cfg.Batch.Workers != 3 {
		t.Errorf("Expected 3 workers, got %d", cfg.Batch.Workers)
	}
	if !strings.HasSuffix(loader.GetConfigFileUsed(), "folio.yaml") {
		t.Errorf("Expected folio.yaml to be used, got %s", loader.GetConfigFileUsed())
	}
}

func TestLoadWithValidYAMLFile(t *testing.T) {
	configFile := writeConfig(t, t.TempDir(), `
log_level: warn
output_dir: /data/ocr
cache_dir: /data/cache
image:
  size: "!2000,2000"
  format: png
ocr:
  model: catmus-medieval.mlmodel
  model_auto_install: false
  languages: [deu, lat]
preprocess:
  max_side: 2500
  grayscale: true
batch:
  max_pages: 10
  resume: false
  skip_existing: true
output:
  format: json
  normalize_text: false
`)

	cfg, err := newTestLoader().LoadWithFile(configFile)
	if err != nil {
		t.Fatalf("LoadWithFile() unexpected error: %v", err)
	}

	if cfg.LogLevel != "warn" {
		t.Errorf("Expected log level warn, got %s", cfg.LogLevel)
	}
	if cfg.OutputDir != "/data/ocr" || cfg.CacheDir != "/data/cache" {
		t.Errorf("Unexpected dirs: %s %s", cfg.OutputDir, cfg.CacheDir)
	}
	if cfg.Image.Size != "!2000,2000" || cfg.Image.Format != "png" {
		t.Errorf("Unexpected image config: %+v", cfg.Image)
	}
	if cfg.Image.Region != "full" {
		t.Errorf("Expected default region to survive, got %s", cfg.Image.Region)
	}
	if cfg.OCR.Model != "catmus-medieval.mlmodel" || cfg.OCR.ModelAutoInstall {
		t.Errorf("Unexpected OCR config: %+v", cfg.OCR)
	}
	if len(cfg.OCR.Languages) != 2 {
		t.Errorf("Expected 2 languages, got %v", cfg.OCR.Languages)
	}
	if cfg.Preprocess.MaxSide != 2500 || !cfg.Preprocess.Grayscale {
		t.Errorf("Unexpected preprocess config: %+v", cfg.Preprocess)
	}
	if cfg.Batch.MaxPages != 10 || cfg.Batch.Resume || !cfg.Batch.SkipExisting {
		t.Errorf("Unexpected batch config: %+v", cfg.Batch)
	}
	if cfg.Output.Format != "json" || cfg.Output.NormalizeText {
		t.Errorf("Unexpected output config: %+v", cfg.Output)
	}
}

func TestLoadWithInvalidYAMLFile(t *testing.T) {
	configFile := writeConfig(t, t.TempDir(), "log_level: [unclosed\n")

	if _, err := newTestLoader().LoadWithFile(configFile); err == nil {
		t.Error("LoadWithFile() expected error for invalid YAML")
	}
}

func TestLoadWithNonExistentFile(t *testing.T) {
	_, err := newTestLoader().LoadWithFile("/nonexistent/folio.yaml")
	if err == nil || !strings.Contains(err.Error(), "does not exist") {
		t.Errorf("Expected does-not-exist error, got %v", err)
	}
}

func TestLoadWithValidationFailure(t *testing.T) {
	configFile := writeConfig(t, t.TempDir(), "batch:\n  workers: 0\n")

	_, err := newTestLoader().LoadWithFile(configFile)
	if err == nil {
		t.Fatal("LoadWithFile() expected validation error")
	}
	if !strings.Contains(err.Error(), "configuration validation failed") {
		t.Errorf("Expected validation failure, got %v", err)
	}
}

func TestLoadWithoutValidation(t *testing.T) {
	configFile := writeConfig(t, t.TempDir(), "ocr:\n  engine: abbyy\n")

	cfg, err := newTestLoader().LoadWithFileWithoutValidation(configFile)
	if err != nil {
		t.Fatalf("LoadWithFileWithoutValidation() unexpected error: %v", err)
	}
	if cfg.OCR.Engine != "abbyy" {
		t.Errorf("Expected engine to pass through unvalidated, got %s", cfg.OCR.Engine)
	}
}

func TestEnvironmentVariableOverride(t *testing.T) {
	configFile := writeConfig(t, t.TempDir(), "log_level: warn\nbatch:\n  workers: 2\n")
	t.Setenv("FOLIO_LOG_LEVEL", "debug")
	t.Setenv("FOLIO_BATCH_MAX_PAGES", "7")
	t.Setenv("FOLIO_OCR_MODEL", "from-env.mlmodel")

	cfg, err := newTestLoader().LoadWithFile(configFile)
	if err != nil {
		t.Fatalf("LoadWithFile() unexpected error: %v", err)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("Expected env to override file, got %s", cfg.LogLevel)
	}
	if cfg.Batch.MaxPages != 7 {
		t.Errorf("Expected max pages 7 from env, got %d", cfg.Batch.MaxPages)
	}
	if cfg.Batch.Workers != 2 {
		t.Errorf("Expected workers 2 from file, got %d", cfg.Batch.Workers)
	}
	if cfg.OCR.Model != "from-env.mlmodel" {
		t.Errorf("Expected model from env, got %s", cfg.OCR.Model)
	}
}

func TestGetSetConfigValues(t *testing.T) {
	loader := newTestLoader()
	loader.Set("output_dir", "/tmp/x")

	if got := loader.GetString("output_dir"); got != "/tmp/x" {
		t.Errorf("GetString() = %s", got)
	}
	if got := loader.Get("output_dir"); got != "/tmp/x" {
		t.Errorf("Get() = %v", got)
	}
}

func TestGetResolvedConfig(t *testing.T) {
	loader := newTestLoader()
	loader.setDefaults()

	settings := loader.GetResolvedConfig()
	if _, ok := settings["batch"]; !ok {
		t.Error("Resolved config is missing the batch section")
	}
}

func TestGenerateDefaultConfigFile(t *testing.T) {
	outputFile := filepath.Join(t.TempDir(), "nested", "default.yaml")

	if err := GenerateDefaultConfigFile(outputFile); err != nil {
		t.Fatalf("GenerateDefaultConfigFile() error: %v", err)
	}

	cfg, err := newTestLoader().LoadWithFile(outputFile)
	if err != nil {
		t.Fatalf("Failed to load generated config: %v", err)
	}
	want := DefaultConfig()
	if cfg.OCR.Model != want.OCR.Model || cfg.Batch.Workers != want.Batch.Workers {
		t.Errorf("Generated config does not round-trip defaults: %+v", cfg)
	}
}

func TestGenerateDefaultConfigFileWithEmptyFilename(t *testing.T) {
	tmpDir := t.TempDir()
	chdir(t, tmpDir)

	if err := GenerateDefaultConfigFile(""); err != nil {
		t.Fatalf("GenerateDefaultConfigFile(\"\") error: %v", err)
	}
	if _, err := os.Stat(filepath.Join(tmpDir, "folio.yaml")); err != nil {
		t.Errorf("Default folio.yaml was not generated: %v", err)
	}
}

func TestGetConfigSearchPaths(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/xdg")

	paths := GetConfigSearchPaths()
	if paths[0] != "." {
		t.Errorf("Expected current directory first, got %v", paths)
	}
	if paths[len(paths)-1] != "/etc/folio" {
		t.Errorf("Expected /etc/folio last, got %v", paths)
	}
	found := false
	for _, p := range paths {
		if p == filepath.Join("/xdg", "folio") {
			found = true
		}
	}
	if !found {
		t.Errorf("Expected XDG config dir in %v", paths)
	}
}

func TestPrintConfigInfo(t *testing.T) {
	var buf bytes.Buffer
	newTestLoader().PrintConfigInfo(&buf)

	if !strings.Contains(buf.String(), "Environment prefix: FOLIO") {
		t.Errorf("Unexpected config info: %s", buf.String())
	}
}
