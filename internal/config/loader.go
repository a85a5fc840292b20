package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const (
	// ConfigFileName is the base name for configuration files (without extension).
	ConfigFileName = "folio"

	// EnvPrefix is the prefix for environment variables.
	EnvPrefix = "FOLIO"
)

// Loader handles loading configuration from various sources.
type Loader struct {
	v *viper.Viper
}

// NewLoader creates a loader on the global viper instance, which is where
// the root command binds its flags.
func NewLoader() *Loader {
	return &Loader{v: viper.GetViper()}
}

// NewLoaderWithViper creates a loader on v.
func NewLoaderWithViper(v *viper.Viper) *Loader {
	return &Loader{v: v}
}

// Load loads configuration from the first folio.yaml found on the search
// path, environment variables and defaults, then validates it.
func (l *Loader) Load() (*Config, error) {
	return l.LoadWithFile("")
}

// LoadWithFile loads configuration from configFile, or from the search path
// when configFile is empty.
func (l *Loader) LoadWithFile(configFile string) (*Config, error) {
	cfg, err := l.LoadWithFileWithoutValidation(configFile)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// LoadWithFileWithoutValidation is LoadWithFile without the final Validate
// call. Commands that only read documents use it so a half-configured OCR
// section does not block them.
func (l *Loader) LoadWithFileWithoutValidation(configFile string) (*Config, error) {
	if configFile != "" {
		if _, err := os.Stat(configFile); os.IsNotExist(err) {
			return nil, fmt.Errorf("config file does not exist: %s", configFile)
		}
		l.v.SetConfigFile(configFile)
	} else {
		l.v.SetConfigName(ConfigFileName)
		l.v.SetConfigType("yaml")
		l.addConfigPaths()
	}

	l.setupEnvironmentVariables()
	l.setDefaults()

	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	return &cfg, nil
}

// Get returns a value from the configuration.
func (l *Loader) Get(key string) any {
	return l.v.Get(key)
}

// GetString returns a string value from the configuration.
func (l *Loader) GetString(key string) string {
	return l.v.GetString(key)
}

// Set sets a value in the configuration.
func (l *Loader) Set(key string, value any) {
	l.v.Set(key, value)
}

// GetConfigFileUsed returns the path of the config file used.
func (l *Loader) GetConfigFileUsed() string {
	return l.v.ConfigFileUsed()
}

// GetViper returns the underlying viper instance for advanced usage.
func (l *Loader) GetViper() *viper.Viper {
	return l.v
}

func (l *Loader) addConfigPaths() {
	for _, p := range GetConfigSearchPaths() {
		l.v.AddConfigPath(p)
	}
}

func (l *Loader) setupEnvironmentVariables() {
	l.v.SetEnvPrefix(EnvPrefix)
	l.v.AutomaticEnv()
	// FOLIO_BATCH_MAX_PAGES sets batch.max_pages
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
}

// setDefaults registers every key so that environment variables are
// honoured by Unmarshal even when no file mentions the key.
func (l *Loader) setDefaults() {
	d := DefaultConfig()

	l.v.SetDefault("log_level", d.LogLevel)
	l.v.SetDefault("verbose", d.Verbose)
	l.v.SetDefault("output_dir", d.OutputDir)
	l.v.SetDefault("cache_dir", d.CacheDir)

	l.v.SetDefault("image.region", d.Image.Region)
	l.v.SetDefault("image.size", d.Image.Size)
	l.v.SetDefault("image.rotation", d.Image.Rotation)
	l.v.SetDefault("image.quality", d.Image.Quality)
	l.v.SetDefault("image.format", d.Image.Format)

	l.v.SetDefault("ocr.engine", d.OCR.Engine)
	l.v.SetDefault("ocr.model", d.OCR.Model)
	l.v.SetDefault("ocr.model_auto_install", d.OCR.ModelAutoInstall)
	l.v.SetDefault("ocr.kraken_bin", d.OCR.KrakenBin)
	l.v.SetDefault("ocr.languages", d.OCR.Languages)
	l.v.SetDefault("ocr.timeout_sec", d.OCR.TimeoutSec)

	l.v.SetDefault("preprocess.max_side", d.Preprocess.MaxSide)
	l.v.SetDefault("preprocess.grayscale", d.Preprocess.Grayscale)

	l.v.SetDefault("batch.workers", d.Batch.Workers)
	l.v.SetDefault("batch.resume", d.Batch.Resume)
	l.v.SetDefault("batch.max_pages", d.Batch.MaxPages)
	l.v.SetDefault("batch.skip_existing", d.Batch.SkipExisting)
	l.v.SetDefault("batch.recursive_collections", d.Batch.RecursiveCollections)
	l.v.SetDefault("batch.continue_on_error", d.Batch.ContinueOnError)

	l.v.SetDefault("fetch.manifest_timeout_sec", d.Fetch.ManifestTimeoutSec)
	l.v.SetDefault("fetch.image_timeout_sec", d.Fetch.ImageTimeoutSec)
	l.v.SetDefault("fetch.user_agent", d.Fetch.UserAgent)
	l.v.SetDefault("fetch.verify_images", d.Fetch.VerifyImages)

	l.v.SetDefault("output.format", d.Output.Format)
	l.v.SetDefault("output.normalize_text", d.Output.NormalizeText)

	l.v.SetDefault("metrics.addr", d.Metrics.Addr)
}

// GetResolvedConfig returns the current resolved configuration for debugging.
func (l *Loader) GetResolvedConfig() map[string]any {
	return l.v.AllSettings()
}

// WriteConfigToFile writes the current configuration to a file.
func (l *Loader) WriteConfigToFile(filename string) error {
	return l.v.WriteConfigAs(filename)
}

// GenerateDefaultConfigFile writes a configuration file holding every
// default. An empty filename writes folio.yaml in the working directory.
func GenerateDefaultConfigFile(filename string) error {
	loader := NewLoaderWithViper(viper.New())
	loader.setDefaults()

	if filename == "" {
		filename = ConfigFileName + ".yaml"
	}
	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	return loader.WriteConfigToFile(filename)
}

// GetConfigSearchPaths returns the paths where configuration files are
// searched, in order.
func GetConfigSearchPaths() []string {
	paths := []string{"."}

	home, homeErr := os.UserHomeDir()
	if homeErr == nil {
		paths = append(paths, home)
	}
	if configDir, ok := os.LookupEnv("XDG_CONFIG_HOME"); ok {
		paths = append(paths, filepath.Join(configDir, ConfigFileName))
	} else if homeErr == nil {
		paths = append(paths, filepath.Join(home, ".config", ConfigFileName))
	}

	return append(paths, "/etc/"+ConfigFileName)
}

// PrintConfigInfo writes information about configuration loading to w.
func (l *Loader) PrintConfigInfo(w io.Writer) {
	_, _ = fmt.Fprintf(w, "Configuration file used: %s\n", l.GetConfigFileUsed())
	_, _ = fmt.Fprintf(w, "Configuration search paths: %v\n", GetConfigSearchPaths())
	_, _ = fmt.Fprintf(w, "Environment prefix: %s\n", EnvPrefix)
}
