package ocr

import (
	"fmt"
	"log/slog"
	"strings"
)

// Engine names accepted by New.
const (
	EngineKraken    = "kraken"
	EngineTesseract = "tesseract"
)

// Config selects and configures an engine.
type Config struct {
	Engine      string
	KrakenBin   string
	AutoInstall bool
	Languages   []string
	Logger      *slog.Logger
}

// New builds the configured engine and the model resolver that goes with
// it.
func New(cfg Config) (Engine, ModelResolver, error) {
	switch strings.ToLower(cfg.Engine) {
	case "", EngineKraken:
		k := NewKraken(KrakenOptions{
			Bin:         cfg.KrakenBin,
			AutoInstall: cfg.AutoInstall,
			Logger:      cfg.Logger,
		})
		return k, k, nil
	case EngineTesseract:
		e, err := newTesseract(cfg.Languages)
		if err != nil {
			return nil, nil, err
		}
		return e, Passthrough, nil
	default:
		return nil, nil, fmt.Errorf("unknown OCR engine %q (want %s or %s)", cfg.Engine, EngineKraken, EngineTesseract)
	}
}
