// Package metrics exposes pipeline counters to Prometheus.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Page outcomes: processed, skipped, failed
	pagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "folio_pages_total",
			Help: "Total number of pages by outcome",
		},
		[]string{"outcome"},
	)

	pageFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "folio_page_failures_total",
			Help: "Total number of page failures by reason",
		},
		[]string{"reason"}, // reason: no_image, fetch, prepare, ocr
	)

	manifestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "folio_manifests_total",
			Help: "Total number of manifests by final stage",
		},
		[]string{"stage"},
	)

	manifestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "folio_manifests_in_flight",
			Help: "Number of manifests currently being processed",
		},
	)

	ocrDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "folio_ocr_duration_seconds",
			Help:    "OCR duration per page in seconds",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 25, 50, 100},
		},
		[]string{"engine"},
	)

	ocrTextLength = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "folio_ocr_text_length",
			Help:    "Length of recognized page text in bytes",
			Buckets: []float64{0, 10, 50, 100, 500, 1000, 5000, 10000, 50000},
		},
		[]string{"engine"},
	)

	imageCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "folio_image_cache_lookups_total",
			Help: "Image cache lookups by result",
		},
		[]string{"result"}, // result: hit, miss
	)
)

// Recorder receives pipeline events. The zero Prometheus value records to
// the default registry.
type Recorder interface {
	ManifestStarted()
	ManifestFinished(stage string)
	PageProcessed(engine string, ocr time.Duration, textLen int)
	PageSkipped()
	PageFailed(reason string)
	CacheLookup(hit bool)
}

// Prometheus records to the package collectors.
type Prometheus struct{}

func (Prometheus) ManifestStarted() { manifestsInFlight.Inc() }

func (Prometheus) ManifestFinished(stage string) {
	manifestsInFlight.Dec()
	manifestsTotal.WithLabelValues(stage).Inc()
}

func (Prometheus) PageProcessed(engine string, ocr time.Duration, textLen int) {
	pagesTotal.WithLabelValues("processed").Inc()
	ocrDuration.WithLabelValues(engine).Observe(ocr.Seconds())
	ocrTextLength.WithLabelValues(engine).Observe(float64(textLen))
}

func (Prometheus) PageSkipped() { pagesTotal.WithLabelValues("skipped").Inc() }

func (Prometheus) PageFailed(reason string) {
	pagesTotal.WithLabelValues("failed").Inc()
	pageFailuresTotal.WithLabelValues(reason).Inc()
}

func (Prometheus) CacheLookup(hit bool) {
	if hit {
		imageCacheLookups.WithLabelValues("hit").Inc()
		return
	}
	imageCacheLookups.WithLabelValues("miss").Inc()
}

// Nop discards events.
type Nop struct{}

func (Nop) ManifestStarted()                         {}
func (Nop) ManifestFinished(string)                  {}
func (Nop) PageProcessed(string, time.Duration, int) {}
func (Nop) PageSkipped()                             {}
func (Nop) PageFailed(string)                        {}
func (Nop) CacheLookup(bool)                         {}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Serve exposes /metrics on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Serving metrics", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
