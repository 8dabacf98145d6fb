package springview

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ----------------------------- Metrics --------------------------------------

// engineMetrics are created per engine. With a nil registerer the
// collectors still count but are not exported.
type engineMetrics struct {
	cacheHits     prometheus.Counter
	cacheMisses   prometheus.Counter
	stalePurges   prometheus.Counter
	builds        prometheus.Counter
	buildErrors   prometheus.Counter
	renders       *prometheus.CounterVec
	renderSeconds prometheus.Histogram
}

func newEngineMetrics(reg prometheus.Registerer) *engineMetrics {
	f := promauto.With(reg)
	return &engineMetrics{
		cacheHits: f.NewCounter(prometheus.CounterOpts{
			Name: "springview_cache_hits_total",
			Help: "Artifact lookups served by a valid cached artifact",
		}),
		cacheMisses: f.NewCounter(prometheus.CounterOpts{
			Name: "springview_cache_misses_total",
			Help: "Artifact lookups that required a build",
		}),
		stalePurges: f.NewCounter(prometheus.CounterOpts{
			Name: "springview_cache_stale_total",
			Help: "Stale artifacts removed before a rebuild",
		}),
		builds: f.NewCounter(prometheus.CounterOpts{
			Name: "springview_builds_total",
			Help: "Artifacts compiled and written",
		}),
		buildErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "springview_build_errors_total",
			Help: "Artifact builds that failed",
		}),
		renders: f.NewCounterVec(prometheus.CounterOpts{
			Name: "springview_renders_total",
			Help: "Render calls by outcome",
		}, []string{"outcome"}),
		renderSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "springview_render_duration_seconds",
			Help:    "Render duration in seconds",
			Buckets: prometheus.DefBuckets,
		}),
	}
}
