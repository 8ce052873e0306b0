package sfmgo

import (
	"github.com/hupe1980/sfmgo/matching"
	"github.com/hupe1980/sfmgo/nnindex"
	"github.com/hupe1980/sfmgo/nnindex/cascade"
	"github.com/hupe1980/sfmgo/nnindex/exhaustive"
	"github.com/hupe1980/sfmgo/reconstruct"
)

type options struct {
	matcher          nnindex.Matcher
	matchingOptions  matching.Options
	reconstructOpts  reconstruct.Options
	adjuster         reconstruct.Adjuster
	metricsCollector MetricsCollector
	logger           *Logger
	prebundlePath    string
	spillDescriptors bool
}

// Option configures pipeline behavior.
type Option func(*options)

func applyOptions(optFns []Option) options {
	o := options{
		matcher:          exhaustive.New(nnindex.DefaultOptions),
		matchingOptions:  matching.DefaultOptions,
		reconstructOpts:  reconstruct.DefaultOptions,
		adjuster:         reconstruct.NoopAdjuster(),
		metricsCollector: NoopMetricsCollector{},
		logger:           NoopLogger(),
	}
	for _, fn := range optFns {
		fn(&o)
	}
	return o
}

// WithMatcher configures the nearest-neighbor backend used for pairwise
// matching. Defaults to the exhaustive matcher.
//
// Example with cascade hashing for large view sets:
//
//	p := sfmgo.New(sfmgo.WithMatcher(cascade.New(cascade.Options{})))
func WithMatcher(m nnindex.Matcher) Option {
	return func(o *options) {
		if m == nil {
			m = exhaustive.New(nnindex.DefaultOptions)
		}
		o.matcher = m
	}
}

// WithCascadeMatching replaces the exhaustive backend with cascade
// hashing. Approximate, but much faster on large view sets.
func WithCascadeMatching(optFns ...func(*cascade.Options)) Option {
	return func(o *options) {
		opts := cascade.Options{Matching: nnindex.DefaultOptions}
		for _, fn := range optFns {
			fn(&opts)
		}
		o.matcher = cascade.New(opts)
	}
}

// WithMatchingOptions configures thresholds and concurrency of the
// pairwise matching stage.
func WithMatchingOptions(fn func(*matching.Options)) Option {
	return func(o *options) {
		fn(&o.matchingOptions)
	}
}

// WithReconstructOptions configures the incremental reconstruction stage.
func WithReconstructOptions(fn func(*reconstruct.Options)) Option {
	return func(o *options) {
		fn(&o.reconstructOpts)
	}
}

// WithAdjuster configures the bundle adjustment solver. Defaults to
// reconstruct.NoopAdjuster, which keeps initial estimates unchanged.
func WithAdjuster(a reconstruct.Adjuster) Option {
	return func(o *options) {
		if a == nil {
			a = reconstruct.NoopAdjuster()
		}
		o.adjuster = a
	}
}

// WithWorkers configures the number of matching workers.
// Values <= 0 mean GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(o *options) {
		o.matchingOptions.Workers = n
	}
}

// WithPrebundle configures a prebundle file path. When the file exists,
// the matching stage is skipped and correspondences are loaded from it;
// otherwise matching runs normally and its result is saved to the path.
func WithPrebundle(path string) Option {
	return func(o *options) {
		o.prebundlePath = path
	}
}

// WithDescriptorSpill compresses descriptors after the matching stage
// instead of dropping them. Spilled descriptors can be restored later;
// the reconstruction stages never need them.
func WithDescriptorSpill() Option {
	return func(o *options) {
		o.spillDescriptors = true
	}
}

// WithMetricsCollector configures a metrics collector for the pipeline
// stages. Pass nil to disable metrics collection.
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}
		o.metricsCollector = mc
	}
}

// WithLogger configures structured logging for the pipeline.
// Pass nil to disable logging.
//
// Example with JSON logging:
//
//	logger := sfmgo.NewJSONLogger(slog.LevelInfo)
//	p := sfmgo.New(sfmgo.WithLogger(logger))
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		if logger == nil {
			logger = NoopLogger()
		}
		o.logger = logger
	}
}
