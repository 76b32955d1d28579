package vecpq

import (
	"log/slog"
	"runtime"

	"github.com/hupe1980/vecpq/internal/kmeans"
)

type options struct {
	parallelism      int
	selector         CentroidSelector
	metricsCollector MetricsCollector
	logger           *Logger
}

// Option configures training behavior.
//
// Training parameters that define the quantizer (subquantizers, bits,
// iterations, attempts) are positional arguments of the training functions;
// options only tune how training runs.
type Option func(*options)

// WithParallelism limits the number of subquantizers trained concurrently.
//
// Values <= 0 select runtime.GOMAXPROCS(0). Because all initial centroids are
// drawn before training fans out, the trained model does not depend on the
// parallelism for a fixed random source.
func WithParallelism(n int) Option {
	return func(o *options) {
		o.parallelism = n
	}
}

// WithCentroidSelector configures how initial k-means centroids are drawn.
//
// If nil is passed, random distinct training instances are used.
func WithCentroidSelector(s CentroidSelector) Option {
	return func(o *options) {
		o.selector = s
	}
}

// WithMetricsCollector configures a metrics collector for training runs.
// Pass nil to disable metrics collection.
//
// Example with BasicMetricsCollector:
//
//	metrics := &vecpq.BasicMetricsCollector{}
//	pq, _ := vecpq.TrainPQ(8, 8, 20, 3, vectors, vecpq.WithMetricsCollector(metrics))
//	fmt.Printf("loss: %f\n", metrics.TotalLoss())
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		o.metricsCollector = mc
	}
}

// WithLogger configures structured logging for training.
// Pass nil to disable logging.
//
// Example with JSON logging:
//
//	logger := vecpq.NewJSONLogger(slog.LevelInfo)
//	pq, _ := vecpq.TrainPQ(8, 8, 20, 3, vectors, vecpq.WithLogger(logger))
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		metricsCollector: NoopMetricsCollector{},
		logger:           NoopLogger(),
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}

	if o.parallelism <= 0 {
		o.parallelism = runtime.GOMAXPROCS(0)
	}
	if o.selector == nil {
		o.selector = kmeans.RandomInstances{}
	}
	if o.metricsCollector == nil {
		o.metricsCollector = NoopMetricsCollector{}
	}
	if o.logger == nil {
		o.logger = NoopLogger()
	}

	return o
}
