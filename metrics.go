package vecpq

import (
	"math"
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting training metrics.
// Implement this interface to integrate with monitoring systems like Prometheus.
//
// Implementations must be safe for concurrent use: subquantizers are trained
// in parallel.
type MetricsCollector interface {
	// RecordSubquantizer is called once per trained subquantizer.
	// loss is the loss of the selected attempt.
	RecordSubquantizer(index, attempts int, loss float64, duration time.Duration)

	// RecordProjection is called after building an OPQ projection matrix.
	RecordProjection(dimension int, duration time.Duration, err error)

	// RecordTraining is called after each training run.
	RecordTraining(kind Kind, duration time.Duration, err error)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordSubquantizer(int, int, float64, time.Duration) {}
func (NoopMetricsCollector) RecordProjection(int, time.Duration, error)         {}
func (NoopMetricsCollector) RecordTraining(Kind, time.Duration, error)          {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	SubquantizerCount      atomic.Int64
	AttemptCount           atomic.Int64
	SubquantizerTotalNanos atomic.Int64
	ProjectionCount        atomic.Int64
	ProjectionErrors       atomic.Int64
	TrainingCount          atomic.Int64
	TrainingErrors         atomic.Int64
	TrainingTotalNanos     atomic.Int64

	lossBits atomic.Uint64
}

// RecordSubquantizer implements MetricsCollector.
func (b *BasicMetricsCollector) RecordSubquantizer(_ int, attempts int, loss float64, duration time.Duration) {
	b.SubquantizerCount.Add(1)
	b.AttemptCount.Add(int64(attempts))
	b.SubquantizerTotalNanos.Add(duration.Nanoseconds())

	for {
		old := b.lossBits.Load()
		updated := math.Float64bits(math.Float64frombits(old) + loss)
		if b.lossBits.CompareAndSwap(old, updated) {
			return
		}
	}
}

// RecordProjection implements MetricsCollector.
func (b *BasicMetricsCollector) RecordProjection(_ int, _ time.Duration, err error) {
	b.ProjectionCount.Add(1)
	if err != nil {
		b.ProjectionErrors.Add(1)
	}
}

// RecordTraining implements MetricsCollector.
func (b *BasicMetricsCollector) RecordTraining(_ Kind, duration time.Duration, err error) {
	b.TrainingCount.Add(1)
	b.TrainingTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.TrainingErrors.Add(1)
	}
}

// TotalLoss returns the summed loss of all recorded subquantizers.
func (b *BasicMetricsCollector) TotalLoss() float64 {
	return math.Float64frombits(b.lossBits.Load())
}

// AverageSubquantizerDuration returns the mean training time per subquantizer.
func (b *BasicMetricsCollector) AverageSubquantizerDuration() time.Duration {
	count := b.SubquantizerCount.Load()
	if count == 0 {
		return 0
	}
	return time.Duration(b.SubquantizerTotalNanos.Load() / count)
}

// Reset clears all counters.
func (b *BasicMetricsCollector) Reset() {
	b.SubquantizerCount.Store(0)
	b.AttemptCount.Store(0)
	b.SubquantizerTotalNanos.Store(0)
	b.ProjectionCount.Store(0)
	b.ProjectionErrors.Store(0)
	b.TrainingCount.Store(0)
	b.TrainingErrors.Store(0)
	b.TrainingTotalNanos.Store(0)
	b.lossBits.Store(0)
}
