package vecpq

import (
	"fmt"
	"math"
	"math/rand/v2"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/vecpq/internal/kmeans"
)

// MaxBits is the largest supported number of bits per subquantizer code.
const MaxBits = 24

type trainConfig struct {
	subquantizers int
	bits          int
	iterations    int
	attempts      int
}

func (c trainConfig) centroids() int {
	return 1 << c.bits
}

// checkQuantizerInvariants validates the training parameters against the
// instances and returns the number of instances and their dimensionality.
func checkQuantizerInvariants(cfg trainConfig, instances [][]float32) (int, int, error) {
	if len(instances) == 0 {
		return 0, 0, invalidConfig("no training instances")
	}

	d := len(instances[0])
	if d == 0 {
		return 0, 0, invalidConfig("training instances have zero dimensions")
	}

	for i, row := range instances {
		if len(row) != d {
			return 0, 0, fmt.Errorf("%w: %w", ErrInvalidConfiguration, rowError(i, &ErrDimensionMismatch{Expected: d, Actual: len(row)}))
		}
	}

	if cfg.subquantizers < 1 || cfg.subquantizers > d {
		return 0, 0, invalidConfig("the number of subquantizers should at least be 1 and at most be %d, got %d", d, cfg.subquantizers)
	}
	if d%cfg.subquantizers != 0 {
		return 0, 0, invalidConfig("the number of subquantizers (%d) should evenly divide the dimensionality (%d)", cfg.subquantizers, d)
	}
	if cfg.bits < 1 || cfg.bits > MaxBits {
		return 0, 0, invalidConfig("the number of quantizer bits should be in [1, %d], got %d", MaxBits, cfg.bits)
	}
	if cfg.iterations < 1 {
		return 0, 0, invalidConfig("the subquantizers should be optimized for at least one iteration, got %d", cfg.iterations)
	}
	if cfg.attempts < 1 {
		return 0, 0, invalidConfig("the subquantizers should be optimized for at least one attempt, got %d", cfg.attempts)
	}
	if len(instances) < cfg.centroids() {
		return 0, 0, invalidConfig("%d centroids per subquantizer require at least as many instances, got %d", cfg.centroids(), len(instances))
	}

	return len(instances), d, nil
}

// trainSubquantizers trains one codebook per subquantizer on the flattened
// instances (n * d).
//
// Every initial centroid set is drawn from rng up front, subquantizer by
// subquantizer and attempt by attempt. Only the k-means refinement runs in
// parallel, so the result does not depend on the degree of parallelism.
func trainSubquantizers(cfg trainConfig, data []float32, n, d int, rng *rand.Rand, o options) ([]Codebook, error) {
	sqDims := d / cfg.subquantizers
	k := cfg.centroids()

	sqInstances := make([][]float32, cfg.subquantizers)
	initial := make([][][]float32, cfg.subquantizers)

	for sq := range sqInstances {
		sqInstances[sq] = sliceColumns(data, n, d, sq*sqDims, sqDims)

		initial[sq] = make([][]float32, cfg.attempts)
		for attempt := range initial[sq] {
			centroids, err := o.selector.SelectCentroids(sqInstances[sq], sqDims, k, rng)
			if err != nil {
				return nil, fmt.Errorf("subquantizer %d: select initial centroids: %w", sq, err)
			}
			if len(centroids) != k*sqDims {
				return nil, fmt.Errorf("subquantizer %d: selector returned %d values, want %d", sq, len(centroids), k*sqDims)
			}
			// Attempts are refined in place, so they must not share memory
			// with the instances or with each other.
			initial[sq][attempt] = slices.Clone(centroids)
		}
	}

	codebooks := make([]Codebook, cfg.subquantizers)

	var g errgroup.Group
	g.SetLimit(o.parallelism)

	for sq := range codebooks {
		g.Go(func() error {
			cb, err := trainSubquantizer(sq, sqInstances[sq], sqDims, initial[sq], cfg.iterations, o)
			if err != nil {
				return err
			}
			codebooks[sq] = cb
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return codebooks, nil
}

// trainSubquantizer runs one k-means refinement per initial centroid set and
// keeps the codebook with the lowest loss. On equal loss the earliest attempt
// wins. A non-finite loss, e.g. caused by NaN instances, is an ErrNumerical.
func trainSubquantizer(idx int, instances []float32, dim int, initial [][]float32, iterations int, o options) (Codebook, error) {
	start := time.Now()
	logger := o.logger.WithSubquantizer(idx)

	best := -1
	var bestLoss float64

	for attempt, centroids := range initial {
		loss := kmeans.Lloyd(instances, dim, centroids, iterations)
		logger.LogAttempt(attempt, loss)

		if math.IsNaN(loss) || math.IsInf(loss, 0) {
			return Codebook{}, fmt.Errorf("%w: subquantizer %d attempt %d has loss %g", ErrNumerical, idx, attempt, loss)
		}

		if best < 0 || loss < bestLoss {
			best = attempt
			bestLoss = loss
		}
	}

	logger.LogSubquantizer(len(initial), best, bestLoss)
	o.metricsCollector.RecordSubquantizer(idx, len(initial), bestLoss, time.Since(start))

	return Codebook{centroids: initial[best], dim: dim}, nil
}

// sliceColumns copies columns [offset, offset+width) of the n×d matrix data
// into a new n×width matrix.
func sliceColumns(data []float32, n, d, offset, width int) []float32 {
	out := make([]float32, n*width)
	for i := 0; i < n; i++ {
		copy(out[i*width:(i+1)*width], data[i*d+offset:i*d+offset+width])
	}
	return out
}

// flatten copies equally sized rows into one row-major slice.
func flatten(rows [][]float32, d int) []float32 {
	out := make([]float32, len(rows)*d)
	for i, row := range rows {
		copy(out[i*d:(i+1)*d], row)
	}
	return out
}

// unflatten splits a row-major n×d slice into rows sharing its backing array.
func unflatten(data []float32, n, d int) [][]float32 {
	rows := make([][]float32, n)
	for i := range rows {
		rows[i] = data[i*d : (i+1)*d : (i+1)*d]
	}
	return rows
}

func newRNG() *rand.Rand {
	return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
}
