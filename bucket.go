package vecpq

import (
	"cmp"
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/RoaringBitmap/roaring/v2"
)

// eigenvalueTolerance is the relative tolerance below zero that is still
// accepted as a (rounded) zero eigenvalue.
const eigenvalueTolerance = 1e-9

var errInvalidPartition = errors.New("invalid eigenvalue partition")

// bucketEigenvalues distributes the indices of eigenvalues over nBuckets
// buckets of equal size, such that the products of the eigenvalues in the
// buckets are balanced.
//
// The largest remaining eigenvalue is repeatedly assigned to the non-full
// bucket with the smallest product (lowest bucket index on ties). Products
// are computed as sums in log-space to avoid over- and underflow.
func bucketEigenvalues(eigenvalues []float64, nBuckets int) ([][]int, error) {
	if nBuckets <= 0 {
		return nil, invalidConfig("cannot distribute eigenvalues over %d buckets", nBuckets)
	}
	if len(eigenvalues) < nBuckets {
		return nil, invalidConfig("at least one eigenvalue is required per bucket, got %d eigenvalues for %d buckets", len(eigenvalues), nBuckets)
	}
	if len(eigenvalues)%nBuckets != 0 {
		return nil, invalidConfig("the number of eigenvalues (%d) should be a multiple of the number of buckets (%d)", len(eigenvalues), nBuckets)
	}

	largest := 1.0
	for _, v := range eigenvalues {
		if math.IsNaN(v) {
			return nil, fmt.Errorf("%w: NaN eigenvalue", ErrNumerical)
		}
		largest = math.Max(largest, math.Abs(v))
	}

	indices := make([]int, len(eigenvalues))
	for i := range indices {
		indices[i] = i
	}
	slices.SortStableFunc(indices, func(a, b int) int {
		return cmp.Compare(eigenvalues[a], eigenvalues[b])
	})

	// Only covariance eigenvalues are bucketed, these are non-negative up to
	// rounding.
	if smallest := eigenvalues[indices[0]]; smallest < -eigenvalueTolerance*largest {
		return nil, fmt.Errorf("%w: negative eigenvalue %g", ErrNumerical, smallest)
	}

	logValues := make([]float64, len(eigenvalues))
	for i, v := range eigenvalues {
		logValues[i] = math.Log(math.Max(v, 0) + math.SmallestNonzeroFloat64)
	}

	// Shift to non-negative values. Every bucket receives the same number of
	// eigenvalues, so the shift does not change the order of bucket sums.
	minLog := slices.Min(logValues)
	for i := range logValues {
		logValues[i] -= minLog
	}

	size := len(eigenvalues) / nBuckets
	assignments := make([][]int, nBuckets)
	for b := range assignments {
		assignments[b] = make([]int, 0, size)
	}
	sums := make([]float64, nBuckets)
	full := roaring.New()

	for len(indices) > 0 {
		idx := indices[len(indices)-1]
		indices = indices[:len(indices)-1]

		// Find the non-full bucket with the smallest product.
		target := -1
		for b := range assignments {
			if full.Contains(uint32(b)) {
				continue
			}
			if target < 0 || sums[b] < sums[target] {
				target = b
			}
		}

		assignments[target] = append(assignments[target], idx)
		sums[target] += logValues[idx]

		if len(assignments[target]) == size {
			full.Add(uint32(target))
		}
	}

	return assignments, nil
}

// validateBuckets checks that buckets partition {0, ..., d-1} into equally
// sized, pairwise disjoint buckets.
func validateBuckets(buckets [][]int, d int) error {
	if len(buckets) == 0 || d%len(buckets) != 0 {
		return fmt.Errorf("%w: %d buckets for %d directions", errInvalidPartition, len(buckets), d)
	}

	size := d / len(buckets)
	seen := roaring.New()

	for b, bucket := range buckets {
		if len(bucket) != size {
			return fmt.Errorf("%w: bucket %d holds %d directions, want %d", errInvalidPartition, b, len(bucket), size)
		}

		for _, idx := range bucket {
			if idx < 0 || idx >= d {
				return fmt.Errorf("%w: direction %d out of range [0, %d)", errInvalidPartition, idx, d)
			}
			if seen.Contains(uint32(idx)) {
				return fmt.Errorf("%w: direction %d assigned twice", errInvalidPartition, idx)
			}
			seen.Add(uint32(idx))
		}
	}

	if seen.GetCardinality() != uint64(d) {
		return fmt.Errorf("%w: %d of %d directions assigned", errInvalidPartition, seen.GetCardinality(), d)
	}

	return nil
}
