package kmeans

import (
	"errors"
	"math/rand/v2"

	"github.com/hupe1980/vecpq/internal/math32"
)

// ErrInsufficientData is returned when there are fewer instances than requested centroids.
var ErrInsufficientData = errors.New("kmeans: insufficient data")

// Lloyd refines centroids in place with a fixed number of Lloyd iterations
// and returns the final loss: the sum of squared distances between every
// instance and its nearest centroid.
//
// A centroid that loses all of its instances keeps its previous position.
func Lloyd(data []float32, dim int, centroids []float32, iterations int) float64 {
	n := len(data) / dim
	k := len(centroids) / dim

	assignments := make([]int, n)
	counts := make([]int, k)
	sums := make([]float32, k*dim)

	for iter := 0; iter < iterations; iter++ {
		// Assignment step
		AssignBatch(data, centroids, dim, assignments)

		// Update step
		clear(sums)
		clear(counts)

		for i, cluster := range assignments {
			math32.AddInPlace(sums[cluster*dim:(cluster+1)*dim], data[i*dim:(i+1)*dim])
			counts[cluster]++
		}

		for j := 0; j < k; j++ {
			if counts[j] == 0 {
				continue
			}

			center := centroids[j*dim : (j+1)*dim]
			copy(center, sums[j*dim:(j+1)*dim])
			math32.ScaleInPlace(center, 1/float32(counts[j]))
		}
	}

	return Loss(data, centroids, dim)
}

// Loss returns the sum of squared distances between every instance and its
// nearest centroid.
func Loss(data []float32, centroids []float32, dim int) float64 {
	n := len(data) / dim

	var loss float64
	for i := 0; i < n; i++ {
		_, d := nearest(data[i*dim:(i+1)*dim], centroids, dim)
		loss += float64(d)
	}

	return loss
}

// Assign returns the index of the centroid closest to vec.
// Ties are broken by the lowest centroid index.
func Assign(vec []float32, centroids []float32, dim int) int {
	idx, _ := nearest(vec, centroids, dim)
	return idx
}

// AssignBatch assigns every instance of data to its closest centroid.
// out must have length len(data) / dim.
func AssignBatch(data []float32, centroids []float32, dim int, out []int) {
	for i := range out {
		out[i], _ = nearest(data[i*dim:(i+1)*dim], centroids, dim)
	}
}

func nearest(vec []float32, centroids []float32, dim int) (int, float32) {
	k := len(centroids) / dim

	best := 0
	minDist := math32.SquaredL2(vec, centroids[:dim])

	for j := 1; j < k; j++ {
		d := math32.SquaredL2(vec, centroids[j*dim:(j+1)*dim])
		if d < minDist {
			minDist = d
			best = j
		}
	}

	return best, minDist
}

// RandomInstances selects initial centroids by sampling distinct instances
// uniformly at random.
type RandomInstances struct{}

// SelectCentroids returns k instances of data, flattened (k * dim).
func (RandomInstances) SelectCentroids(data []float32, dim, k int, rng *rand.Rand) ([]float32, error) {
	n := len(data) / dim
	if n < k {
		return nil, ErrInsufficientData
	}

	centroids := make([]float32, k*dim)

	perm := rng.Perm(n)
	for i := 0; i < k; i++ {
		copy(centroids[i*dim:(i+1)*dim], data[perm[i]*dim:(perm[i]+1)*dim])
	}

	return centroids, nil
}
