package testutil

import (
	"math"
	"math/rand/v2"
	"sync"
)

// RNG struct encapsulates the random number generator and seed.
// It is thread-safe.
type RNG struct {
	rand *rand.Rand
	seed uint64
	mu   sync.Mutex
}

// NewRNG creates a new RNG instance with the specified seed.
func NewRNG(seed uint64) *RNG {
	return &RNG{
		rand: newRand(seed),
		seed: seed,
	}
}

func newRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// Reset resets the RNG to its initial seed.
func (r *RNG) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rand = newRand(r.seed)
}

// Seed returns the initial seed.
func (r *RNG) Seed() uint64 {
	return r.seed
}

// Source returns a new, independent random source derived from the seed.
// Every call returns a source producing the same sequence.
func (r *RNG) Source() *rand.Rand {
	return newRand(r.seed + 1)
}

// UniformVectors generates random vectors with values in range [0, 1).
// Uses a single backing array for efficiency.
func (r *RNG) UniformVectors(num int, dimensions int) [][]float32 {
	r.mu.Lock()
	defer r.mu.Unlock()

	data := make([]float32, num*dimensions)
	vectors := make([][]float32, num)

	for i := range num {
		vec := data[i*dimensions : (i+1)*dimensions]
		for j := range vec {
			vec[j] = r.rand.Float32()
		}
		vectors[i] = vec
	}

	return vectors
}

// UniformRangeVectors generates random vectors with values in range [-1, 1).
func (r *RNG) UniformRangeVectors(num int, dimensions int) [][]float32 {
	r.mu.Lock()
	defer r.mu.Unlock()

	data := make([]float32, num*dimensions)
	vectors := make([][]float32, num)

	for i := range num {
		vec := data[i*dimensions : (i+1)*dimensions]
		for j := range vec {
			vec[j] = r.rand.Float32()*2 - 1
		}
		vectors[i] = vec
	}

	return vectors
}

// ScaledGaussianVectors generates zero-mean Gaussian vectors where dimension
// j has standard deviation scales[j].
func (r *RNG) ScaledGaussianVectors(num int, scales []float32) [][]float32 {
	r.mu.Lock()
	defer r.mu.Unlock()

	dimensions := len(scales)
	data := make([]float32, num*dimensions)
	vectors := make([][]float32, num)

	for i := range num {
		vec := data[i*dimensions : (i+1)*dimensions]
		for j := range vec {
			vec[j] = float32(r.rand.NormFloat64()) * scales[j]
		}
		vectors[i] = vec
	}

	return vectors
}

// AverageEuclideanDistance returns the mean Euclidean distance between
// corresponding rows of a and b.
func AverageEuclideanDistance(a, b [][]float32) float64 {
	if len(a) == 0 {
		return 0
	}

	var total float64
	for i := range a {
		var sum float64
		for j := range a[i] {
			d := float64(a[i][j] - b[i][j])
			sum += d * d
		}
		total += math.Sqrt(sum)
	}

	return total / float64(len(a))
}
