package vecpq

import (
	"math/rand/v2"
	"slices"
)

// Kind identifies a quantizer variant.
type Kind int

const (
	KindPQ Kind = iota
	KindGaussianOPQ
)

// String returns the string representation of the quantizer kind.
func (k Kind) String() string {
	switch k {
	case KindPQ:
		return "PQ"
	case KindGaussianOPQ:
		return "GaussianOPQ"
	default:
		return "Unknown"
	}
}

// Code is a quantized vector: entry m is the index of the centroid chosen
// by subquantizer m.
type Code []int

// Quantizer is implemented by all trained product quantizers.
//
// Trained quantizers are immutable and safe for concurrent use.
type Quantizer interface {
	// QuantizeVector returns the code of x.
	QuantizeVector(x []float32) (Code, error)

	// QuantizeBatch quantizes every row of x. Row i of the result equals
	// QuantizeVector(x[i]).
	QuantizeBatch(x [][]float32) ([]Code, error)

	// ReconstructVector returns the approximation of the vector quantized as c.
	ReconstructVector(c Code) ([]float32, error)

	// ReconstructBatch reconstructs every code of codes.
	ReconstructBatch(codes []Code) ([][]float32, error)

	// Codebooks returns the per-subquantizer codebooks in slice order.
	Codebooks() []Codebook
}

// CentroidSelector draws the initial centroids of a k-means run.
//
// data holds the training instances of one subquantizer, flattened
// row-major (n * dim). The returned slice must hold k centroids (k * dim);
// it is copied, so it may alias data.
// Implementations must draw all randomness from rng.
type CentroidSelector interface {
	SelectCentroids(data []float32, dim, k int, rng *rand.Rand) ([]float32, error)
}

// Codebook is a read-only view of the centroids of one subquantizer.
type Codebook struct {
	centroids []float32
	dim       int
}

// Len returns the number of centroids.
func (c Codebook) Len() int {
	if c.dim == 0 {
		return 0
	}
	return len(c.centroids) / c.dim
}

// Dim returns the dimensionality of the slice quantized by this codebook.
func (c Codebook) Dim() int {
	return c.dim
}

// Centroid returns a copy of centroid i.
func (c Codebook) Centroid(i int) []float32 {
	return slices.Clone(c.centroid(i))
}

func (c Codebook) centroid(i int) []float32 {
	return c.centroids[i*c.dim : (i+1)*c.dim : (i+1)*c.dim]
}

// Centroids returns a copy of all centroids, flattened row-major (Len() * Dim()).
func (c Codebook) Centroids() []float32 {
	return slices.Clone(c.centroids)
}
