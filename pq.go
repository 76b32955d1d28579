package vecpq

import (
	"fmt"
	"math/rand/v2"
	"slices"
	"time"

	"github.com/hupe1980/vecpq/internal/kmeans"
)

// PQ is a product quantizer (Jégou et al., 2011).
//
// A product quantizer slices a vector and assigns to the i-th slice the index
// of the nearest centroid of the i-th subquantizer. Vector reconstruction
// concatenates the centroids that represent the slices.
type PQ struct {
	dim       int
	bits      int
	codebooks []Codebook
}

var _ Quantizer = (*PQ)(nil)

// TrainPQ trains a product quantizer with a randomly seeded source.
//
// The quantizer has subquantizers subquantizers, each with 2^bits centroids.
// Every subquantizer is trained attempts times with iterations k-means
// iterations; the clustering with the lowest loss is kept.
func TrainPQ(subquantizers, bits, iterations, attempts int, instances [][]float32, opts ...Option) (*PQ, error) {
	return TrainPQUsing(subquantizers, bits, iterations, attempts, instances, newRNG(), opts...)
}

// TrainPQUsing trains a product quantizer like TrainPQ. rng is used for
// picking the initial centroids of every attempt, which makes training
// reproducible for a seeded source.
func TrainPQUsing(subquantizers, bits, iterations, attempts int, instances [][]float32, rng *rand.Rand, opts ...Option) (*PQ, error) {
	o := applyOptions(opts)
	o.logger = o.logger.WithKind(KindPQ)
	start := time.Now()

	cfg := trainConfig{
		subquantizers: subquantizers,
		bits:          bits,
		iterations:    iterations,
		attempts:      attempts,
	}

	pq, err := trainPQ(cfg, instances, rng, o)

	o.metricsCollector.RecordTraining(KindPQ, time.Since(start), err)
	o.logger.LogTraining(subquantizers, bits, err)

	return pq, err
}

func trainPQ(cfg trainConfig, instances [][]float32, rng *rand.Rand, o options) (*PQ, error) {
	n, d, err := checkQuantizerInvariants(cfg, instances)
	if err != nil {
		return nil, err
	}
	if rng == nil {
		return nil, invalidConfig("nil random source")
	}

	codebooks, err := trainSubquantizers(cfg, flatten(instances, d), n, d, rng, o)
	if err != nil {
		return nil, err
	}

	return &PQ{dim: d, bits: cfg.bits, codebooks: codebooks}, nil
}

// NewPQ creates a product quantizer from existing codebooks, e.g. restored
// from storage. codebooks[m] holds the 2^bits centroids of subquantizer m,
// flattened row-major. The codebooks are copied.
func NewPQ(dim, bits int, codebooks [][]float32) (*PQ, error) {
	if dim <= 0 {
		return nil, invalidConfig("dimension must be positive, got %d", dim)
	}
	if len(codebooks) == 0 || len(codebooks) > dim || dim%len(codebooks) != 0 {
		return nil, invalidConfig("the number of subquantizers (%d) should evenly divide the dimensionality (%d)", len(codebooks), dim)
	}
	if bits < 1 || bits > MaxBits {
		return nil, invalidConfig("the number of quantizer bits should be in [1, %d], got %d", MaxBits, bits)
	}

	sqDims := dim / len(codebooks)
	want := (1 << bits) * sqDims

	pq := &PQ{
		dim:       dim,
		bits:      bits,
		codebooks: make([]Codebook, len(codebooks)),
	}

	for m, centroids := range codebooks {
		if len(centroids) != want {
			return nil, invalidConfig("codebook %d holds %d values, want %d", m, len(centroids), want)
		}
		pq.codebooks[m] = Codebook{centroids: slices.Clone(centroids), dim: sqDims}
	}

	return pq, nil
}

// Dim returns the dimensionality of quantized vectors.
func (pq *PQ) Dim() int {
	return pq.dim
}

// Subquantizers returns the number of subquantizers, i.e. the code length.
func (pq *PQ) Subquantizers() int {
	return len(pq.codebooks)
}

// Bits returns the number of bits per code entry.
func (pq *PQ) Bits() int {
	return pq.bits
}

// Centroids returns the number of centroids per subquantizer (2^bits).
func (pq *PQ) Centroids() int {
	return 1 << pq.bits
}

// Codebooks returns the subquantizer codebooks in slice order.
func (pq *PQ) Codebooks() []Codebook {
	return slices.Clone(pq.codebooks)
}

// CodeSize returns the number of bytes needed to store a bit-packed code.
func (pq *PQ) CodeSize() int {
	return (len(pq.codebooks)*pq.bits + 7) / 8
}

// CompressionRatio returns the size of a float32 vector divided by the size
// of its bit-packed code.
func (pq *PQ) CompressionRatio() float64 {
	return float64(pq.dim*4) / float64(pq.CodeSize())
}

func (pq *PQ) sqDims() int {
	return pq.dim / len(pq.codebooks)
}

// QuantizeVector returns the code of x.
func (pq *PQ) QuantizeVector(x []float32) (Code, error) {
	if len(x) != pq.dim {
		return nil, &ErrDimensionMismatch{Expected: pq.dim, Actual: len(x)}
	}

	return pq.quantize(x), nil
}

func (pq *PQ) quantize(x []float32) Code {
	sqDims := pq.sqDims()
	code := make(Code, len(pq.codebooks))

	for m, cb := range pq.codebooks {
		code[m] = kmeans.Assign(x[m*sqDims:(m+1)*sqDims], cb.centroids, sqDims)
	}

	return code
}

// QuantizeBatch quantizes every row of x.
func (pq *PQ) QuantizeBatch(x [][]float32) ([]Code, error) {
	if err := checkRows(x, pq.dim); err != nil {
		return nil, err
	}

	return pq.quantizeFlat(flatten(x, pq.dim), len(x)), nil
}

// quantizeFlat quantizes the n×dim row-major matrix data, one subquantizer
// at a time.
func (pq *PQ) quantizeFlat(data []float32, n int) []Code {
	sqDims := pq.sqDims()
	m := len(pq.codebooks)

	codes := make([]Code, n)
	backing := make([]int, n*m)
	for i := range codes {
		codes[i] = backing[i*m : (i+1)*m : (i+1)*m]
	}

	assignments := make([]int, n)
	for sq, cb := range pq.codebooks {
		sub := sliceColumns(data, n, pq.dim, sq*sqDims, sqDims)
		kmeans.AssignBatch(sub, cb.centroids, sqDims, assignments)

		for i, a := range assignments {
			codes[i][sq] = a
		}
	}

	return codes
}

// ReconstructVector returns the concatenation of the centroids selected by c.
func (pq *PQ) ReconstructVector(c Code) ([]float32, error) {
	if err := pq.checkCode(c); err != nil {
		return nil, err
	}

	out := make([]float32, pq.dim)
	pq.reconstructInto(c, out)

	return out, nil
}

// ReconstructBatch reconstructs every code of codes.
func (pq *PQ) ReconstructBatch(codes []Code) ([][]float32, error) {
	data, err := pq.reconstructFlat(codes)
	if err != nil {
		return nil, err
	}

	return unflatten(data, len(codes), pq.dim), nil
}

// reconstructFlat reconstructs codes into one row-major len(codes)×dim slice.
func (pq *PQ) reconstructFlat(codes []Code) ([]float32, error) {
	for i, c := range codes {
		if err := pq.checkCode(c); err != nil {
			return nil, rowError(i, err)
		}
	}

	out := make([]float32, len(codes)*pq.dim)
	for i, c := range codes {
		pq.reconstructInto(c, out[i*pq.dim:(i+1)*pq.dim])
	}

	return out, nil
}

func (pq *PQ) reconstructInto(c Code, out []float32) {
	sqDims := pq.sqDims()
	for m, cb := range pq.codebooks {
		copy(out[m*sqDims:(m+1)*sqDims], cb.centroid(c[m]))
	}
}

func (pq *PQ) checkCode(c Code) error {
	if len(c) != len(pq.codebooks) {
		return &ErrDimensionMismatch{Expected: len(pq.codebooks), Actual: len(c)}
	}

	k := pq.Centroids()
	for m, v := range c {
		if v < 0 || v >= k {
			return &ErrInvalidCode{Subquantizer: m, Code: v, Centroids: k}
		}
	}

	return nil
}

func checkRows(x [][]float32, dim int) error {
	for i, row := range x {
		if len(row) != dim {
			return rowError(i, &ErrDimensionMismatch{Expected: dim, Actual: len(row)})
		}
	}
	return nil
}

func (pq *PQ) String() string {
	return fmt.Sprintf("PQ(dim=%d, subquantizers=%d, bits=%d)", pq.dim, len(pq.codebooks), pq.bits)
}
