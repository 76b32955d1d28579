package vecpq

import (
	"fmt"
	"math/rand/v2"
	"slices"
	"time"

	"github.com/hupe1980/vecpq/internal/linalg"
)

// maxOrthonormalityError bounds |R·Rᵗ - I| for projections passed to
// NewGaussianOPQ.
const maxOrthonormalityError = 1e-4

// GaussianOPQ is an optimized product quantizer for Gaussian variables
// (Ge et al., 2013).
//
// The quantizer rotates the input space with an orthonormal projection that
// balances variances over the subquantizers before applying a product
// quantizer. The projection is computed from an eigendecomposition of the
// covariance matrix, which assumes that the variables are Gaussian.
type GaussianOPQ struct {
	projection []float32 // d×d, row-major, orthonormal
	pq         *PQ
}

var _ Quantizer = (*GaussianOPQ)(nil)

// TrainGaussianOPQ trains an optimized product quantizer with a randomly
// seeded source. The parameters are the same as for TrainPQ.
func TrainGaussianOPQ(subquantizers, bits, iterations, attempts int, instances [][]float32, opts ...Option) (*GaussianOPQ, error) {
	return TrainGaussianOPQUsing(subquantizers, bits, iterations, attempts, instances, newRNG(), opts...)
}

// TrainGaussianOPQUsing trains an optimized product quantizer like
// TrainGaussianOPQ. rng is used for picking the initial centroids.
func TrainGaussianOPQUsing(subquantizers, bits, iterations, attempts int, instances [][]float32, rng *rand.Rand, opts ...Option) (*GaussianOPQ, error) {
	o := applyOptions(opts)
	o.logger = o.logger.WithKind(KindGaussianOPQ)
	start := time.Now()

	cfg := trainConfig{
		subquantizers: subquantizers,
		bits:          bits,
		iterations:    iterations,
		attempts:      attempts,
	}

	opq, err := trainGaussianOPQ(cfg, instances, rng, o)

	o.metricsCollector.RecordTraining(KindGaussianOPQ, time.Since(start), err)
	o.logger.LogTraining(subquantizers, bits, err)

	return opq, err
}

func trainGaussianOPQ(cfg trainConfig, instances [][]float32, rng *rand.Rand, o options) (*GaussianOPQ, error) {
	// At least 2^bits >= 2 instances are required, which is enough for a
	// covariance estimate.
	n, d, err := checkQuantizerInvariants(cfg, instances)
	if err != nil {
		return nil, err
	}
	if rng == nil {
		return nil, invalidConfig("nil random source")
	}

	data := flatten(instances, d)

	projection, err := createProjectionMatrix(data, n, d, cfg.subquantizers, o)
	if err != nil {
		return nil, err
	}

	rotated := linalg.Mul(data, n, projection, d)

	codebooks, err := trainSubquantizers(cfg, rotated, n, d, rng, o)
	if err != nil {
		return nil, err
	}

	return &GaussianOPQ{
		projection: projection,
		pq:         &PQ{dim: d, bits: cfg.bits, codebooks: codebooks},
	}, nil
}

// NewGaussianOPQ creates an optimized product quantizer from a product
// quantizer trained on rotated vectors and the rotation itself (d×d,
// row-major, orthonormal). The projection is copied.
func NewGaussianOPQ(pq *PQ, projection []float32) (*GaussianOPQ, error) {
	if pq == nil {
		return nil, invalidConfig("nil product quantizer")
	}

	d := pq.Dim()
	if len(projection) != d*d {
		return nil, invalidConfig("projection holds %d values, want %d", len(projection), d*d)
	}
	if e := linalg.OrthonormalityError(projection, d); !(e <= maxOrthonormalityError) {
		return nil, fmt.Errorf("%w: projection is not orthonormal (error %g)", ErrNumerical, e)
	}

	return &GaussianOPQ{projection: slices.Clone(projection), pq: pq}, nil
}

// PQ returns the product quantizer that quantizes rotated vectors.
func (opq *GaussianOPQ) PQ() *PQ {
	return opq.pq
}

// Projection returns a copy of the d×d row-major rotation matrix.
func (opq *GaussianOPQ) Projection() []float32 {
	return slices.Clone(opq.projection)
}

// Dim returns the dimensionality of quantized vectors.
func (opq *GaussianOPQ) Dim() int {
	return opq.pq.Dim()
}

// Subquantizers returns the number of subquantizers, i.e. the code length.
func (opq *GaussianOPQ) Subquantizers() int {
	return opq.pq.Subquantizers()
}

// Bits returns the number of bits per code entry.
func (opq *GaussianOPQ) Bits() int {
	return opq.pq.Bits()
}

// Centroids returns the number of centroids per subquantizer (2^bits).
func (opq *GaussianOPQ) Centroids() int {
	return opq.pq.Centroids()
}

// Codebooks returns the subquantizer codebooks. The centroids live in the
// rotated space.
func (opq *GaussianOPQ) Codebooks() []Codebook {
	return opq.pq.Codebooks()
}

// CodeSize returns the number of bytes needed to store a bit-packed code.
func (opq *GaussianOPQ) CodeSize() int {
	return opq.pq.CodeSize()
}

// CompressionRatio returns the size of a float32 vector divided by the size
// of its bit-packed code.
func (opq *GaussianOPQ) CompressionRatio() float64 {
	return opq.pq.CompressionRatio()
}

// QuantizeVector rotates x and returns its code.
func (opq *GaussianOPQ) QuantizeVector(x []float32) (Code, error) {
	d := opq.pq.dim
	if len(x) != d {
		return nil, &ErrDimensionMismatch{Expected: d, Actual: len(x)}
	}

	return opq.pq.quantize(linalg.MulVec(x, opq.projection, d)), nil
}

// QuantizeBatch rotates and quantizes every row of x.
func (opq *GaussianOPQ) QuantizeBatch(x [][]float32) ([]Code, error) {
	d := opq.pq.dim
	if err := checkRows(x, d); err != nil {
		return nil, err
	}

	// Rows are rotated one by one, so that every row is rotated exactly as
	// in QuantizeVector.
	rotated := make([]float32, len(x)*d)
	for i, row := range x {
		copy(rotated[i*d:(i+1)*d], linalg.MulVec(row, opq.projection, d))
	}

	return opq.pq.quantizeFlat(rotated, len(x)), nil
}

// ReconstructVector reconstructs c and rotates the result back to the input space.
func (opq *GaussianOPQ) ReconstructVector(c Code) ([]float32, error) {
	rx, err := opq.pq.ReconstructVector(c)
	if err != nil {
		return nil, err
	}

	return linalg.MulVecT(rx, opq.projection, opq.pq.dim), nil
}

// ReconstructBatch reconstructs every code of codes.
func (opq *GaussianOPQ) ReconstructBatch(codes []Code) ([][]float32, error) {
	rx, err := opq.pq.reconstructFlat(codes)
	if err != nil {
		return nil, err
	}

	d := opq.pq.dim

	out := make([][]float32, len(codes))
	for i := range out {
		out[i] = linalg.MulVecT(rx[i*d:(i+1)*d], opq.projection, d)
	}

	return out, nil
}

func (opq *GaussianOPQ) String() string {
	return fmt.Sprintf("GaussianOPQ(dim=%d, subquantizers=%d, bits=%d)", opq.pq.dim, opq.pq.Subquantizers(), opq.pq.bits)
}
