package vecpq

import (
	"errors"
	"math/rand/v2"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/vecpq/testutil"
)

func testVectors() [][]float32 {
	return [][]float32{
		{0, 2, 0, -0.5, 0, 0},
		{1, -0.2, 0, 0.5, 0.5, 0},
		{-0.2, 0.2, 0, 0, -2, 0},
		{1, 0.2, 0, 0, -2, 0},
	}
}

func testQuantizations() []Code {
	return []Code{{1, 1}, {0, 1}, {1, 0}, {0, 0}}
}

func testReconstructions() [][]float32 {
	return [][]float32{
		{0, 1, 0, 0, 1, 0},
		{1, 0, 0, 0, 1, 0},
		{0, 1, 0, 1, -1, 0},
		{1, 0, 0, 1, -1, 0},
	}
}

func testPQ(t *testing.T) *PQ {
	t.Helper()

	pq, err := NewPQ(6, 1, [][]float32{
		{1, 0, 0, 0, 1, 0},
		{1, -1, 0, 0, 1, 0},
	})
	require.NoError(t, err)

	return pq
}

func TestPQ_QuantizeWithPredefinedCodebook(t *testing.T) {
	pq := testPQ(t)

	for i, vector := range testVectors() {
		code, err := pq.QuantizeVector(vector)
		require.NoError(t, err)
		assert.Equal(t, testQuantizations()[i], code)
	}
}

func TestPQ_QuantizeBatchWithPredefinedCodebook(t *testing.T) {
	pq := testPQ(t)

	codes, err := pq.QuantizeBatch(testVectors())
	require.NoError(t, err)
	assert.Equal(t, testQuantizations(), codes)
}

func TestPQ_ReconstructWithPredefinedCodebook(t *testing.T) {
	pq := testPQ(t)

	for i, code := range testQuantizations() {
		reconstruction, err := pq.ReconstructVector(code)
		require.NoError(t, err)
		assert.Equal(t, testReconstructions()[i], reconstruction)
	}
}

func TestPQ_ReconstructBatchWithPredefinedCodebook(t *testing.T) {
	pq := testPQ(t)

	reconstructions, err := pq.ReconstructBatch(testQuantizations())
	require.NoError(t, err)
	assert.Equal(t, testReconstructions(), reconstructions)
}

func TestPQ_Errors(t *testing.T) {
	pq := testPQ(t)

	t.Run("quantize dimension mismatch", func(t *testing.T) {
		_, err := pq.QuantizeVector([]float32{1, 2, 3})
		var dm *ErrDimensionMismatch
		require.ErrorAs(t, err, &dm)
		assert.Equal(t, 6, dm.Expected)
		assert.Equal(t, 3, dm.Actual)
		assert.ErrorIs(t, err, ErrDimension)
	})

	t.Run("quantize batch dimension mismatch", func(t *testing.T) {
		rows := testVectors()
		rows[2] = rows[2][:5]
		codes, err := pq.QuantizeBatch(rows)
		assert.ErrorIs(t, err, ErrDimension)
		assert.Contains(t, err.Error(), "row 2")
		assert.Nil(t, codes)
	})

	t.Run("code length mismatch", func(t *testing.T) {
		_, err := pq.ReconstructVector(Code{1})
		assert.ErrorIs(t, err, ErrDimension)
	})

	t.Run("code out of range", func(t *testing.T) {
		_, err := pq.ReconstructVector(Code{0, 2})
		var ic *ErrInvalidCode
		require.ErrorAs(t, err, &ic)
		assert.Equal(t, 1, ic.Subquantizer)
		assert.Equal(t, 2, ic.Code)
		assert.Equal(t, 2, ic.Centroids)
		assert.ErrorIs(t, err, ErrCode)
	})

	t.Run("negative code", func(t *testing.T) {
		_, err := pq.ReconstructVector(Code{-1, 0})
		assert.ErrorIs(t, err, ErrCode)
	})

	t.Run("reconstruct batch invalid code", func(t *testing.T) {
		out, err := pq.ReconstructBatch([]Code{{0, 0}, {0, 7}})
		assert.ErrorIs(t, err, ErrCode)
		assert.Nil(t, out)
	})

	// Failed calls leave the model usable.
	code, err := pq.QuantizeVector(testVectors()[0])
	require.NoError(t, err)
	assert.Equal(t, testQuantizations()[0], code)
}

func TestPQ_EmptyBatch(t *testing.T) {
	pq := testPQ(t)

	codes, err := pq.QuantizeBatch(nil)
	require.NoError(t, err)
	assert.Empty(t, codes)

	out, err := pq.ReconstructBatch(nil)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestNewPQ(t *testing.T) {
	pq := testPQ(t)

	assert.Equal(t, 6, pq.Dim())
	assert.Equal(t, 2, pq.Subquantizers())
	assert.Equal(t, 1, pq.Bits())
	assert.Equal(t, 2, pq.Centroids())
	assert.Equal(t, 1, pq.CodeSize())
	assert.InDelta(t, 24.0, pq.CompressionRatio(), 1e-9)
	assert.Equal(t, "PQ(dim=6, subquantizers=2, bits=1)", pq.String())

	codebooks := pq.Codebooks()
	require.Len(t, codebooks, 2)
	assert.Equal(t, 2, codebooks[1].Len())
	assert.Equal(t, 3, codebooks[1].Dim())
	assert.Equal(t, []float32{1, -1, 0}, codebooks[1].Centroid(0))
	assert.Equal(t, []float32{1, -1, 0, 0, 1, 0}, codebooks[1].Centroids())

	// Codebooks are copied on construction.
	input := []float32{1, 0, 0, 0, 1, 0}
	copied, err := NewPQ(3, 1, [][]float32{input})
	require.NoError(t, err)
	input[0] = 42
	assert.Equal(t, float32(1), copied.Codebooks()[0].Centroid(0)[0])

	tests := []struct {
		name      string
		dim, bits int
		codebooks [][]float32
	}{
		{"zero dimension", 0, 1, [][]float32{{}}},
		{"no codebooks", 6, 1, nil},
		{"not dividing", 6, 1, [][]float32{{0, 0, 0, 0}, {0, 0, 0, 0}, {0, 0, 0, 0}, {0, 0, 0, 0}}},
		{"zero bits", 2, 0, [][]float32{{0, 0}}},
		{"too many bits", 2, MaxBits + 1, [][]float32{{0, 0}}},
		{"wrong codebook size", 2, 1, [][]float32{{0, 0, 0}}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewPQ(tc.dim, tc.bits, tc.codebooks)
			assert.ErrorIs(t, err, ErrInvalidConfiguration)
		})
	}
}

func TestTrainPQ(t *testing.T) {
	const (
		dim           = 16
		subquantizers = 4
		bits          = 4
	)

	rng := testutil.NewRNG(42)
	instances := rng.UniformVectors(512, dim)

	pq, err := TrainPQUsing(subquantizers, bits, 10, 2, instances, rng.Source())
	require.NoError(t, err)

	assert.Equal(t, dim, pq.Dim())
	assert.Equal(t, subquantizers, pq.Subquantizers())
	assert.Equal(t, 1<<bits, pq.Centroids())

	for _, cb := range pq.Codebooks() {
		assert.Equal(t, 1<<bits, cb.Len())
		assert.Equal(t, dim/subquantizers, cb.Dim())
	}

	assertQuantizerProperties(t, pq, instances)

	// Quantization must be clearly better than reconstructing the mean.
	codes, err := pq.QuantizeBatch(instances)
	require.NoError(t, err)
	reconstructions, err := pq.ReconstructBatch(codes)
	require.NoError(t, err)

	baseline := testutil.AverageEuclideanDistance(instances, meanVectors(instances))
	assert.Less(t, testutil.AverageEuclideanDistance(instances, reconstructions), 0.8*baseline)
}

func TestTrainPQ_SelfSeeded(t *testing.T) {
	instances := testutil.NewRNG(1).UniformVectors(64, 8)

	pq, err := TrainPQ(2, 3, 5, 1, instances)
	require.NoError(t, err)
	assertQuantizerProperties(t, pq, instances)
}

func TestTrainPQ_Deterministic(t *testing.T) {
	rng := testutil.NewRNG(7)
	instances := rng.UniformVectors(300, 12)

	sequential, err := TrainPQUsing(6, 5, 8, 3, instances, rng.Source(), WithParallelism(1))
	require.NoError(t, err)

	parallel, err := TrainPQUsing(6, 5, 8, 3, instances, rng.Source(), WithParallelism(6))
	require.NoError(t, err)

	require.Equal(t, sequential.Subquantizers(), parallel.Subquantizers())
	for m, cb := range sequential.Codebooks() {
		assert.Equal(t, cb.Centroids(), parallel.Codebooks()[m].Centroids(), "subquantizer %d", m)
	}
}

func TestTrainPQ_InvalidConfiguration(t *testing.T) {
	instances := testutil.NewRNG(3).UniformVectors(32, 6)

	tests := []struct {
		name                                   string
		subquantizers, bits, iterations, tries int
		instances                              [][]float32
	}{
		{"zero subquantizers", 0, 2, 1, 1, instances},
		{"too many subquantizers", 7, 2, 1, 1, instances},
		{"not dividing", 4, 2, 1, 1, instances},
		{"zero bits", 3, 0, 1, 1, instances},
		{"negative bits", 3, -1, 1, 1, instances},
		{"too many bits", 3, MaxBits + 1, 1, 1, instances},
		{"zero iterations", 3, 2, 0, 1, instances},
		{"zero attempts", 3, 2, 1, 0, instances},
		{"too few instances", 3, 6, 1, 1, instances},
		{"no instances", 3, 2, 1, 1, nil},
		{"zero dimensions", 1, 1, 1, 1, [][]float32{{}, {}}},
		{"ragged rows", 3, 1, 1, 1, append(slices.Clone(instances), []float32{1, 2})},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rng := testutil.NewRNG(3).Source()

			pq, err := TrainPQUsing(tc.subquantizers, tc.bits, tc.iterations, tc.tries, tc.instances, rng)
			assert.ErrorIs(t, err, ErrInvalidConfiguration)
			assert.Nil(t, pq)

			// Invariants are checked before anything is drawn from rng.
			assert.Equal(t, testutil.NewRNG(3).Source().Uint64(), rng.Uint64())
		})
	}

	t.Run("ragged rows report the row", func(t *testing.T) {
		_, err := TrainPQUsing(3, 1, 1, 1, append(slices.Clone(instances), []float32{1, 2}), testutil.NewRNG(3).Source())
		assert.ErrorIs(t, err, ErrDimension)
		assert.Contains(t, err.Error(), "row 32")
	})

	t.Run("nil random source", func(t *testing.T) {
		_, err := TrainPQUsing(3, 2, 1, 1, instances, nil)
		assert.ErrorIs(t, err, ErrInvalidConfiguration)
	})
}

// scriptedSelector returns predefined initial centroids in call order.
type scriptedSelector struct {
	sets  [][]float32
	calls int
}

func (s *scriptedSelector) SelectCentroids(_ []float32, _, _ int, _ *rand.Rand) ([]float32, error) {
	c := slices.Clone(s.sets[s.calls])
	s.calls++
	return c, nil
}

func TestTrainPQ_KeepsLowestLossAttempt(t *testing.T) {
	instances := [][]float32{{0}, {0}, {10}, {10}}

	selector := &scriptedSelector{sets: [][]float32{
		{20, 30}, // collapses into one cluster, loss 100
		{0, 5},   // converges to {0, 10}, loss 0
		{10, 0},  // converges to {10, 0}, loss 0, later attempt
	}}

	pq, err := TrainPQUsing(1, 1, 1, 3, instances, testutil.NewRNG(1).Source(), WithCentroidSelector(selector))
	require.NoError(t, err)
	assert.Equal(t, 3, selector.calls)

	assert.Equal(t, []float32{0, 10}, pq.Codebooks()[0].Centroids())
}

type failingSelector struct{}

var errSelect = errors.New("select failed")

func (failingSelector) SelectCentroids([]float32, int, int, *rand.Rand) ([]float32, error) {
	return nil, errSelect
}

type shortSelector struct{}

func (shortSelector) SelectCentroids([]float32, int, int, *rand.Rand) ([]float32, error) {
	return []float32{1}, nil
}

func TestTrainPQ_SelectorErrors(t *testing.T) {
	instances := testutil.NewRNG(3).UniformVectors(32, 6)

	pq, err := TrainPQUsing(3, 2, 1, 1, instances, testutil.NewRNG(3).Source(), WithCentroidSelector(failingSelector{}))
	assert.ErrorIs(t, err, errSelect)
	assert.Nil(t, pq)

	pq, err = TrainPQUsing(3, 2, 1, 1, instances, testutil.NewRNG(3).Source(), WithCentroidSelector(shortSelector{}))
	assert.Error(t, err)
	assert.Nil(t, pq)
}

// assertQuantizerProperties checks the properties every trained quantizer
// must satisfy on the given instances.
func assertQuantizerProperties(t *testing.T, q interface {
	Quantizer
	Dim() int
	Subquantizers() int
	Centroids() int
}, instances [][]float32) {
	t.Helper()

	codes, err := q.QuantizeBatch(instances)
	require.NoError(t, err)
	require.Len(t, codes, len(instances))

	reconstructions, err := q.ReconstructBatch(codes)
	require.NoError(t, err)
	require.Len(t, reconstructions, len(codes))

	for i, instance := range instances {
		code, err := q.QuantizeVector(instance)
		require.NoError(t, err)

		// Batch and single vector quantization agree.
		require.Equal(t, codes[i], code)

		require.Len(t, code, q.Subquantizers())
		for _, c := range code {
			require.GreaterOrEqual(t, c, 0)
			require.Less(t, c, q.Centroids())
		}

		reconstruction, err := q.ReconstructVector(code)
		require.NoError(t, err)
		require.Len(t, reconstruction, q.Dim())
		require.Equal(t, reconstructions[i], reconstruction)

		// Centroids are fixed points of their own assignment.
		requantized, err := q.QuantizeVector(reconstruction)
		require.NoError(t, err)
		require.Equal(t, code, requantized)
	}
}

// meanVectors returns len(instances) copies of the mean instance.
func meanVectors(instances [][]float32) [][]float32 {
	mean := make([]float32, len(instances[0]))
	for _, instance := range instances {
		for j, v := range instance {
			mean[j] += v
		}
	}
	for j := range mean {
		mean[j] /= float32(len(instances))
	}

	out := make([][]float32, len(instances))
	for i := range out {
		out[i] = mean
	}
	return out
}
