package linalg

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

var (
	// ErrTooFewInstances is returned when a covariance matrix is requested for fewer than two instances.
	ErrTooFewInstances = errors.New("linalg: covariance requires at least two instances")

	// ErrNotFinite is returned when a matrix contains NaN or infinite values.
	ErrNotFinite = errors.New("linalg: matrix contains non-finite values")

	// ErrFactorization is returned when the eigendecomposition does not converge.
	ErrFactorization = errors.New("linalg: eigendecomposition failed")
)

// Covariance computes the d×d sample covariance matrix of n instances stored
// row-major in data.
func Covariance(data []float32, n, d int) (*mat.SymDense, error) {
	if n < 2 {
		return nil, ErrTooFewInstances
	}

	x := mat.NewDense(n, d, nil)
	for i := 0; i < n; i++ {
		row := x.RawRowView(i)
		for j, v := range data[i*d : (i+1)*d] {
			row[j] = float64(v)
		}
	}

	var cov mat.SymDense
	stat.CovarianceMatrix(&cov, x, nil)

	for i := 0; i < d; i++ {
		for j := i; j < d; j++ {
			v := cov.At(i, j)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, ErrNotFinite
			}
		}
	}

	return &cov, nil
}

// Eigh computes the eigendecomposition of the symmetric matrix a. Column i of
// vectors is the orthonormal eigenvector belonging to values[i]. No order is
// guaranteed.
func Eigh(a *mat.SymDense) ([]float64, *mat.Dense, error) {
	var eig mat.EigenSym
	if ok := eig.Factorize(a, true); !ok {
		return nil, nil, ErrFactorization
	}

	values := eig.Values(nil)
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, nil, ErrNotFinite
		}
	}

	var vectors mat.Dense
	eig.VectorsTo(&vectors)

	return values, &vectors, nil
}

// MulVec returns x·m, where x has length dim and m is dim×dim.
func MulVec(x []float32, m []float32, dim int) []float32 {
	return mulVec(blas.Trans, x, m, dim)
}

// MulVecT returns x·mᵗ, where x has length dim and m is dim×dim.
func MulVecT(x []float32, m []float32, dim int) []float32 {
	return mulVec(blas.NoTrans, x, m, dim)
}

func mulVec(t blas.Transpose, x []float32, m []float32, dim int) []float32 {
	y := make([]float32, dim)
	if dim == 0 {
		return y
	}

	blas32.Gemv(t, 1, general(m, dim, dim),
		blas32.Vector{N: dim, Inc: 1, Data: x},
		0, blas32.Vector{N: dim, Inc: 1, Data: y})

	return y
}

// Mul returns x·m, where x is rows×dim and m is dim×dim.
func Mul(x []float32, rows int, m []float32, dim int) []float32 {
	y := make([]float32, rows*dim)
	if rows == 0 || dim == 0 {
		return y
	}

	blas32.Gemm(blas.NoTrans, blas.NoTrans, 1, general(x, rows, dim), general(m, dim, dim), 0, general(y, rows, dim))

	return y
}

// OrthonormalityError returns the largest absolute entry of m·mᵗ - I for
// the dim×dim matrix m.
func OrthonormalityError(m []float32, dim int) float64 {
	if dim == 0 {
		return 0
	}

	p := make([]float32, dim*dim)
	blas32.Gemm(blas.NoTrans, blas.Trans, 1, general(m, dim, dim), general(m, dim, dim), 0, general(p, dim, dim))

	var worst float64
	for i := 0; i < dim; i++ {
		for j := 0; j < dim; j++ {
			v := float64(p[i*dim+j])
			if i == j {
				v -= 1
			}
			worst = math.Max(worst, math.Abs(v))
		}
	}

	return worst
}

func general(data []float32, rows, cols int) blas32.General {
	return blas32.General{Rows: rows, Cols: cols, Stride: cols, Data: data}
}
