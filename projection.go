package vecpq

import (
	"time"

	"github.com/hupe1980/vecpq/internal/linalg"
)

// createProjectionMatrix computes an orthonormal d×d matrix (row-major) that
// rotates the instances such that the variances are balanced over the
// subquantizers, assuming Gaussian distributed data.
//
// The columns are the eigenvectors of the instance covariance matrix, ordered
// by eigenvalue bucket.
func createProjectionMatrix(data []float32, n, d, subquantizers int, o options) ([]float32, error) {
	start := time.Now()

	projection, err := buildProjection(data, n, d, subquantizers)

	o.metricsCollector.RecordProjection(d, time.Since(start), err)
	o.logger.LogProjection(n, d, subquantizers, err)

	return projection, err
}

func buildProjection(data []float32, n, d, subquantizers int) ([]float32, error) {
	cov, err := linalg.Covariance(data, n, d)
	if err != nil {
		return nil, numerical(err)
	}

	eigenvalues, eigenvectors, err := linalg.Eigh(cov)
	if err != nil {
		return nil, numerical(err)
	}

	buckets, err := bucketEigenvalues(eigenvalues, subquantizers)
	if err != nil {
		return nil, err
	}
	if err := validateBuckets(buckets, d); err != nil {
		return nil, err
	}

	projection := make([]float32, d*d)

	col := 0
	for _, bucket := range buckets {
		for _, direction := range bucket {
			for row := 0; row < d; row++ {
				projection[row*d+col] = float32(eigenvectors.At(row, direction))
			}
			col++
		}
	}

	return projection, nil
}
