// Package linalg provides the covariance, symmetric eigendecomposition and
// float32 matrix products needed to build quantizer rotations.
//
// Matrices are row-major float32 slices unless noted otherwise; the
// decompositions run in float64 through gonum.
package linalg
