// Package testutil provides testing utilities for vecpq.
//
// This package is intended for use in tests, examples and benchmarks only.
// It provides seeded helpers for generating training vectors and for
// measuring reconstruction quality.
//
// # Random Vector Generation
//
//	rng := testutil.NewRNG(seed)
//	vectors := rng.UniformVectors(256, 20)       // uniform [0, 1)
//	skewed := rng.ScaledGaussianVectors(256, scales)
//
// # Reproducible Training
//
//	pq, _ := vecpq.TrainPQUsing(4, 4, 10, 1, vectors, rng.Source())
package testutil
