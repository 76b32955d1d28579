// Package vecpq provides product quantization (PQ) and optimized product
// quantization for Gaussian data (OPQ) for float32 vectors.
//
// A product quantizer splits a d-dimensional vector into m equal slices and
// replaces every slice by the index of its nearest centroid in a per-slice
// codebook of 2^bits centroids, trained with k-means. A vector is thereby
// compressed to m small integers.
//
// # Quick Start
//
//	pq, _ := vecpq.TrainPQ(8, 8, 20, 3, vectors)   // 8 subquantizers, 256 centroids
//	code, _ := pq.QuantizeVector(vectors[0])
//	approx, _ := pq.ReconstructVector(code)
//
// # Optimized Product Quantization
//
// GaussianOPQ rotates the input space before quantizing. The rotation is
// built from the eigenvectors of the covariance matrix of the training data,
// grouped such that every subquantizer receives a similar share of the
// variance:
//
//	opq, _ := vecpq.TrainGaussianOPQ(8, 8, 20, 3, vectors)
//	codes, _ := opq.QuantizeBatch(vectors)
//	approx, _ := opq.ReconstructBatch(codes)
//
// # Reproducibility
//
// TrainPQ and TrainGaussianOPQ seed their own random source. The Using
// variants take a *rand.Rand; for a seeded source the trained model is
// identical for every degree of parallelism:
//
//	rng := rand.New(rand.NewPCG(42, 1024))
//	pq, _ := vecpq.TrainPQUsing(8, 8, 20, 3, vectors, rng, vecpq.WithParallelism(4))
//
// # Persistence
//
// Trained models expose their codebooks and projection, so they can be
// stored externally and restored with NewPQ and NewGaussianOPQ.
//
// # Observability
//
// Training reports through a MetricsCollector (see BasicMetricsCollector)
// and a structured Logger (see NewJSONLogger).
//
// # Concurrency
//
// Trained quantizers are immutable and safe for concurrent use.
package vecpq
