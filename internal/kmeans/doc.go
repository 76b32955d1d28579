// Package kmeans implements k-means clustering for quantizer training.
//
// Used internally by product quantization to learn per-subquantizer codebooks.
// Data and centroids are flattened row-major float32 slices (n * dim).
package kmeans
