// Package math32 provides float32 vector kernels used by the quantizers.
// This is an internal package.
package math32

// SquaredL2 calculates the squared L2 distance.
//
// Assumes len(a) == len(b).
func SquaredL2(a, b []float32) float32 {
	var s0, s1, s2, s3 float32

	n := len(a)
	b = b[:n]

	i := 0
	for ; i+4 <= n; i += 4 {
		d0 := a[i] - b[i]
		d1 := a[i+1] - b[i+1]
		d2 := a[i+2] - b[i+2]
		d3 := a[i+3] - b[i+3]
		s0 += d0 * d0
		s1 += d1 * d1
		s2 += d2 * d2
		s3 += d3 * d3
	}

	for ; i < n; i++ {
		d := a[i] - b[i]
		s0 += d * d
	}

	return (s0 + s1) + (s2 + s3)
}

// AddInPlace adds b to a element-wise.
func AddInPlace(a, b []float32) {
	b = b[:len(a)]
	for i := range a {
		a[i] += b[i]
	}
}

// ScaleInPlace multiplies all elements of a by scalar.
func ScaleInPlace(a []float32, scalar float32) {
	for i := range a {
		a[i] *= scalar
	}
}
