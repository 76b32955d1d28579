package vecpq

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidConfiguration is returned when training parameters violate the
	// quantizer invariants (e.g. a subquantizer count that does not divide the
	// dimensionality, or zero bits, iterations or attempts).
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// ErrNumerical is returned when the covariance matrix cannot be decomposed
	// or yields eigenvalues that are significantly negative.
	ErrNumerical = errors.New("numerical error")

	// ErrDimension matches every *ErrDimensionMismatch via errors.Is.
	ErrDimension = errors.New("dimension mismatch")

	// ErrCode matches every *ErrInvalidCode via errors.Is.
	ErrCode = errors.New("invalid code")
)

// ErrDimensionMismatch indicates a vector or code length mismatch.
type ErrDimensionMismatch struct {
	Expected int
	Actual   int
}

func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

func (e *ErrDimensionMismatch) Unwrap() error { return ErrDimension }

// ErrInvalidCode indicates a code entry outside of [0, Centroids).
type ErrInvalidCode struct {
	Subquantizer int
	Code         int
	Centroids    int
}

func (e *ErrInvalidCode) Error() string {
	return fmt.Sprintf("invalid code %d for subquantizer %d: must be in [0, %d)", e.Code, e.Subquantizer, e.Centroids)
}

func (e *ErrInvalidCode) Unwrap() error { return ErrCode }

func invalidConfig(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfiguration, fmt.Sprintf(format, args...))
}

func numerical(err error) error {
	return fmt.Errorf("%w: %w", ErrNumerical, err)
}

// rowError annotates err with the batch row it belongs to.
func rowError(row int, err error) error {
	return fmt.Errorf("row %d: %w", row, err)
}
