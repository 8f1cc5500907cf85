package tensor

import "fmt"

// Shape is the row/column extent of a 2D tensor.
type Shape struct {
	Rows int
	Cols int
}

// NumElements returns Rows*Cols.
func (s Shape) NumElements() int {
	return s.Rows * s.Cols
}

// Validate checks that both extents are strictly positive.
func (s Shape) Validate() error {
	if s.Rows <= 0 {
		return fmt.Errorf("invalid row count %d (must be > 0)", s.Rows)
	}
	if s.Cols <= 0 {
		return fmt.Errorf("invalid column count %d (must be > 0)", s.Cols)
	}
	return nil
}

// Equal reports whether two shapes have the same extents.
func (s Shape) Equal(other Shape) bool {
	return s.Rows == other.Rows && s.Cols == other.Cols
}

// String returns the shape as [rows, cols].
func (s Shape) String() string {
	return fmt.Sprintf("[%d, %d]", s.Rows, s.Cols)
}
