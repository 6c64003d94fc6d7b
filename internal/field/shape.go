package field

import (
	"errors"
	"fmt"
)

var (
	// ErrNotThreeDimensional indicates a variable whose rank is not 3.
	ErrNotThreeDimensional = errors.New("field: variable is not three-dimensional")

	// ErrEmptyExtent indicates a dimension with zero or negative length.
	ErrEmptyExtent = errors.New("field: dimension extent must be positive")

	// ErrLengthMismatch indicates buffers of different element counts.
	ErrLengthMismatch = errors.New("field: buffer length mismatch")
)

// Shape is the extent of a 3D field snapshot.
type Shape [3]int

// ShapeOf converts a variable shape into a Shape.
func ShapeOf(dims []int) (Shape, error) {
	if len(dims) != 3 {
		return Shape{}, fmt.Errorf("%w: rank %d", ErrNotThreeDimensional, len(dims))
	}
	var s Shape
	for i, d := range dims {
		if d <= 0 {
			return Shape{}, fmt.Errorf("%w: dim %d = %d", ErrEmptyExtent, i, d)
		}
		s[i] = d
	}
	return s, nil
}

func (s Shape) Size() int { return s[0] * s[1] * s[2] }

func (s Shape) Dims() []int { return []int{s[0], s[1], s[2]} }

func (s Shape) String() string {
	return fmt.Sprintf("%dx%dx%d", s[0], s[1], s[2])
}

// Index returns the flat offset of (i, j, k).
func (s Shape) Index(i, j, k int) int {
	return (i*s[1]+j)*s[2] + k
}
