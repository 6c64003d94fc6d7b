// Package field provides the numerical core of the time-derivative pipeline.
//
// A field snapshot is a flattened 3D array of float64 values stored in
// row-major order (x slowest, z fastest). The package defines:
//
//   - [Shape]: the fixed (lenx, leny, lenz) extent of a snapshot
//   - [Ring]: a three-slot rolling buffer holding F[t-1], F[t] and F[t+1]
//   - [CenteredDifference]: the second-order centered time derivative
//
// # Example
//
//	ring := field.NewRing(shape.Size())
//	// read F[t+1] into ring.Plus() ...
//	err := field.CenteredDifference(out, ring.Plus(), ring.Minus(), dt)
//	ring.Shift()
//
// # Thread Safety
//
// Ring instances are NOT thread-safe. Each pipeline owns its own ring.
package field
