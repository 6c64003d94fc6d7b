// Package pipeline implements the streaming time-derivative step loop.
//
// A Pipeline reads a gapless sequence of steps 0, 1, 2, ... from an input
// store. Every step carries a 3D field and the coordinate axes x, y and z;
// step 0 also supplies the time step deltaT and MaxStep. For each step the
// pipeline writes at most one output transaction:
//
//   - step 0: an all-zero time_derivative together with x, y and z
//   - 2 <= step < MaxStep: time_derivative = (F[step] - F[step-2]) / (2 deltaT),
//     the centered derivative at step-1
//   - step 1 and steps >= MaxStep: nothing
//
// When the input ends, or when the producer step index disagrees with the
// local counter, one final all-zero frame is written and the output is
// closed. A step mismatch is reported in the Summary, not as an error.
package pipeline
