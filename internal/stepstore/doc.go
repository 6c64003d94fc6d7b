// Package stepstore implements a step-transactional sequential store for
// scientific arrays.
//
// A store is an ordered sequence of steps. A writer opens a step, puts
// named variables into it and commits the step atomically; a reader walks
// the committed steps in increasing order, one at a time:
//
//	w, _ := st.NewWriter()
//	v, _ := w.DefineVariable("time_derivative", stepstore.Float64, nx, ny, nz)
//	_ = w.BeginStep(ctx)
//	_ = w.Put(v, data)
//	_ = w.EndStep()
//	_ = w.Close()
//
//	r := st.NewReader()
//	for {
//	    status, err := r.BeginStep(ctx)
//	    if err != nil || status == stepstore.EndOfStream {
//	        break
//	    }
//	    _ = r.Get("time_derivative", buf)
//	    _ = r.EndStep()
//	}
//
// # Storage Layout
//
// Steps live in a BadgerDB instance. Variable payloads are written first
// under d/<step>/<name>; the commit record c/<step> is written last, so a
// reader never observes a partially written step. Aborted steps consume
// their index without a commit record, which readers see as a gap in the
// producer step sequence.
//
// # Thread Safety
//
// Readers and writers are NOT thread-safe. A Store may serve one writer and
// any number of readers from the same process.
package stepstore
