package stepstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
)

var _ Reader = (*StoreReader)(nil)

// StoreReader walks the committed steps of a Store.
type StoreReader struct {
	store   *Store
	next    int
	current int
	vars    map[string]Variable
	inStep  bool
	closed  bool
}

// BeginStep opens the next committed step. Gaps left by aborted steps are
// skipped; CurrentStep reports the producer index of the step opened.
func (r *StoreReader) BeginStep(ctx context.Context) (StepStatus, error) {
	if r.closed {
		return EndOfStream, ErrClosed
	}
	if r.inStep {
		return StepOK, ErrStepInProgress
	}
	if err := ctx.Err(); err != nil {
		return EndOfStream, err
	}

	var (
		rec   commitRecord
		found bool
	)
	err := r.store.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(commitPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		it.Seek(commitKey(r.next))
		if !it.ValidForPrefix(opts.Prefix) {
			return nil
		}
		found = true
		return it.Item().Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
	})
	if err != nil {
		return EndOfStream, fmt.Errorf("begin step after %d: %w", r.next-1, err)
	}
	if !found {
		return EndOfStream, nil
	}

	r.vars = make(map[string]Variable, len(rec.Variables))
	for _, v := range rec.Variables {
		r.vars[v.Name] = v
	}
	r.current = rec.Step
	r.next = rec.Step + 1
	r.inStep = true
	return StepOK, nil
}

func (r *StoreReader) CurrentStep() int { return r.current }

func (r *StoreReader) InquireVariable(name string) (Variable, bool) {
	if !r.inStep {
		return Variable{}, false
	}
	v, ok := r.vars[name]
	return v, ok
}

func (r *StoreReader) load(name string) (Variable, record, error) {
	if r.closed {
		return Variable{}, record{}, ErrClosed
	}
	if !r.inStep {
		return Variable{}, record{}, ErrNoActiveStep
	}
	v, ok := r.vars[name]
	if !ok {
		return Variable{}, record{}, fmt.Errorf("%w: %s at step %d", ErrVariableNotFound, name, r.current)
	}
	var raw []byte
	err := r.store.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(dataKey(r.current, name))
		if err != nil {
			return err
		}
		raw, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return Variable{}, record{}, fmt.Errorf("%w: %s payload missing at step %d", ErrCorruptRecord, name, r.current)
	}
	if err != nil {
		return Variable{}, record{}, fmt.Errorf("read %s at step %d: %w", name, r.current, err)
	}
	rec, err := decodeRecord(raw)
	if err != nil {
		return Variable{}, record{}, fmt.Errorf("decode %s at step %d: %w", name, r.current, err)
	}
	return v, rec, nil
}

func (r *StoreReader) Get(name string, dst []float64) error {
	v, rec, err := r.load(name)
	if err != nil {
		return err
	}
	if v.Kind != Float64 {
		return fmt.Errorf("%w: %s is %s", ErrKindMismatch, name, v.Kind)
	}
	if len(dst) != v.Len() {
		return fmt.Errorf("%w: %s has %d elements, dst %d", ErrShapeMismatch, name, v.Len(), len(dst))
	}
	return rec.asFloat64s(dst)
}

func (r *StoreReader) GetFloat64(name string) (float64, error) {
	var x [1]float64
	v, rec, err := r.load(name)
	if err != nil {
		return 0, err
	}
	if !v.IsScalar() {
		return 0, fmt.Errorf("%w: %s is not a scalar", ErrShapeMismatch, name)
	}
	if err := rec.asFloat64s(x[:]); err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	return x[0], nil
}

func (r *StoreReader) GetInt64(name string) (int64, error) {
	v, rec, err := r.load(name)
	if err != nil {
		return 0, err
	}
	if !v.IsScalar() {
		return 0, fmt.Errorf("%w: %s is not a scalar", ErrShapeMismatch, name)
	}
	n, err := rec.asInt64()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	return n, nil
}

func (r *StoreReader) EndStep() error {
	if r.closed {
		return ErrClosed
	}
	if !r.inStep {
		return ErrNoActiveStep
	}
	r.inStep = false
	r.vars = nil
	return nil
}

// Close releases the reader. An open step is dropped.
func (r *StoreReader) Close() error {
	r.closed = true
	r.inStep = false
	r.vars = nil
	return nil
}

// Manifest returns the dataset manifest written by the producer.
func (r *StoreReader) Manifest() (Manifest, error) {
	var m Manifest
	err := r.store.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(manifestKey))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &m)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return Manifest{}, ErrNoManifest
	}
	if err != nil {
		return Manifest{}, fmt.Errorf("read manifest: %w", err)
	}
	return m, nil
}
