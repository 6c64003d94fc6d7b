package stepstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var _ Writer = (*StoreWriter)(nil)

// StoreWriter appends steps to a Store.
type StoreWriter struct {
	store    *Store
	vars     map[string]Variable
	pending  map[string][]byte
	step     int
	inStep   bool
	closed   bool
	manifest Manifest
}

func newWriter(s *Store) *StoreWriter {
	return &StoreWriter{
		store:   s,
		vars:    make(map[string]Variable),
		pending: make(map[string][]byte),
		manifest: Manifest{
			RunID:      uuid.NewString(),
			CreatedAt:  time.Now().UTC(),
			Attributes: make(map[string]string),
		},
	}
}

// SetAttribute records a dataset-level attribute in the manifest.
func (w *StoreWriter) SetAttribute(key, value string) {
	w.manifest.Attributes[key] = value
}

func (w *StoreWriter) Manifest() Manifest { return w.manifest }

func (w *StoreWriter) DefineVariable(name string, kind Kind, shape ...int) (Variable, error) {
	if w.closed {
		return Variable{}, ErrClosed
	}
	if _, ok := w.vars[name]; ok {
		return Variable{}, fmt.Errorf("%w: %s", ErrAlreadyDefined, name)
	}
	if kind != Float64 && kind != Int64 {
		return Variable{}, fmt.Errorf("%w: %s has %s", ErrKindMismatch, name, kind)
	}
	for i, d := range shape {
		if d <= 0 {
			return Variable{}, fmt.Errorf("%w: %s dim %d = %d", ErrInvalidShape, name, i, d)
		}
	}
	v := Variable{Name: name, Kind: kind, Shape: append([]int(nil), shape...)}
	w.vars[name] = v
	return v, nil
}

func (w *StoreWriter) BeginStep(ctx context.Context) error {
	if w.closed {
		return ErrClosed
	}
	if w.inStep {
		return ErrStepInProgress
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	w.inStep = true
	return nil
}

func (w *StoreWriter) check(v Variable, kind Kind, n int) error {
	if w.closed {
		return ErrClosed
	}
	if !w.inStep {
		return ErrNoActiveStep
	}
	def, ok := w.vars[v.Name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrVariableNotFound, v.Name)
	}
	if !def.sameLayout(v) {
		return fmt.Errorf("%w: %s was defined as %s%v", ErrShapeMismatch, v.Name, def.Kind, def.Shape)
	}
	if def.Kind != kind {
		return fmt.Errorf("%w: %s is %s", ErrKindMismatch, v.Name, def.Kind)
	}
	if n != def.Len() {
		return fmt.Errorf("%w: %s expects %d elements, got %d", ErrShapeMismatch, v.Name, def.Len(), n)
	}
	return nil
}

// Put copies data into the open step.
func (w *StoreWriter) Put(v Variable, data []float64) error {
	if err := w.check(v, Float64, len(data)); err != nil {
		return err
	}
	w.pending[v.Name] = encodeFloat64s(v, data)
	return nil
}

func (w *StoreWriter) PutFloat64(v Variable, x float64) error {
	if !v.IsScalar() {
		return fmt.Errorf("%w: %s is not a scalar", ErrShapeMismatch, v.Name)
	}
	return w.Put(v, []float64{x})
}

func (w *StoreWriter) PutInt64(v Variable, n int64) error {
	if !v.IsScalar() {
		return fmt.Errorf("%w: %s is not a scalar", ErrShapeMismatch, v.Name)
	}
	if err := w.check(v, Int64, 1); err != nil {
		return err
	}
	w.pending[v.Name] = encodeInt64(v, n)
	return nil
}

// EndStep writes the payloads of the step and then its commit record.
func (w *StoreWriter) EndStep() error {
	if w.closed {
		return ErrClosed
	}
	if !w.inStep {
		return ErrNoActiveStep
	}
	db := w.store.db

	names := make([]string, 0, len(w.pending))
	for name := range w.pending {
		names = append(names, name)
	}
	sort.Strings(names)

	wb := db.NewWriteBatch()
	defer wb.Cancel()
	for _, name := range names {
		if err := wb.Set(dataKey(w.step, name), w.pending[name]); err != nil {
			return fmt.Errorf("write step %d variable %s: %w", w.step, name, err)
		}
	}
	if err := wb.Flush(); err != nil {
		return fmt.Errorf("flush step %d: %w", w.step, err)
	}

	rec := commitRecord{Step: w.step, CommittedAt: time.Now().UTC()}
	for _, name := range names {
		rec.Variables = append(rec.Variables, w.vars[name])
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	if err := db.Update(func(txn *badger.Txn) error {
		return txn.Set(commitKey(w.step), raw)
	}); err != nil {
		return fmt.Errorf("commit step %d: %w", w.step, err)
	}

	w.store.logger.Debug("step committed", zap.Int("step", w.step), zap.Int("variables", len(names)))
	w.manifest.StepsCommitted++
	w.finishStep()
	return nil
}

func (w *StoreWriter) AbortStep() error {
	if w.closed {
		return ErrClosed
	}
	if !w.inStep {
		return ErrNoActiveStep
	}
	w.store.logger.Debug("step aborted", zap.Int("step", w.step))
	w.manifest.StepsAborted++
	w.finishStep()
	return nil
}

func (w *StoreWriter) finishStep() {
	clear(w.pending)
	w.inStep = false
	w.step++
}

// Close finalizes the manifest. The Store itself stays open.
func (w *StoreWriter) Close() error {
	if w.closed {
		return nil
	}
	if w.inStep {
		return ErrStepInProgress
	}
	now := time.Now().UTC()
	w.manifest.ClosedAt = &now
	if err := w.saveManifest(); err != nil {
		return err
	}
	w.closed = true
	w.store.releaseWriter()
	return nil
}

func (w *StoreWriter) saveManifest() error {
	raw, err := json.Marshal(w.manifest)
	if err != nil {
		return err
	}
	if err := w.store.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(manifestKey), raw)
	}); err != nil {
		return fmt.Errorf("save manifest: %w", err)
	}
	return nil
}
