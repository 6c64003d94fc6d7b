package stepstore

import "errors"

var (
	// ErrNoActiveStep indicates a get, put or end-step outside BeginStep/EndStep.
	ErrNoActiveStep = errors.New("stepstore: no active step")

	// ErrStepInProgress indicates BeginStep or Close while a step is open.
	ErrStepInProgress = errors.New("stepstore: step already in progress")

	// ErrVariableNotFound indicates a variable that is absent from the current step
	// or was never defined on the writer.
	ErrVariableNotFound = errors.New("stepstore: variable not found")

	// ErrAlreadyDefined indicates a second DefineVariable for the same name.
	ErrAlreadyDefined = errors.New("stepstore: variable already defined")

	// ErrShapeMismatch indicates data whose element count differs from the variable extent.
	ErrShapeMismatch = errors.New("stepstore: data does not match variable shape")

	// ErrInvalidShape indicates a variable defined with a non-positive extent.
	ErrInvalidShape = errors.New("stepstore: invalid variable shape")

	// ErrKindMismatch indicates a typed access to a variable of another kind.
	ErrKindMismatch = errors.New("stepstore: variable kind mismatch")

	// ErrCorruptRecord indicates a stored payload that cannot be decoded.
	ErrCorruptRecord = errors.New("stepstore: corrupt record")

	// ErrClosed indicates use of a closed reader, writer or store.
	ErrClosed = errors.New("stepstore: closed")

	// ErrWriterActive indicates a second writer on a store that already has one.
	ErrWriterActive = errors.New("stepstore: store already has an active writer")

	// ErrNoManifest indicates a store that was never opened for writing.
	ErrNoManifest = errors.New("stepstore: no manifest")

	// ErrUnknownCompression indicates an unsupported engine compression name.
	ErrUnknownCompression = errors.New("stepstore: unknown compression")
)
