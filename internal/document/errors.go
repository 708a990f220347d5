package document

import "errors"

var (
	// ErrNotFound indicates the requested document does not exist or is not
	// visible to the requesting owner.
	ErrNotFound = errors.New("document not found")

	// ErrAlreadyProcessing indicates a pipeline run was triggered on a
	// document that is already being processed. The trigger is rejected, not
	// queued: two concurrent runs on the same document would race on the
	// chunk rows.
	ErrAlreadyProcessing = errors.New("document is already processing")

	// ErrDimensionMismatch indicates an embedding whose dimensionality does
	// not match the chunk store's vector column. Vectors from an incompatible
	// embedding space must never be compared or stored silently.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrScopeViolation indicates a search result outside the requested
	// scope. This is an internal invariant breach, a programming defect,
	// never user-triggerable.
	ErrScopeViolation = errors.New("retrieval scope violation")
)
