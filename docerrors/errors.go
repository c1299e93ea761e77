// Package docerrors defines the typed error taxonomy shared by the
// primitive, document, and server packages.
package docerrors

import "fmt"

// ErrSchemaValidation is returned when an operation's kind or payload is
// incompatible with the primitive it targets.
type ErrSchemaValidation struct {
	Message string
}

func (e ErrSchemaValidation) Error() string {
	return fmt.Sprintf("schema validation: %s", e.Message)
}

// ErrRefinementFailure is returned when a user-declared refinement
// predicate rejects a value.
type ErrRefinementFailure struct {
	Path    string
	Message string
}

func (e ErrRefinementFailure) Error() string {
	return fmt.Sprintf("refinement failed at %s: %s", e.Path, e.Message)
}

// ErrTreeInvariant is returned when a tree operation would violate one of
// the single-root / no-cycle / allowed-child-type invariants.
type ErrTreeInvariant struct {
	Message string
}

func (e ErrTreeInvariant) Error() string {
	return fmt.Sprintf("tree invariant violated: %s", e.Message)
}

// ErrUnknownField is returned when a struct operation names a field the
// schema does not declare.
type ErrUnknownField struct {
	Field string
}

func (e ErrUnknownField) Error() string {
	return fmt.Sprintf("unknown field: %s", e.Field)
}

// ErrUnknownID is returned when an array or tree operation references an
// entry id that does not exist in the current state.
type ErrUnknownID struct {
	ID string
}

func (e ErrUnknownID) Error() string {
	return fmt.Sprintf("unknown id: %s", e.ID)
}

// ErrUnknownVariant is returned when a union or either payload does not
// match any declared variant.
type ErrUnknownVariant struct {
	Message string
}

func (e ErrUnknownVariant) Error() string {
	return fmt.Sprintf("unknown variant: %s", e.Message)
}

// ErrDuplicateTransaction is returned when a transaction id has already
// been applied by a ServerDocument.
type ErrDuplicateTransaction struct {
	ID string
}

func (e ErrDuplicateTransaction) Error() string {
	return "Transaction has already been processed"
}

// ErrEmptyTransaction is returned when a transaction carries no operations.
type ErrEmptyTransaction struct{}

func (e ErrEmptyTransaction) Error() string {
	return "Transaction is empty"
}

// ErrStorage wraps a failure from a storage or WAL adapter.
type ErrStorage struct {
	Op      string
	Message string
}

func (e ErrStorage) Error() string {
	return fmt.Sprintf("storage %s failed: %s", e.Op, e.Message)
}

// ErrAuthentication is returned when an auth capability rejects a token.
type ErrAuthentication struct {
	Message string
}

func (e ErrAuthentication) Error() string {
	return fmt.Sprintf("authentication failed: %s", e.Message)
}

// ErrPermissionDenied is returned when a write is attempted with a
// read-only permission.
type ErrPermissionDenied struct{}

func (e ErrPermissionDenied) Error() string {
	return "permission denied"
}

// ErrProtocol is returned for malformed frames or missing routing info.
type ErrProtocol struct {
	Message string
}

func (e ErrProtocol) Error() string {
	return fmt.Sprintf("protocol error: %s", e.Message)
}

// ErrFractionalIndex is returned by the fractionalindex package for
// invalid charsets or invalid key ordering requests.
type ErrFractionalIndex struct {
	Message string
}

func (e ErrFractionalIndex) Error() string {
	return fmt.Sprintf("fractional index: %s", e.Message)
}
