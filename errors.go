package quarry

import (
	"errors"
	"fmt"
)

// Standard sentinel errors for the persistence core.
var (
	// ErrUsage is returned when a caller or mapping misconfiguration is
	// detected (wrong arity, unsupported relationship shape, position-based
	// operation on a non-indexed list, inconsistent owner).
	ErrUsage = errors.New("quarry: usage error")

	// ErrDatastore is returned when a statement fails at the database.
	ErrDatastore = errors.New("quarry: datastore error")

	// ErrUnsupported is returned for operations the engine does not support,
	// either permanently (SQL cannot express them) or not yet.
	ErrUnsupported = errors.New("quarry: unsupported operation")
)

// UsageError reports misuse of the API or inconsistent relationship
// metadata. It is surfaced immediately and never retried.
type UsageError struct {
	Op     string // Operation being performed (e.g. "list.removeAt", "map.get")
	Member string // Qualified field name, when known
	Reason string
}

// Error returns the error string.
func (e *UsageError) Error() string {
	if e.Member != "" {
		return fmt.Sprintf("quarry: %s on %q: %s", e.Op, e.Member, e.Reason)
	}
	return fmt.Sprintf("quarry: %s: %s", e.Op, e.Reason)
}

// Is reports whether the target error matches ErrUsage.
func (e *UsageError) Is(err error) bool {
	return err == ErrUsage
}

// NewUsageError returns a new UsageError.
func NewUsageError(op, member, reason string) *UsageError {
	return &UsageError{Op: op, Member: member, Reason: reason}
}

// IsUsage returns true if the error is a UsageError.
func IsUsage(err error) bool {
	if err == nil {
		return false
	}
	var e *UsageError
	return errors.As(err, &e) || errors.Is(err, ErrUsage)
}

// ArityError reports a method invocation with the wrong number of arguments.
// It is raised before any SQL is synthesized.
type ArityError struct {
	Method   string // Method name (e.g. "get")
	Receiver string // Receiver expression kind (e.g. "MapExpr")
	Want     int
	Got      int
}

// Error returns the error string.
func (e *ArityError) Error() string {
	return fmt.Sprintf("quarry: %s.%s expects %d argument(s), got %d", e.Receiver, e.Method, e.Want, e.Got)
}

// Is reports whether the target error matches ErrUsage. Arity errors are a
// usage-error subclass.
func (e *ArityError) Is(err error) bool {
	return err == ErrUsage
}

// NewArityError returns a new ArityError.
func NewArityError(method, receiver string, want, got int) *ArityError {
	return &ArityError{Method: method, Receiver: receiver, Want: want, Got: got}
}

// DatastoreError wraps a database-level failure together with the SQL text
// that failed, so callers can diagnose without re-deriving the statement.
type DatastoreError struct {
	SQL string // The rendered statement that failed
	Err error  // The driver error
}

// Error returns the error string.
func (e *DatastoreError) Error() string {
	return fmt.Sprintf("quarry: statement failed: %v (sql: %s)", e.Err, e.SQL)
}

// Unwrap returns the underlying driver error.
func (e *DatastoreError) Unwrap() error {
	return e.Err
}

// Is reports whether the target error matches ErrDatastore.
func (e *DatastoreError) Is(err error) bool {
	return err == ErrDatastore
}

// NewDatastoreError returns a new DatastoreError for the given statement.
func NewDatastoreError(sqlText string, err error) *DatastoreError {
	return &DatastoreError{SQL: sqlText, Err: err}
}

// IsDatastore returns true if the error is a DatastoreError.
func IsDatastore(err error) bool {
	if err == nil {
		return false
	}
	var e *DatastoreError
	return errors.As(err, &e) || errors.Is(err, ErrDatastore)
}

// UnsupportedError distinguishes operations the engine will never support
// (Permanent, e.g. indexing a literal map with a column expression) from
// operations that are simply not implemented yet (e.g. binding unbound
// query variables in map.get).
type UnsupportedError struct {
	Op        string // Operation (e.g. "map.get", "KEY(map)")
	Expr      string // Receiver/argument description
	Permanent bool
}

// Error returns the error string.
func (e *UnsupportedError) Error() string {
	if e.Permanent {
		return fmt.Sprintf("quarry: %s is not supported for %s", e.Op, e.Expr)
	}
	return fmt.Sprintf("quarry: %s is not yet supported for %s", e.Op, e.Expr)
}

// Is reports whether the target error matches ErrUnsupported.
func (e *UnsupportedError) Is(err error) bool {
	return err == ErrUnsupported
}

// NewUnsupportedError returns an UnsupportedError for a construct SQL
// cannot express.
func NewUnsupportedError(op, expr string) *UnsupportedError {
	return &UnsupportedError{Op: op, Expr: expr, Permanent: true}
}

// NewNotYetSupportedError returns an UnsupportedError for a construct that
// could be supported but is not implemented.
func NewNotYetSupportedError(op, expr string) *UnsupportedError {
	return &UnsupportedError{Op: op, Expr: expr, Permanent: false}
}

// IsUnsupported returns true if the error is an UnsupportedError.
func IsUnsupported(err error) bool {
	if err == nil {
		return false
	}
	var e *UnsupportedError
	return errors.As(err, &e) || errors.Is(err, ErrUnsupported)
}

// InconsistentOwnerError reports that an element being written into a
// relationship already references a different owner.
type InconsistentOwnerError struct {
	Member  string // Qualified field name of the relationship
	Element string // Printable element identity
	Owner   string // Owner being written
	Current string // Owner currently referenced by the element
}

// Error returns the error string.
func (e *InconsistentOwnerError) Error() string {
	return fmt.Sprintf("quarry: element %s of %q already references owner %s, cannot assign to %s",
		e.Element, e.Member, e.Current, e.Owner)
}

// Is reports whether the target error matches ErrUsage.
func (e *InconsistentOwnerError) Is(err error) bool {
	return err == ErrUsage
}

// IsInconsistentOwner returns true if the error is an InconsistentOwnerError.
func IsInconsistentOwner(err error) bool {
	if err == nil {
		return false
	}
	var e *InconsistentOwnerError
	return errors.As(err, &e)
}
