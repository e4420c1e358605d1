package records

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when no record has the requested id.
	ErrNotFound = errors.New("record not found")

	// ErrSupplierInUse is returned when deleting a supplier that invoices still reference
	// under the restrict policy.
	ErrSupplierInUse = errors.New("supplier is referenced by invoices")
)

// Kinds of records, used in errors and events.
const (
	KindSupplier = "supplier"
	KindInvoice  = "invoice"
)

// OpError wraps store failures with the operation and record involved.
type OpError struct {
	// Op is the operation that failed (e.g. "save", "delete", "get").
	Op string

	// Kind is KindSupplier or KindInvoice.
	Kind string

	// ID of the record, when known.
	ID string

	Err error
}

// Error implements the error interface.
func (e *OpError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s %s %s: %v", e.Op, e.Kind, e.ID, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Kind, e.Err)
}

// Unwrap returns the underlying error for error unwrapping.
func (e *OpError) Unwrap() error {
	return e.Err
}

// NotFound builds the error returned by Get and Delete for a missing record.
func NotFound(op, kind, id string) error {
	return &OpError{Op: op, Kind: kind, ID: id, Err: ErrNotFound}
}
