// Package records defines the record store ports: the only way the rest of
// the application reaches suppliers and invoices.
package records

import (
	"context"

	"bally/internal/core"
)

// Ports for outbound adapters.
type (
	SupplierReader interface {
		ListSuppliers(ctx context.Context) ([]core.Supplier, error)
		GetSupplier(ctx context.Context, id string) (core.Supplier, error)
	}

	InvoiceReader interface {
		ListInvoices(ctx context.Context) ([]core.Invoice, error)
		GetInvoice(ctx context.Context, id string) (core.Invoice, error)
		// InvoicesBySupplier returns the invoices referencing supplierID, in store order.
		InvoicesBySupplier(ctx context.Context, supplierID string) ([]core.Invoice, error)
	}

	// Writer persists records. Save is an upsert keyed by ID; records are
	// validated before they are stored.
	Writer interface {
		SaveSupplier(ctx context.Context, s core.Supplier) error
		SaveInvoice(ctx context.Context, inv core.Invoice) error
		DeleteSupplier(ctx context.Context, id string) error
		DeleteInvoice(ctx context.Context, id string) error
	}

	// CascadeDeleter is implemented by stores that can remove a supplier
	// together with its invoices in one step. It returns the number of
	// invoices removed.
	CascadeDeleter interface {
		DeleteSupplierCascade(ctx context.Context, id string) (int, error)
	}

	// Store is the full record store used by the services.
	Store interface {
		SupplierReader
		InvoiceReader
		Writer
		Close() error
	}
)
