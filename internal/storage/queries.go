package storage

import (
	"context"
	"database/sql"
)

type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

type Queries struct {
	db DBTX
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

// Supplier is a row of the suppliers table.
type Supplier struct {
	ID            string
	Name          string
	Address       string
	VatNumber     string
	ContactPerson string
	Email         string
	Phone         string
	PaymentTerms  int64
	CreatedAt     string
	UpdatedAt     string
}

// Invoice is a row of the invoices table. Dates are YYYY-MM-DD, timestamps
// RFC 3339 and attachments a JSON array.
type Invoice struct {
	ID            string
	SupplierID    string
	InvoiceNumber string
	Date          string
	DueDate       string
	SubtotalCents int64
	VatRate       float64
	VatCents      int64
	TotalCents    int64
	Status        string
	Description   string
	Attachments   string
	CreatedAt     string
	UpdatedAt     string
}

const supplierColumns = `id, name, address, vat_number, contact_person, email, phone, payment_terms, created_at, updated_at`

const invoiceColumns = `id, supplier_id, invoice_number, date, due_date, subtotal_cents, vat_rate, vat_cents, total_cents, status, description, attachments, created_at, updated_at`

const listSuppliers = `SELECT ` + supplierColumns + ` FROM suppliers ORDER BY rowid`

func (q *Queries) ListSuppliers(ctx context.Context) ([]Supplier, error) {
	rows, err := q.db.QueryContext(ctx, listSuppliers)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Supplier
	for rows.Next() {
		var i Supplier
		if err := scanSupplier(rows, &i); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const getSupplier = `SELECT ` + supplierColumns + ` FROM suppliers WHERE id = ?`

func (q *Queries) GetSupplier(ctx context.Context, id string) (Supplier, error) {
	row := q.db.QueryRowContext(ctx, getSupplier, id)
	var i Supplier
	err := scanSupplier(row, &i)
	return i, err
}

const upsertSupplier = `INSERT INTO suppliers (` + supplierColumns + `)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    name = excluded.name,
    address = excluded.address,
    vat_number = excluded.vat_number,
    contact_person = excluded.contact_person,
    email = excluded.email,
    phone = excluded.phone,
    payment_terms = excluded.payment_terms,
    created_at = excluded.created_at,
    updated_at = excluded.updated_at`

func (q *Queries) UpsertSupplier(ctx context.Context, arg Supplier) error {
	_, err := q.db.ExecContext(ctx, upsertSupplier,
		arg.ID,
		arg.Name,
		arg.Address,
		arg.VatNumber,
		arg.ContactPerson,
		arg.Email,
		arg.Phone,
		arg.PaymentTerms,
		arg.CreatedAt,
		arg.UpdatedAt,
	)
	return err
}

const deleteSupplier = `DELETE FROM suppliers WHERE id = ?`

func (q *Queries) DeleteSupplier(ctx context.Context, id string) (int64, error) {
	result, err := q.db.ExecContext(ctx, deleteSupplier, id)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const listInvoices = `SELECT ` + invoiceColumns + ` FROM invoices ORDER BY rowid`

func (q *Queries) ListInvoices(ctx context.Context) ([]Invoice, error) {
	return q.queryInvoices(ctx, listInvoices)
}

const listInvoicesBySupplier = `SELECT ` + invoiceColumns + ` FROM invoices WHERE supplier_id = ? ORDER BY rowid`

func (q *Queries) ListInvoicesBySupplier(ctx context.Context, supplierID string) ([]Invoice, error) {
	return q.queryInvoices(ctx, listInvoicesBySupplier, supplierID)
}

const getInvoice = `SELECT ` + invoiceColumns + ` FROM invoices WHERE id = ?`

func (q *Queries) GetInvoice(ctx context.Context, id string) (Invoice, error) {
	row := q.db.QueryRowContext(ctx, getInvoice, id)
	var i Invoice
	err := scanInvoice(row, &i)
	return i, err
}

const upsertInvoice = `INSERT INTO invoices (` + invoiceColumns + `)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    supplier_id = excluded.supplier_id,
    invoice_number = excluded.invoice_number,
    date = excluded.date,
    due_date = excluded.due_date,
    subtotal_cents = excluded.subtotal_cents,
    vat_rate = excluded.vat_rate,
    vat_cents = excluded.vat_cents,
    total_cents = excluded.total_cents,
    status = excluded.status,
    description = excluded.description,
    attachments = excluded.attachments,
    created_at = excluded.created_at,
    updated_at = excluded.updated_at`

func (q *Queries) UpsertInvoice(ctx context.Context, arg Invoice) error {
	_, err := q.db.ExecContext(ctx, upsertInvoice,
		arg.ID,
		arg.SupplierID,
		arg.InvoiceNumber,
		arg.Date,
		arg.DueDate,
		arg.SubtotalCents,
		arg.VatRate,
		arg.VatCents,
		arg.TotalCents,
		arg.Status,
		arg.Description,
		arg.Attachments,
		arg.CreatedAt,
		arg.UpdatedAt,
	)
	return err
}

const deleteInvoice = `DELETE FROM invoices WHERE id = ?`

func (q *Queries) DeleteInvoice(ctx context.Context, id string) (int64, error) {
	result, err := q.db.ExecContext(ctx, deleteInvoice, id)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (q *Queries) queryInvoices(ctx context.Context, query string, args ...interface{}) ([]Invoice, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Invoice
	for rows.Next() {
		var i Invoice
		if err := scanInvoice(rows, &i); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanSupplier(s scanner, i *Supplier) error {
	return s.Scan(
		&i.ID,
		&i.Name,
		&i.Address,
		&i.VatNumber,
		&i.ContactPerson,
		&i.Email,
		&i.Phone,
		&i.PaymentTerms,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
}

func scanInvoice(s scanner, i *Invoice) error {
	return s.Scan(
		&i.ID,
		&i.SupplierID,
		&i.InvoiceNumber,
		&i.Date,
		&i.DueDate,
		&i.SubtotalCents,
		&i.VatRate,
		&i.VatCents,
		&i.TotalCents,
		&i.Status,
		&i.Description,
		&i.Attachments,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
}
