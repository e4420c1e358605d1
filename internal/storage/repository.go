package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"bally/internal/core"
	"bally/internal/records"

	_ "modernc.org/sqlite"
)

type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
}

var (
	_ records.Store          = (*SQLiteRepository)(nil)
	_ records.CascadeDeleter = (*SQLiteRepository)(nil)
)

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	// Run migrations
	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{
		db:      db,
		queries: New(db),
	}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping checks the database connection, used by readiness probes.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLiteRepository) ListSuppliers(ctx context.Context) ([]core.Supplier, error) {
	rows, err := r.queries.ListSuppliers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list suppliers: %w", err)
	}
	out := make([]core.Supplier, 0, len(rows))
	for _, row := range rows {
		out = append(out, supplierFromRow(row))
	}
	return out, nil
}

func (r *SQLiteRepository) GetSupplier(ctx context.Context, id string) (core.Supplier, error) {
	row, err := r.queries.GetSupplier(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Supplier{}, records.NotFound("get", records.KindSupplier, id)
	}
	if err != nil {
		return core.Supplier{}, &records.OpError{Op: "get", Kind: records.KindSupplier, ID: id, Err: err}
	}
	return supplierFromRow(row), nil
}

func (r *SQLiteRepository) ListInvoices(ctx context.Context) ([]core.Invoice, error) {
	rows, err := r.queries.ListInvoices(ctx)
	if err != nil {
		return nil, fmt.Errorf("list invoices: %w", err)
	}
	return invoicesFromRows(rows)
}

func (r *SQLiteRepository) GetInvoice(ctx context.Context, id string) (core.Invoice, error) {
	row, err := r.queries.GetInvoice(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Invoice{}, records.NotFound("get", records.KindInvoice, id)
	}
	if err != nil {
		return core.Invoice{}, &records.OpError{Op: "get", Kind: records.KindInvoice, ID: id, Err: err}
	}
	inv, err := invoiceFromRow(row)
	if err != nil {
		return core.Invoice{}, &records.OpError{Op: "get", Kind: records.KindInvoice, ID: id, Err: err}
	}
	return inv, nil
}

func (r *SQLiteRepository) InvoicesBySupplier(ctx context.Context, supplierID string) ([]core.Invoice, error) {
	rows, err := r.queries.ListInvoicesBySupplier(ctx, supplierID)
	if err != nil {
		return nil, fmt.Errorf("list invoices for supplier %s: %w", supplierID, err)
	}
	return invoicesFromRows(rows)
}

func (r *SQLiteRepository) SaveSupplier(ctx context.Context, s core.Supplier) error {
	if err := s.Validate(); err != nil {
		return &records.OpError{Op: "save", Kind: records.KindSupplier, ID: s.ID, Err: err}
	}
	if err := r.queries.UpsertSupplier(ctx, supplierToRow(s)); err != nil {
		return &records.OpError{Op: "save", Kind: records.KindSupplier, ID: s.ID, Err: err}
	}
	slog.DebugContext(ctx, "Supplier saved to SQLite", "id", s.ID, "name", s.Name)
	return nil
}

func (r *SQLiteRepository) SaveInvoice(ctx context.Context, inv core.Invoice) error {
	if err := inv.Validate(); err != nil {
		return &records.OpError{Op: "save", Kind: records.KindInvoice, ID: inv.ID, Err: err}
	}
	row, err := invoiceToRow(inv)
	if err != nil {
		return &records.OpError{Op: "save", Kind: records.KindInvoice, ID: inv.ID, Err: err}
	}
	if err := r.queries.UpsertInvoice(ctx, row); err != nil {
		return &records.OpError{Op: "save", Kind: records.KindInvoice, ID: inv.ID, Err: err}
	}
	slog.DebugContext(ctx, "Invoice saved to SQLite",
		"id", inv.ID,
		"supplier_id", inv.SupplierID,
		"total_cents", inv.Total.Cents)
	return nil
}

func (r *SQLiteRepository) DeleteSupplier(ctx context.Context, id string) error {
	n, err := r.queries.DeleteSupplier(ctx, id)
	if err != nil {
		return &records.OpError{Op: "delete", Kind: records.KindSupplier, ID: id, Err: err}
	}
	if n == 0 {
		return records.NotFound("delete", records.KindSupplier, id)
	}
	return nil
}

func (r *SQLiteRepository) DeleteInvoice(ctx context.Context, id string) error {
	n, err := r.queries.DeleteInvoice(ctx, id)
	if err != nil {
		return &records.OpError{Op: "delete", Kind: records.KindInvoice, ID: id, Err: err}
	}
	if n == 0 {
		return records.NotFound("delete", records.KindInvoice, id)
	}
	return nil
}

// DeleteSupplierCascade removes the supplier and its invoices in one transaction.
func (r *SQLiteRepository) DeleteSupplierCascade(ctx context.Context, id string) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	q := r.queries.WithTx(tx)
	invoices, err := q.ListInvoicesBySupplier(ctx, id)
	if err != nil {
		return 0, &records.OpError{Op: "delete", Kind: records.KindSupplier, ID: id, Err: err}
	}
	for _, inv := range invoices {
		if _, err := q.DeleteInvoice(ctx, inv.ID); err != nil {
			return 0, &records.OpError{Op: "delete", Kind: records.KindInvoice, ID: inv.ID, Err: err}
		}
	}
	n, err := q.DeleteSupplier(ctx, id)
	if err != nil {
		return 0, &records.OpError{Op: "delete", Kind: records.KindSupplier, ID: id, Err: err}
	}
	if n == 0 {
		return 0, records.NotFound("delete", records.KindSupplier, id)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return len(invoices), nil
}

func supplierToRow(s core.Supplier) Supplier {
	return Supplier{
		ID:            s.ID,
		Name:          s.Name,
		Address:       s.Address,
		VatNumber:     s.VATNumber,
		ContactPerson: s.ContactPerson,
		Email:         s.Email,
		Phone:         s.Phone,
		PaymentTerms:  int64(s.PaymentTerms),
		CreatedAt:     formatTimestamp(s.CreatedAt),
		UpdatedAt:     formatTimestamp(s.UpdatedAt),
	}
}

func supplierFromRow(row Supplier) core.Supplier {
	return core.Supplier{
		ID:            row.ID,
		Name:          row.Name,
		Address:       row.Address,
		VATNumber:     row.VatNumber,
		ContactPerson: row.ContactPerson,
		Email:         row.Email,
		Phone:         row.Phone,
		PaymentTerms:  int(row.PaymentTerms),
		CreatedAt:     parseTimestamp(row.CreatedAt),
		UpdatedAt:     parseTimestamp(row.UpdatedAt),
	}
}

func invoiceToRow(inv core.Invoice) (Invoice, error) {
	attachments := inv.Attachments
	if attachments == nil {
		attachments = []string{}
	}
	encoded, err := json.Marshal(attachments)
	if err != nil {
		return Invoice{}, fmt.Errorf("encode attachments: %w", err)
	}
	return Invoice{
		ID:            inv.ID,
		SupplierID:    inv.SupplierID,
		InvoiceNumber: inv.InvoiceNumber,
		Date:          inv.Date.String(),
		DueDate:       inv.DueDate.String(),
		SubtotalCents: inv.Subtotal.Cents,
		VatRate:       float64(inv.VATRate),
		VatCents:      inv.VATAmount.Cents,
		TotalCents:    inv.Total.Cents,
		Status:        string(inv.Status),
		Description:   inv.Description,
		Attachments:   string(encoded),
		CreatedAt:     formatTimestamp(inv.CreatedAt),
		UpdatedAt:     formatTimestamp(inv.UpdatedAt),
	}, nil
}

func invoiceFromRow(row Invoice) (core.Invoice, error) {
	date, err := core.ParseDate(row.Date)
	if err != nil {
		return core.Invoice{}, fmt.Errorf("invoice date %q: %w", row.Date, err)
	}
	due, err := core.ParseDate(row.DueDate)
	if err != nil {
		return core.Invoice{}, fmt.Errorf("due date %q: %w", row.DueDate, err)
	}
	var attachments []string
	if row.Attachments != "" {
		if err := json.Unmarshal([]byte(row.Attachments), &attachments); err != nil {
			return core.Invoice{}, fmt.Errorf("decode attachments: %w", err)
		}
	}
	if len(attachments) == 0 {
		attachments = nil
	}
	return core.Invoice{
		ID:            row.ID,
		SupplierID:    row.SupplierID,
		InvoiceNumber: row.InvoiceNumber,
		Date:          date,
		DueDate:       due,
		Subtotal:      core.Cents(row.SubtotalCents),
		VATRate:       core.Rate(row.VatRate),
		VATAmount:     core.Cents(row.VatCents),
		Total:         core.Cents(row.TotalCents),
		Status:        core.Status(row.Status),
		Description:   row.Description,
		Attachments:   attachments,
		CreatedAt:     parseTimestamp(row.CreatedAt),
		UpdatedAt:     parseTimestamp(row.UpdatedAt),
	}, nil
}

func invoicesFromRows(rows []Invoice) ([]core.Invoice, error) {
	out := make([]core.Invoice, 0, len(rows))
	for _, row := range rows {
		inv, err := invoiceFromRow(row)
		if err != nil {
			return nil, fmt.Errorf("invoice %s: %w", row.ID, err)
		}
		out = append(out, inv)
	}
	return out, nil
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTimestamp(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
