package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"bally/internal/amqp"
	"bally/internal/core"
	"bally/internal/records"
)

// DeletePolicy decides what happens to a supplier's invoices when the
// supplier is deleted.
type DeletePolicy string

const (
	// DeleteRestrict refuses to delete a supplier that still has invoices.
	DeleteRestrict DeletePolicy = "restrict"
	// DeleteCascade deletes the supplier's invoices with it.
	DeleteCascade DeletePolicy = "cascade"
	// DeleteOrphan keeps the invoices; they render as core.UnknownSupplierName.
	DeleteOrphan DeletePolicy = "orphan"
)

var (
	ErrInvalidDeletePolicy = errors.New("invalid supplier delete policy")
	ErrUnknownSupplier     = errors.New("invoice references unknown supplier")
)

func ParseDeletePolicy(s string) (DeletePolicy, error) {
	switch p := DeletePolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case DeleteRestrict, DeleteCascade, DeleteOrphan:
		return p, nil
	case "":
		return DeleteRestrict, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidDeletePolicy, s)
	}
}

// EventPublisher is satisfied by *amqp.Client.
type EventPublisher interface {
	Publish(ctx context.Context, event *amqp.RecordEvent) error
}

// Invalidator drops derived data after a write. *ReportService implements it.
type Invalidator interface {
	Invalidate()
}

type SupplierInput struct {
	Name          string `json:"name"`
	Address       string `json:"address"`
	VATNumber     string `json:"vatNumber"`
	ContactPerson string `json:"contactPerson"`
	Email         string `json:"email"`
	Phone         string `json:"phone"`
	PaymentTerms  int    `json:"paymentTerms"`
}

// InvoiceInput carries the user-editable invoice fields. VAT and total are
// always computed from Subtotal and VATRate. A zero DueDate defaults to Date
// plus the supplier's payment terms; an empty Status means pending.
type InvoiceInput struct {
	SupplierID    string      `json:"supplierId"`
	InvoiceNumber string      `json:"invoiceNumber"`
	Date          core.Date   `json:"date"`
	DueDate       core.Date   `json:"dueDate"`
	Subtotal      core.Money  `json:"subtotal"`
	VATRate       core.Rate   `json:"vatRate"`
	Status        core.Status `json:"status"`
	Description   string      `json:"description"`
	Attachments   []string    `json:"attachments"`
}

// InvoiceFilter narrows ListInvoices. Status matches the effective status,
// so "overdue" includes unpaid invoices past their due date.
type InvoiceFilter struct {
	SupplierID string
	Status     core.Status
}

// RecordService owns every write to suppliers and invoices.
type RecordService struct {
	store       records.Store
	policy      DeletePolicy
	publisher   EventPublisher
	invalidator Invalidator
	now         func() time.Time
	newID       func() string
}

type RecordOption func(*RecordService)

func WithDeletePolicy(p DeletePolicy) RecordOption {
	return func(s *RecordService) { s.policy = p }
}

func WithPublisher(p EventPublisher) RecordOption {
	return func(s *RecordService) { s.publisher = p }
}

func WithInvalidator(i Invalidator) RecordOption {
	return func(s *RecordService) { s.invalidator = i }
}

func WithRecordClock(now func() time.Time) RecordOption {
	return func(s *RecordService) { s.now = now }
}

func WithIDGenerator(newID func() string) RecordOption {
	return func(s *RecordService) { s.newID = newID }
}

func NewRecordService(store records.Store, opts ...RecordOption) *RecordService {
	s := &RecordService{
		store:  store,
		policy: DeleteRestrict,
		now:    time.Now,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RecordService) Policy() DeletePolicy {
	return s.policy
}

func (s *RecordService) ListSuppliers(ctx context.Context) ([]core.Supplier, error) {
	return s.store.ListSuppliers(ctx)
}

func (s *RecordService) GetSupplier(ctx context.Context, id string) (core.Supplier, error) {
	return s.store.GetSupplier(ctx, id)
}

func (s *RecordService) CreateSupplier(ctx context.Context, in SupplierInput) (core.Supplier, error) {
	now := s.now().UTC()
	sup := in.apply(core.Supplier{ID: s.newID(), CreatedAt: now})
	sup.UpdatedAt = now

	if err := s.store.SaveSupplier(ctx, sup); err != nil {
		return core.Supplier{}, err
	}
	s.afterChange(ctx, amqp.NewRecordEvent(records.KindSupplier, sup.ID, amqp.EventCreated))
	return sup, nil
}

func (s *RecordService) UpdateSupplier(ctx context.Context, id string, in SupplierInput) (core.Supplier, error) {
	existing, err := s.store.GetSupplier(ctx, id)
	if err != nil {
		return core.Supplier{}, err
	}
	sup := in.apply(existing)
	sup.UpdatedAt = s.now().UTC()

	if err := s.store.SaveSupplier(ctx, sup); err != nil {
		return core.Supplier{}, err
	}
	s.afterChange(ctx, amqp.NewRecordEvent(records.KindSupplier, sup.ID, amqp.EventUpdated))
	return sup, nil
}

// DeleteSupplier removes a supplier according to the service's DeletePolicy.
func (s *RecordService) DeleteSupplier(ctx context.Context, id string) error {
	if _, err := s.store.GetSupplier(ctx, id); err != nil {
		return err
	}
	invoices, err := s.store.InvoicesBySupplier(ctx, id)
	if err != nil {
		return fmt.Errorf("load supplier invoices: %w", err)
	}

	switch s.policy {
	case DeleteCascade:
		if err := s.cascade(ctx, id, invoices); err != nil {
			return err
		}
		for _, inv := range invoices {
			s.afterChange(ctx, invoiceEvent(inv, amqp.EventDeleted))
		}
	case DeleteOrphan:
		if err := s.store.DeleteSupplier(ctx, id); err != nil {
			return err
		}
		if len(invoices) > 0 {
			slog.InfoContext(ctx, "Supplier deleted, invoices kept without supplier",
				"supplier_id", id, "count", len(invoices))
		}
	default:
		if len(invoices) > 0 {
			return &records.OpError{Op: "delete", Kind: records.KindSupplier, ID: id, Err: records.ErrSupplierInUse}
		}
		if err := s.store.DeleteSupplier(ctx, id); err != nil {
			return err
		}
	}

	s.afterChange(ctx, amqp.NewRecordEvent(records.KindSupplier, id, amqp.EventDeleted))
	return nil
}

func (s *RecordService) cascade(ctx context.Context, id string, invoices []core.Invoice) error {
	if cd, ok := s.store.(records.CascadeDeleter); ok {
		n, err := cd.DeleteSupplierCascade(ctx, id)
		if err != nil {
			return err
		}
		slog.InfoContext(ctx, "Supplier deleted with its invoices", "supplier_id", id, "count", n)
		return nil
	}
	for _, inv := range invoices {
		if err := s.store.DeleteInvoice(ctx, inv.ID); err != nil && !errors.Is(err, records.ErrNotFound) {
			return err
		}
	}
	return s.store.DeleteSupplier(ctx, id)
}

// ListInvoices returns the invoices matching f, in store order.
func (s *RecordService) ListInvoices(ctx context.Context, f InvoiceFilter) ([]core.Invoice, error) {
	var (
		invoices []core.Invoice
		err      error
	)
	if f.SupplierID != "" {
		invoices, err = s.store.InvoicesBySupplier(ctx, f.SupplierID)
	} else {
		invoices, err = s.store.ListInvoices(ctx)
	}
	if err != nil {
		return nil, err
	}
	if f.Status == "" {
		return invoices, nil
	}
	now := s.now()
	return slices.DeleteFunc(invoices, func(inv core.Invoice) bool {
		return inv.EffectiveStatus(now) != f.Status
	}), nil
}

func (s *RecordService) GetInvoice(ctx context.Context, id string) (core.Invoice, error) {
	return s.store.GetInvoice(ctx, id)
}

func (s *RecordService) CreateInvoice(ctx context.Context, in InvoiceInput) (core.Invoice, error) {
	sup, err := s.supplierFor(ctx, in.SupplierID)
	if err != nil {
		return core.Invoice{}, err
	}
	now := s.now().UTC()
	inv := in.apply(core.Invoice{ID: s.newID(), CreatedAt: now}, sup)
	inv.UpdatedAt = now

	if err := s.store.SaveInvoice(ctx, inv); err != nil {
		return core.Invoice{}, err
	}
	s.afterChange(ctx, invoiceEvent(inv, amqp.EventCreated))
	return inv, nil
}

func (s *RecordService) UpdateInvoice(ctx context.Context, id string, in InvoiceInput) (core.Invoice, error) {
	existing, err := s.store.GetInvoice(ctx, id)
	if err != nil {
		return core.Invoice{}, err
	}

	var sup core.Supplier
	if in.SupplierID != existing.SupplierID || in.DueDate.IsZero() {
		// Orphaned invoices stay editable as long as the supplier is unchanged
		// and the due date is given.
		if sup, err = s.supplierFor(ctx, in.SupplierID); err != nil {
			return core.Invoice{}, err
		}
	}
	inv := in.apply(existing, sup)
	inv.UpdatedAt = s.now().UTC()

	if err := s.store.SaveInvoice(ctx, inv); err != nil {
		return core.Invoice{}, err
	}
	event := invoiceEvent(inv, amqp.EventUpdated)
	event.PreviousDate = existing.Date
	s.afterChange(ctx, event)
	return inv, nil
}

// SetInvoiceStatus changes only the status of an invoice.
func (s *RecordService) SetInvoiceStatus(ctx context.Context, id string, status core.Status) (core.Invoice, error) {
	if !status.IsValid() {
		return core.Invoice{}, &records.OpError{Op: "update", Kind: records.KindInvoice, ID: id, Err: core.ErrInvalidStatus}
	}
	inv, err := s.store.GetInvoice(ctx, id)
	if err != nil {
		return core.Invoice{}, err
	}
	inv.Status = status
	inv.UpdatedAt = s.now().UTC()

	if err := s.store.SaveInvoice(ctx, inv); err != nil {
		return core.Invoice{}, err
	}
	s.afterChange(ctx, invoiceEvent(inv, amqp.EventUpdated))
	return inv, nil
}

func (s *RecordService) DeleteInvoice(ctx context.Context, id string) error {
	inv, err := s.store.GetInvoice(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.DeleteInvoice(ctx, id); err != nil {
		return err
	}
	s.afterChange(ctx, invoiceEvent(inv, amqp.EventDeleted))
	return nil
}

func (s *RecordService) supplierFor(ctx context.Context, id string) (core.Supplier, error) {
	if strings.TrimSpace(id) == "" {
		return core.Supplier{}, &records.OpError{Op: "save", Kind: records.KindInvoice, Err: core.ErrMissingSupplier}
	}
	sup, err := s.store.GetSupplier(ctx, id)
	if errors.Is(err, records.ErrNotFound) {
		return core.Supplier{}, fmt.Errorf("%w: %s", ErrUnknownSupplier, id)
	}
	return sup, err
}

// afterChange runs the best-effort follow-ups of a successful write. The
// write itself is never undone when they fail.
func (s *RecordService) afterChange(ctx context.Context, event *amqp.RecordEvent) {
	if s.invalidator != nil {
		s.invalidator.Invalidate()
	}
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		slog.ErrorContext(ctx, "Failed to publish record event",
			"kind", event.Kind,
			"id", event.ID,
			"type", event.Type,
			"error", err)
	}
}

func invoiceEvent(inv core.Invoice, typ amqp.EventType) *amqp.RecordEvent {
	e := amqp.NewRecordEvent(records.KindInvoice, inv.ID, typ)
	e.InvoiceDate = inv.Date
	return e
}

func (in SupplierInput) apply(s core.Supplier) core.Supplier {
	s.Name = strings.TrimSpace(in.Name)
	s.Address = strings.TrimSpace(in.Address)
	s.VATNumber = strings.TrimSpace(in.VATNumber)
	s.ContactPerson = strings.TrimSpace(in.ContactPerson)
	s.Email = strings.TrimSpace(in.Email)
	s.Phone = strings.TrimSpace(in.Phone)
	s.PaymentTerms = in.PaymentTerms
	return s
}

// apply copies the input onto inv and derives VAT, total, due date and
// status. sup is only consulted for the due date default.
func (in InvoiceInput) apply(inv core.Invoice, sup core.Supplier) core.Invoice {
	inv.SupplierID = strings.TrimSpace(in.SupplierID)
	inv.InvoiceNumber = strings.TrimSpace(in.InvoiceNumber)
	inv.Date = in.Date
	inv.DueDate = in.DueDate
	if inv.DueDate.IsZero() && !inv.Date.IsZero() {
		inv.DueDate = inv.Date.AddDays(sup.PaymentTerms)
	}
	inv.Subtotal = in.Subtotal
	inv.VATRate = in.VATRate
	inv.VATAmount = core.ComputeVAT(in.Subtotal, in.VATRate)
	inv.Total = in.Subtotal.Add(inv.VATAmount)
	inv.Status = in.Status
	if inv.Status == "" {
		inv.Status = core.StatusPending
	}
	inv.Description = strings.TrimSpace(in.Description)
	inv.Attachments = slices.Clone(in.Attachments)
	return inv
}
