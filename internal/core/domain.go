package core

import (
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"
)

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusPaid     Status = "paid"
	StatusOverdue  Status = "overdue"
)

// UnknownSupplierName is displayed for invoices whose supplier no longer exists.
const UnknownSupplierName = "Unknown Supplier"

type (
	Status string

	Supplier struct {
		ID            string    `json:"id" yaml:"id"`
		Name          string    `json:"name" yaml:"name"`
		Address       string    `json:"address" yaml:"address"`
		VATNumber     string    `json:"vatNumber" yaml:"vatNumber"`
		ContactPerson string    `json:"contactPerson" yaml:"contactPerson"`
		Email         string    `json:"email" yaml:"email"`
		Phone         string    `json:"phone" yaml:"phone"`
		PaymentTerms  int       `json:"paymentTerms" yaml:"paymentTerms"` // days
		CreatedAt     time.Time `json:"createdAt" yaml:"createdAt"`
		UpdatedAt     time.Time `json:"updatedAt" yaml:"updatedAt"`
	}

	Invoice struct {
		ID            string    `json:"id" yaml:"id"`
		SupplierID    string    `json:"supplierId" yaml:"supplierId"`
		InvoiceNumber string    `json:"invoiceNumber" yaml:"invoiceNumber"`
		Date          Date      `json:"date" yaml:"date"`
		DueDate       Date      `json:"dueDate" yaml:"dueDate"`
		Subtotal      Money     `json:"subtotal" yaml:"subtotal"`
		VATRate       Rate      `json:"vatRate" yaml:"vatRate"`
		VATAmount     Money     `json:"vatAmount" yaml:"vatAmount"`
		Total         Money     `json:"total" yaml:"total"`
		Status        Status    `json:"status" yaml:"status"`
		Description   string    `json:"description" yaml:"description"`
		Attachments   []string  `json:"attachments" yaml:"attachments"`
		CreatedAt     time.Time `json:"createdAt" yaml:"createdAt"`
		UpdatedAt     time.Time `json:"updatedAt" yaml:"updatedAt"`
	}
)

var (
	ErrEmptyID            = errors.New("empty id")
	ErrEmptyName          = errors.New("empty supplier name")
	ErrNameTooLong        = errors.New("supplier name too long (max 200 characters)")
	ErrInvalidEmail       = errors.New("invalid email address")
	ErrInvalidTerms       = errors.New("payment terms must be between 0 and 365 days")
	ErrMissingSupplier    = errors.New("missing supplier reference")
	ErrEmptyInvoiceNumber = errors.New("empty invoice number")
	ErrInvalidStatus      = errors.New("invalid invoice status")
	ErrVATMismatch        = errors.New("vat amount does not match subtotal and rate")
	ErrTotalMismatch      = errors.New("total does not equal subtotal plus vat")
	ErrDescriptionTooLong = errors.New("description too long (max 500 characters)")
)

// Statuses lists every valid invoice status.
func Statuses() []Status {
	return []Status{StatusPending, StatusApproved, StatusPaid, StatusOverdue}
}

func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusPaid, StatusOverdue:
		return true
	default:
		return false
	}
}

// ParseStatus accepts a status name in any case.
func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", ErrInvalidStatus
	}
	return st, nil
}

func (s Supplier) Validate() error {
	if strings.TrimSpace(s.ID) == "" {
		return ErrEmptyID
	}
	name := strings.TrimSpace(s.Name)
	if name == "" {
		return ErrEmptyName
	}
	if len(name) > 200 {
		return ErrNameTooLong
	}
	if email := strings.TrimSpace(s.Email); email != "" {
		if _, err := mail.ParseAddress(email); err != nil {
			return ErrInvalidEmail
		}
	}
	if s.PaymentTerms < 0 || s.PaymentTerms > 365 {
		return ErrInvalidTerms
	}
	return nil
}

// Validate checks the invoice shape and the amount invariants
// (VATAmount == Subtotal*VATRate/100 within one cent, Total == Subtotal+VATAmount).
func (inv Invoice) Validate() error {
	if strings.TrimSpace(inv.ID) == "" {
		return ErrEmptyID
	}
	if strings.TrimSpace(inv.SupplierID) == "" {
		return ErrMissingSupplier
	}
	if strings.TrimSpace(inv.InvoiceNumber) == "" {
		return ErrEmptyInvoiceNumber
	}
	if err := inv.Date.Validate(); err != nil {
		return fmt.Errorf("invalid invoice date: %w", err)
	}
	if err := inv.DueDate.Validate(); err != nil {
		return fmt.Errorf("invalid due date: %w", err)
	}
	if err := inv.Subtotal.Validate(); err != nil {
		return err
	}
	if err := inv.VATRate.Validate(); err != nil {
		return err
	}
	if !inv.Status.IsValid() {
		return ErrInvalidStatus
	}
	if len(inv.Description) > 500 {
		return ErrDescriptionTooLong
	}
	expected := ComputeVAT(inv.Subtotal, inv.VATRate)
	if diff := expected.Cents - inv.VATAmount.Cents; diff > 1 || diff < -1 {
		return ErrVATMismatch
	}
	if inv.Total != inv.Subtotal.Add(inv.VATAmount) {
		return ErrTotalMismatch
	}
	return nil
}

// IsOverdue reports whether the invoice is unpaid and its due date lies strictly before now.
func (inv Invoice) IsOverdue(now time.Time) bool {
	return inv.Status != StatusPaid && inv.DueDate.Before(now)
}

// EffectiveStatus returns StatusOverdue for unpaid invoices past their due date,
// otherwise the persisted status.
func (inv Invoice) EffectiveStatus(now time.Time) Status {
	if inv.IsOverdue(now) {
		return StatusOverdue
	}
	return inv.Status
}
