package memory

import (
	"context"
	"fmt"
	"os"
	"slices"
	"sync"

	"gopkg.in/yaml.v3"

	"bally/internal/core"
	"bally/internal/records"
)

// Seed is the YAML layout accepted by NewFromFile.
type Seed struct {
	Suppliers []core.Supplier `yaml:"suppliers"`
	Invoices  []core.Invoice  `yaml:"invoices"`
}

// Store keeps records in insertion order. Readers get copies.
type Store struct {
	mu        sync.Mutex
	suppliers []core.Supplier
	invoices  []core.Invoice
}

var (
	_ records.Store          = (*Store)(nil)
	_ records.CascadeDeleter = (*Store)(nil)
)

func New() *Store {
	return &Store{}
}

// NewFromFile seeds the store from a YAML file. A missing file yields an
// empty store; invalid records are rejected.
func NewFromFile(path string) (*Store, error) {
	s := New()
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	seed, err := ParseSeed(data)
	if err != nil {
		return nil, err
	}
	if err := s.Load(seed); err != nil {
		return nil, err
	}
	return s, nil
}

// ParseSeed decodes a YAML seed document.
func ParseSeed(data []byte) (Seed, error) {
	var seed Seed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return Seed{}, fmt.Errorf("parse seed: %w", err)
	}
	return seed, nil
}

// Load validates and stores every record of the seed.
func (s *Store) Load(seed Seed) error {
	ctx := context.Background()
	for _, sup := range seed.Suppliers {
		if err := s.SaveSupplier(ctx, sup); err != nil {
			return err
		}
	}
	for _, inv := range seed.Invoices {
		if err := s.SaveInvoice(ctx, inv); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) ListSuppliers(_ context.Context) ([]core.Supplier, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.suppliers), nil
}

func (s *Store) GetSupplier(_ context.Context, id string) (core.Supplier, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.supplierIndex(id)
	if i < 0 {
		return core.Supplier{}, records.NotFound("get", records.KindSupplier, id)
	}
	return s.suppliers[i], nil
}

func (s *Store) ListInvoices(_ context.Context) ([]core.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Invoice, len(s.invoices))
	for i, inv := range s.invoices {
		out[i] = cloneInvoice(inv)
	}
	return out, nil
}

func (s *Store) GetInvoice(_ context.Context, id string) (core.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.invoiceIndex(id)
	if i < 0 {
		return core.Invoice{}, records.NotFound("get", records.KindInvoice, id)
	}
	return cloneInvoice(s.invoices[i]), nil
}

func (s *Store) InvoicesBySupplier(_ context.Context, supplierID string) ([]core.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Invoice
	for _, inv := range s.invoices {
		if inv.SupplierID == supplierID {
			out = append(out, cloneInvoice(inv))
		}
	}
	return out, nil
}

// SaveSupplier inserts or replaces the supplier with the same ID.
func (s *Store) SaveSupplier(_ context.Context, sup core.Supplier) error {
	if err := sup.Validate(); err != nil {
		return &records.OpError{Op: "save", Kind: records.KindSupplier, ID: sup.ID, Err: err}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.supplierIndex(sup.ID); i >= 0 {
		s.suppliers[i] = sup
		return nil
	}
	s.suppliers = append(s.suppliers, sup)
	return nil
}

// SaveInvoice inserts or replaces the invoice with the same ID.
func (s *Store) SaveInvoice(_ context.Context, inv core.Invoice) error {
	if err := inv.Validate(); err != nil {
		return &records.OpError{Op: "save", Kind: records.KindInvoice, ID: inv.ID, Err: err}
	}
	inv = cloneInvoice(inv)
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.invoiceIndex(inv.ID); i >= 0 {
		s.invoices[i] = inv
		return nil
	}
	s.invoices = append(s.invoices, inv)
	return nil
}

func (s *Store) DeleteSupplier(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.supplierIndex(id)
	if i < 0 {
		return records.NotFound("delete", records.KindSupplier, id)
	}
	s.suppliers = slices.Delete(s.suppliers, i, i+1)
	return nil
}

func (s *Store) DeleteInvoice(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.invoiceIndex(id)
	if i < 0 {
		return records.NotFound("delete", records.KindInvoice, id)
	}
	s.invoices = slices.Delete(s.invoices, i, i+1)
	return nil
}

// DeleteSupplierCascade removes the supplier and every invoice referencing it.
func (s *Store) DeleteSupplierCascade(_ context.Context, id string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.supplierIndex(id)
	if i < 0 {
		return 0, records.NotFound("delete", records.KindSupplier, id)
	}
	s.suppliers = slices.Delete(s.suppliers, i, i+1)
	before := len(s.invoices)
	s.invoices = slices.DeleteFunc(s.invoices, func(inv core.Invoice) bool { return inv.SupplierID == id })
	return before - len(s.invoices), nil
}

// Snapshot returns the current contents as a Seed, e.g. for writing a seed file.
func (s *Store) Snapshot() Seed {
	s.mu.Lock()
	defer s.mu.Unlock()
	seed := Seed{Suppliers: slices.Clone(s.suppliers)}
	for _, inv := range s.invoices {
		seed.Invoices = append(seed.Invoices, cloneInvoice(inv))
	}
	return seed
}

func (s *Store) Close() error { return nil }

func (s *Store) supplierIndex(id string) int {
	return slices.IndexFunc(s.suppliers, func(sup core.Supplier) bool { return sup.ID == id })
}

func (s *Store) invoiceIndex(id string) int {
	return slices.IndexFunc(s.invoices, func(inv core.Invoice) bool { return inv.ID == id })
}

func cloneInvoice(inv core.Invoice) core.Invoice {
	inv.Attachments = slices.Clone(inv.Attachments)
	return inv
}
