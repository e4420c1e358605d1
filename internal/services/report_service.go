package services

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"bally/internal/aggregate"
	"bally/internal/cache"
	"bally/internal/core"
	"bally/internal/records"
)

// Source is the read side of the record store.
type Source interface {
	records.SupplierReader
	records.InvoiceReader
}

// Snapshot is a consistent-enough copy of the records a report is computed from.
type Snapshot struct {
	Suppliers []core.Supplier
	Invoices  []core.Invoice
}

// SupplierNames maps supplier ids to names.
func (s Snapshot) SupplierNames() map[string]string {
	names := make(map[string]string, len(s.Suppliers))
	for _, sup := range s.Suppliers {
		names[sup.ID] = sup.Name
	}
	return names
}

// VATReport is a period summary together with the invoices it covers.
// Cached reports are shared between callers and must not be modified.
type VATReport struct {
	Summary       aggregate.VATSummary `json:"summary"`
	Invoices      []core.Invoice       `json:"invoices"`
	SupplierNames map[string]string    `json:"supplierNames"`
	GeneratedAt   time.Time            `json:"generatedAt"`
}

// ReportService feeds store snapshots to the aggregation engine and caches
// VAT reports per period.
type ReportService struct {
	source Source
	cache  cache.Cache[*VATReport]
	group  singleflight.Group
	now    func() time.Time

	// gen is bumped by Invalidate; results computed under an older
	// generation are returned but not cached.
	gen atomic.Uint64
}

type ReportOption func(*ReportService)

// WithReportCache enables VAT report caching.
func WithReportCache(c cache.Cache[*VATReport]) ReportOption {
	return func(s *ReportService) { s.cache = c }
}

func WithReportClock(now func() time.Time) ReportOption {
	return func(s *ReportService) { s.now = now }
}

func NewReportService(source Source, opts ...ReportOption) *ReportService {
	s := &ReportService{
		source: source,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Now is the clock reports are evaluated against.
func (s *ReportService) Now() time.Time {
	return s.now()
}

// Snapshot loads suppliers and invoices concurrently.
func (s *ReportService) Snapshot(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		suppliers, err := s.source.ListSuppliers(ctx)
		if err != nil {
			return fmt.Errorf("load suppliers: %w", err)
		}
		snap.Suppliers = suppliers
		return nil
	})
	g.Go(func() error {
		invoices, err := s.source.ListInvoices(ctx)
		if err != nil {
			return fmt.Errorf("load invoices: %w", err)
		}
		snap.Invoices = invoices
		return nil
	})
	if err := g.Wait(); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

// VAT returns the VAT report for p. Concurrent requests for the same period
// share one computation.
func (s *ReportService) VAT(ctx context.Context, p aggregate.Period) (*VATReport, error) {
	key := periodKey(p)
	if s.cache != nil {
		if r, ok := s.cache.Get(key); ok {
			slog.DebugContext(ctx, "VAT report served from cache", "period", p.Label)
			return r, nil
		}
	}

	gen := s.gen.Load()
	// The fill outlives any single caller; each caller only stops waiting
	// when its own context ends.
	fillCtx := context.WithoutCancel(ctx)
	ch := s.group.DoChan(strconv.FormatUint(gen, 10)+"|"+key, func() (interface{}, error) {
		snap, err := s.Snapshot(fillCtx)
		if err != nil {
			return nil, err
		}
		r := &VATReport{
			Summary:       aggregate.CalculateVATForPeriod(snap.Invoices, p),
			Invoices:      aggregate.InPeriod(snap.Invoices, p),
			SupplierNames: snap.SupplierNames(),
			GeneratedAt:   s.now(),
		}
		if s.cache != nil && s.gen.Load() == gen {
			s.cache.Set(key, r)
		}
		return r, nil
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res = <-ch:
	}
	if res.Err != nil {
		return nil, res.Err
	}
	if res.Shared {
		slog.DebugContext(ctx, "VAT report computation shared", "period", p.Label)
	}
	return res.Val.(*VATReport), nil
}

func (s *ReportService) SupplierPerformance(ctx context.Context) ([]aggregate.SupplierReport, error) {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return aggregate.SupplierReports(snap.Suppliers, snap.Invoices, s.now()), nil
}

func (s *ReportService) PaymentStatus(ctx context.Context) (aggregate.PaymentReport, error) {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return aggregate.PaymentReport{}, err
	}
	return aggregate.PaymentStatusReport(snap.Invoices, s.now()), nil
}

func (s *ReportService) Financial(ctx context.Context) (aggregate.FinancialSummary, error) {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return aggregate.FinancialSummary{}, err
	}
	return aggregate.SummarizeFinancials(snap.Invoices, snap.Suppliers, s.now()), nil
}

// Invalidate drops every cached report. Any write can move an invoice
// between periods, so the whole cache goes.
func (s *ReportService) Invalidate() {
	s.gen.Add(1)
	if s.cache != nil {
		s.cache.Purge()
	}
}

func periodKey(p aggregate.Period) string {
	return p.Start.UTC().Format(time.RFC3339Nano) + "/" + p.End.UTC().Format(time.RFC3339Nano)
}
