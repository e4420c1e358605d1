package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"bally/internal/aggregate"
	"bally/internal/cache"
	"bally/internal/core"
	"bally/internal/records/memory"
)

// countingSource counts invoice loads and can fail or block on demand.
type countingSource struct {
	*memory.Store
	loads   atomic.Int32
	err     error
	release chan struct{}
}

func (s *countingSource) ListInvoices(ctx context.Context) ([]core.Invoice, error) {
	s.loads.Add(1)
	if s.release != nil {
		select {
		case <-s.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	return s.Store.ListInvoices(ctx)
}

func seededSource(t *testing.T) *countingSource {
	t.Helper()
	store := memory.New()
	err := store.Load(memory.Seed{
		Suppliers: []core.Supplier{
			{ID: "s1", Name: "Acme", PaymentTerms: 30},
			{ID: "s2", Name: "Globex", PaymentTerms: 15},
		},
		Invoices: []core.Invoice{
			testInvoice("i1", "s1", core.NewDate(2024, 3, 15), 10000, 21, core.StatusPending),
			testInvoice("i2", "s2", core.NewDate(2024, 2, 1), 5000, 21, core.StatusPaid),
			testInvoice("i3", "s1", core.NewDate(2024, 3, 31), 2000, 6, core.StatusApproved),
		},
	})
	if err != nil {
		t.Fatalf("load seed: %v", err)
	}
	return &countingSource{Store: store}
}

func testInvoice(id, supplierID string, date core.Date, subtotal int64, rate core.Rate, status core.Status) core.Invoice {
	sub := core.Cents(subtotal)
	vat := core.ComputeVAT(sub, rate)
	return core.Invoice{
		ID:            id,
		SupplierID:    supplierID,
		InvoiceNumber: "N-" + id,
		Date:          date,
		DueDate:       date.AddDays(30),
		Subtotal:      sub,
		VATRate:       rate,
		VATAmount:     vat,
		Total:         sub.Add(vat),
		Status:        status,
	}
}

func newReportService(src Source) *ReportService {
	c := cache.NewLRUCache[*VATReport](8, time.Hour).WithClock(func() time.Time { return fixedNow })
	return NewReportService(src,
		WithReportCache(c),
		WithReportClock(func() time.Time { return fixedNow }),
	)
}

func TestReportServiceVAT(t *testing.T) {
	src := seededSource(t)
	svc := newReportService(src)

	r, err := svc.VAT(context.Background(), aggregate.MonthPeriod(2024, time.March))
	if err != nil {
		t.Fatalf("VAT: %v", err)
	}

	want := aggregate.VATSummary{
		Period:        "March 2024",
		Start:         time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		End:           time.Date(2024, 3, 31, 23, 59, 59, 999999999, time.UTC),
		TotalVAT:      core.Cents(2220),
		TotalSubtotal: core.Cents(12000),
		TotalAmount:   core.Cents(14220),
		InvoiceCount:  2,
		VATByRate: map[core.Rate]aggregate.RateTotals{
			6:  {VAT: core.Cents(120), Subtotal: core.Cents(2000), Count: 1},
			21: {VAT: core.Cents(2100), Subtotal: core.Cents(10000), Count: 1},
		},
		Suppliers: []string{"s1"},
	}
	if diff := cmp.Diff(want, r.Summary); diff != "" {
		t.Errorf("summary mismatch (-want +got):\n%s", diff)
	}
	if len(r.Invoices) != 2 || r.SupplierNames["s2"] != "Globex" || !r.GeneratedAt.Equal(fixedNow) {
		t.Errorf("unexpected report %+v", r)
	}
}

func TestReportServiceCachesUntilInvalidated(t *testing.T) {
	src := seededSource(t)
	svc := newReportService(src)
	ctx := context.Background()
	march := aggregate.MonthPeriod(2024, time.March)

	first, err := svc.VAT(ctx, march)
	if err != nil {
		t.Fatal(err)
	}
	second, _ := svc.VAT(ctx, march)
	if first != second || src.loads.Load() != 1 {
		t.Fatalf("expected cached report, loads=%d", src.loads.Load())
	}

	// Another period is computed separately.
	if _, err := svc.VAT(ctx, aggregate.QuarterPeriod(2024, 1)); err != nil {
		t.Fatal(err)
	}
	if src.loads.Load() != 2 {
		t.Fatalf("loads = %d, want 2", src.loads.Load())
	}

	// A write through the record service invalidates.
	writes := NewRecordService(src.Store, WithInvalidator(svc), WithRecordClock(func() time.Time { return fixedNow }))
	if _, err := writes.SetInvoiceStatus(ctx, "i1", core.StatusPaid); err != nil {
		t.Fatal(err)
	}
	third, _ := svc.VAT(ctx, march)
	if third == first || src.loads.Load() != 3 {
		t.Errorf("expected recomputation after invalidate, loads=%d", src.loads.Load())
	}
}

func TestReportServiceSkipsCacheWhenInvalidatedMidFlight(t *testing.T) {
	src := seededSource(t)
	src.release = make(chan struct{})
	svc := newReportService(src)
	march := aggregate.MonthPeriod(2024, time.March)

	done := make(chan error, 1)
	go func() {
		_, err := svc.VAT(context.Background(), march)
		done <- err
	}()

	for src.loads.Load() == 0 {
		time.Sleep(time.Millisecond)
	}
	svc.Invalidate()
	close(src.release)
	if err := <-done; err != nil {
		t.Fatal(err)
	}

	if _, err := svc.VAT(context.Background(), march); err != nil {
		t.Fatal(err)
	}
	if got := src.loads.Load(); got != 2 {
		t.Errorf("loads = %d, want 2 (stale result must not be cached)", got)
	}
}

func TestReportServiceSharesConcurrentComputations(t *testing.T) {
	src := seededSource(t)
	src.release = make(chan struct{})
	svc := NewReportService(src, WithReportClock(func() time.Time { return fixedNow }))
	march := aggregate.MonthPeriod(2024, time.March)

	const callers = 5
	var wg sync.WaitGroup
	reports := make([]*VATReport, callers)
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			reports[i], _ = svc.VAT(context.Background(), march)
		}()
	}

	for src.loads.Load() == 0 {
		time.Sleep(time.Millisecond)
	}
	// Give the remaining callers time to join the in-flight call.
	time.Sleep(20 * time.Millisecond)
	close(src.release)
	wg.Wait()

	for i, r := range reports {
		if r == nil || r.Summary.InvoiceCount != 2 {
			t.Fatalf("caller %d got %+v", i, r)
		}
	}
	if got := src.loads.Load(); got > callers {
		t.Errorf("loads = %d", got)
	}
}

func TestReportServiceCancelledCallerDoesNotFailOthers(t *testing.T) {
	src := seededSource(t)
	src.release = make(chan struct{})
	svc := NewReportService(src, WithReportClock(func() time.Time { return fixedNow }))
	march := aggregate.MonthPeriod(2024, time.March)

	ctx, cancel := context.WithCancel(context.Background())
	first := make(chan error, 1)
	go func() {
		_, err := svc.VAT(ctx, march)
		first <- err
	}()
	for src.loads.Load() == 0 {
		time.Sleep(time.Millisecond)
	}

	type result struct {
		r   *VATReport
		err error
	}
	second := make(chan result, 1)
	go func() {
		r, err := svc.VAT(context.Background(), march)
		second <- result{r, err}
	}()
	time.Sleep(20 * time.Millisecond)

	cancel()
	if err := <-first; !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled caller: expected context.Canceled, got %v", err)
	}
	close(src.release)

	got := <-second
	if got.err != nil {
		t.Fatalf("second caller failed: %v", got.err)
	}
	if got.r.Summary.InvoiceCount != 2 {
		t.Errorf("invoice count = %d, want 2", got.r.Summary.InvoiceCount)
	}
}

func TestReportServicePropagatesLoadErrors(t *testing.T) {
	src := seededSource(t)
	src.err = errors.New("disk on fire")
	svc := newReportService(src)
	ctx := context.Background()

	if _, err := svc.VAT(ctx, aggregate.YearPeriod(2024)); !errors.Is(err, src.err) {
		t.Errorf("VAT: expected load error, got %v", err)
	}
	if _, err := svc.SupplierPerformance(ctx); !errors.Is(err, src.err) {
		t.Errorf("SupplierPerformance: expected load error, got %v", err)
	}
	if _, err := svc.PaymentStatus(ctx); !errors.Is(err, src.err) {
		t.Errorf("PaymentStatus: expected load error, got %v", err)
	}
	if _, err := svc.Financial(ctx); !errors.Is(err, src.err) {
		t.Errorf("Financial: expected load error, got %v", err)
	}

	// Failures are not cached.
	src.err = nil
	if _, err := svc.VAT(ctx, aggregate.YearPeriod(2024)); err != nil {
		t.Errorf("VAT after recovery: %v", err)
	}
}

func TestReportServiceReports(t *testing.T) {
	svc := newReportService(seededSource(t))
	ctx := context.Background()

	perf, err := svc.SupplierPerformance(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(perf) != 2 || perf[0].Supplier.ID != "s1" || perf[0].TotalInvoices != 2 {
		t.Errorf("supplier performance = %+v", perf)
	}

	pay, err := svc.PaymentStatus(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if pay.TotalPaid != core.Cents(6050) || pay.TotalPending != core.Cents(14220) || pay.TotalOverdue != 0 {
		t.Errorf("payment report = %+v", pay)
	}

	fin, err := svc.Financial(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(fin.MonthlyTrends) != 12 || len(fin.TopSuppliers) != 2 || fin.TopSuppliers[0].Supplier.Name != "Acme" {
		t.Errorf("financial summary = %+v", fin)
	}
}
