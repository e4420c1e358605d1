package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"bally/internal/aggregate"
	"bally/internal/amqp"
	"bally/internal/cache"
	"bally/internal/core"
	"bally/internal/records"
	"bally/internal/records/memory"
	"bally/internal/services"
)

var workerNow = time.Date(2024, 3, 20, 12, 0, 0, 0, time.UTC)

type recordingPusher struct {
	mu      sync.Mutex
	periods []string
	failFor string
}

func (p *recordingPusher) PushVATSummary(_ context.Context, s aggregate.VATSummary) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if s.Period == p.failFor {
		return errors.New("quota exceeded")
	}
	p.periods = append(p.periods, s.Period)
	return nil
}

func newWorker(t *testing.T) (*ExportWorker, *recordingPusher) {
	t.Helper()
	reports := services.NewReportService(memory.New(), services.WithReportClock(func() time.Time { return workerNow }))
	pusher := &recordingPusher{}
	return NewExportWorker(reports, pusher), pusher
}

func TestHandleInvoiceEventExportsAffectedMonths(t *testing.T) {
	w, pusher := newWorker(t)

	e := amqp.NewRecordEvent(records.KindInvoice, "i1", amqp.EventUpdated)
	e.InvoiceDate = core.NewDate(2024, 4, 2)
	e.PreviousDate = core.NewDate(2024, 3, 30)

	if err := w.HandleRecordEvent(context.Background(), e); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if diff := cmp.Diff([]string{"April 2024", "March 2024"}, pusher.periods); diff != "" {
		t.Errorf("exported periods (-want +got):\n%s", diff)
	}
}

func TestHandleInvoiceEventSameMonthOnce(t *testing.T) {
	w, pusher := newWorker(t)

	e := amqp.NewRecordEvent(records.KindInvoice, "i1", amqp.EventUpdated)
	e.InvoiceDate = core.NewDate(2024, 2, 10)
	e.PreviousDate = core.NewDate(2024, 2, 1)

	if err := w.HandleRecordEvent(context.Background(), e); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"February 2024"}, pusher.periods); diff != "" {
		t.Errorf("exported periods (-want +got):\n%s", diff)
	}
}

func TestHandleEventWithoutDateExportsCurrentMonth(t *testing.T) {
	w, pusher := newWorker(t)

	e := amqp.NewRecordEvent(records.KindInvoice, "i1", amqp.EventDeleted)
	if err := w.HandleRecordEvent(context.Background(), e); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"March 2024"}, pusher.periods); diff != "" {
		t.Errorf("exported periods (-want +got):\n%s", diff)
	}
}

func TestHandleSupplierEventIsIgnored(t *testing.T) {
	w, pusher := newWorker(t)

	e := amqp.NewRecordEvent(records.KindSupplier, "s1", amqp.EventUpdated)
	if err := w.HandleRecordEvent(context.Background(), e); err != nil {
		t.Fatal(err)
	}
	if len(pusher.periods) != 0 {
		t.Errorf("unexpected exports: %v", pusher.periods)
	}
}

func TestHandleEventReportsPushFailures(t *testing.T) {
	w, pusher := newWorker(t)
	pusher.failFor = "March 2024"

	e := amqp.NewRecordEvent(records.KindInvoice, "i1", amqp.EventUpdated)
	e.InvoiceDate = core.NewDate(2024, 4, 2)
	e.PreviousDate = core.NewDate(2024, 3, 30)

	err := w.HandleRecordEvent(context.Background(), e)
	if err == nil {
		t.Fatal("expected error so the event is requeued")
	}
	// The other month still went out.
	if diff := cmp.Diff([]string{"April 2024"}, pusher.periods); diff != "" {
		t.Errorf("exported periods (-want +got):\n%s", diff)
	}
}

func TestWorkerSeesWritesAfterEvent(t *testing.T) {
	store := memory.New()
	reports := services.NewReportService(store,
		services.WithReportCache(cache.NewLRUCache[*services.VATReport](4, time.Hour)),
		services.WithReportClock(func() time.Time { return workerNow }))
	// Writes go through a separate service, as in the API process.
	recs := services.NewRecordService(store, services.WithRecordClock(func() time.Time { return workerNow }))
	var got aggregate.VATSummary
	w := NewExportWorker(reports, pusherFunc(func(s aggregate.VATSummary) { got = s }))
	ctx := context.Background()

	// Warm the worker's cache with an empty March.
	if err := w.ExportCurrentMonth(ctx); err != nil {
		t.Fatal(err)
	}

	sup, err := recs.CreateSupplier(ctx, services.SupplierInput{Name: "Acme", PaymentTerms: 30})
	if err != nil {
		t.Fatal(err)
	}
	inv, err := recs.CreateInvoice(ctx, services.InvoiceInput{
		SupplierID:    sup.ID,
		InvoiceNumber: "INV-1",
		Date:          core.NewDate(2024, 3, 15),
		Subtotal:      core.Cents(10000),
		VATRate:       21,
	})
	if err != nil {
		t.Fatal(err)
	}

	e := amqp.NewRecordEvent(records.KindInvoice, inv.ID, amqp.EventCreated)
	e.InvoiceDate = inv.Date
	if err := w.HandleRecordEvent(ctx, e); err != nil {
		t.Fatal(err)
	}
	if got.InvoiceCount != 1 || got.TotalVAT != core.Cents(2100) {
		t.Errorf("stale summary exported: %+v", got)
	}
}

type pusherFunc func(aggregate.VATSummary)

func (f pusherFunc) PushVATSummary(_ context.Context, s aggregate.VATSummary) error {
	f(s)
	return nil
}

func TestRunStopsOnCancel(t *testing.T) {
	w, pusher := newWorker(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		w.Run(ctx, 5*time.Millisecond)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for {
		pusher.mu.Lock()
		n := len(pusher.periods)
		pusher.mu.Unlock()
		if n > 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("no periodic export")
		case <-time.After(time.Millisecond):
		}
	}
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
