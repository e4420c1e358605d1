package services

import (
	"errors"
	"testing"
	"time"

	"bally/internal/aggregate"
)

func TestResolvePeriod(t *testing.T) {
	now := time.Date(2024, 5, 17, 15, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		kind      string
		params    PeriodParams
		wantLabel string
		wantErr   bool
	}{
		{name: "default is current month", kind: "", wantLabel: "May 2024"},
		{name: "current month ignores params", kind: "current-month", params: PeriodParams{Year: 2020, Month: 1}, wantLabel: "May 2024"},
		{name: "explicit month", kind: "month", params: PeriodParams{Year: 2023, Month: 12}, wantLabel: "December 2023"},
		{name: "dashboard alias", kind: "custom-month", params: PeriodParams{Year: 2024, Month: 2}, wantLabel: "February 2024"},
		{name: "month defaults to now", kind: "month", params: PeriodParams{Year: 2022}, wantLabel: "May 2022"},
		{name: "month out of range", kind: "month", params: PeriodParams{Month: 13}, wantErr: true},
		{name: "quarter", kind: "quarter", params: PeriodParams{Year: 2024, Quarter: 1}, wantLabel: "Q1 2024"},
		{name: "quarter defaults to now", kind: "custom-quarter", wantLabel: "Q2 2024"},
		{name: "quarter out of range", kind: "quarter", params: PeriodParams{Quarter: 5}, wantErr: true},
		{name: "year", kind: "YEAR", params: PeriodParams{Year: 2023}, wantLabel: "2023"},
		{name: "year out of range", kind: "year", params: PeriodParams{Year: 12}, wantErr: true},
		{name: "range", kind: "range", params: PeriodParams{From: "2024-01-01", To: "2024-01-15"}, wantLabel: "2024-01-01 - 2024-01-15"},
		{name: "range reversed", kind: "range", params: PeriodParams{From: "2024-02-01", To: "2024-01-15"}, wantErr: true},
		{name: "range bad date", kind: "range", params: PeriodParams{From: "yesterday", To: "2024-01-15"}, wantErr: true},
		{name: "unknown kind", kind: "fortnight", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolvePeriod(tt.kind, tt.params, now)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidPeriod) {
					t.Fatalf("expected ErrInvalidPeriod, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.Label != tt.wantLabel {
				t.Errorf("label = %q, want %q", got.Label, tt.wantLabel)
			}
		})
	}
}

func TestRangeResolverIncludesLastDay(t *testing.T) {
	p, err := RangeResolver{}.Resolve(PeriodParams{From: "2024-01-01", To: "2024-01-15"}, time.Time{})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	lastDay := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	if !p.Contains(lastDay) || p.Contains(lastDay.AddDate(0, 0, 1)) {
		t.Errorf("range %v..%v should end with Jan 15th", p.Start, p.End)
	}
}

type fixedResolver struct{ p aggregate.Period }

func (f fixedResolver) Resolve(PeriodParams, time.Time) (aggregate.Period, error) { return f.p, nil }

func TestRegisterPeriodResolver(t *testing.T) {
	want := aggregate.YearPeriod(1999)
	RegisterPeriodResolver("fiscal-test", fixedResolver{p: want})
	t.Cleanup(func() { delete(periodResolvers, "fiscal-test") })

	got, err := ResolvePeriod("fiscal-test", PeriodParams{}, time.Now())
	if err != nil || got != want {
		t.Fatalf("got %v, %v", got, err)
	}
}
