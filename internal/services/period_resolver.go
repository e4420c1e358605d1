// Package services provides business logic and orchestration services.
//
// This file implements the strategy pattern for report periods. Each period
// kind (current month, month, quarter, year, range) has a resolver that
// turns request parameters into an aggregate.Period.

package services

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"bally/internal/aggregate"
	"bally/internal/core"
)

var ErrInvalidPeriod = errors.New("invalid period")

// PeriodParams are the raw selector values. Zero values default to the
// corresponding part of now.
type PeriodParams struct {
	Year    int
	Month   int
	Quarter int
	From    string // YYYY-MM-DD, range only
	To      string // YYYY-MM-DD inclusive, range only
}

// PeriodResolver is the strategy interface for building a report window.
type PeriodResolver interface {
	Resolve(p PeriodParams, now time.Time) (aggregate.Period, error)
}

// CurrentMonthResolver ignores the parameters and returns now's month.
type CurrentMonthResolver struct{}

func (CurrentMonthResolver) Resolve(_ PeriodParams, now time.Time) (aggregate.Period, error) {
	now = now.UTC()
	return aggregate.MonthPeriod(now.Year(), now.Month()), nil
}

// MonthResolver returns a calendar month.
type MonthResolver struct{}

func (MonthResolver) Resolve(p PeriodParams, now time.Time) (aggregate.Period, error) {
	year, err := resolveYear(p.Year, now)
	if err != nil {
		return aggregate.Period{}, err
	}
	month := p.Month
	if month == 0 {
		month = int(now.UTC().Month())
	}
	if month < 1 || month > 12 {
		return aggregate.Period{}, fmt.Errorf("%w: month %d must be between 1 and 12", ErrInvalidPeriod, month)
	}
	return aggregate.MonthPeriod(year, time.Month(month)), nil
}

// QuarterResolver returns a calendar quarter.
type QuarterResolver struct{}

func (QuarterResolver) Resolve(p PeriodParams, now time.Time) (aggregate.Period, error) {
	year, err := resolveYear(p.Year, now)
	if err != nil {
		return aggregate.Period{}, err
	}
	quarter := p.Quarter
	if quarter == 0 {
		quarter = (int(now.UTC().Month())-1)/3 + 1
	}
	if quarter < 1 || quarter > 4 {
		return aggregate.Period{}, fmt.Errorf("%w: quarter %d must be between 1 and 4", ErrInvalidPeriod, quarter)
	}
	return aggregate.QuarterPeriod(year, quarter), nil
}

// YearResolver returns a calendar year.
type YearResolver struct{}

func (YearResolver) Resolve(p PeriodParams, now time.Time) (aggregate.Period, error) {
	year, err := resolveYear(p.Year, now)
	if err != nil {
		return aggregate.Period{}, err
	}
	return aggregate.YearPeriod(year), nil
}

// RangeResolver returns the days From through To, both included.
type RangeResolver struct{}

func (RangeResolver) Resolve(p PeriodParams, _ time.Time) (aggregate.Period, error) {
	from, err := core.ParseDate(p.From)
	if err != nil {
		return aggregate.Period{}, fmt.Errorf("%w: from date %q", ErrInvalidPeriod, p.From)
	}
	to, err := core.ParseDate(p.To)
	if err != nil {
		return aggregate.Period{}, fmt.Errorf("%w: to date %q", ErrInvalidPeriod, p.To)
	}
	if to.Before(from.Time) {
		return aggregate.Period{}, fmt.Errorf("%w: %s is before %s", ErrInvalidPeriod, to, from)
	}
	return aggregate.NewPeriod(from.Time, to.AddDays(1).Add(-time.Nanosecond)), nil
}

func resolveYear(year int, now time.Time) (int, error) {
	if year == 0 {
		return now.UTC().Year(), nil
	}
	if year < 1900 || year > 9999 {
		return 0, fmt.Errorf("%w: year %d out of range", ErrInvalidPeriod, year)
	}
	return year, nil
}

// Period kinds accepted by ResolvePeriod.
const (
	PeriodCurrentMonth = "current-month"
	PeriodMonth        = "month"
	PeriodQuarter      = "quarter"
	PeriodYear         = "year"
	PeriodRange        = "range"
)

// periodResolvers maps period kinds to resolvers. The custom-* names are the
// selector values used by the dashboard.
var periodResolvers = map[string]PeriodResolver{
	PeriodCurrentMonth: CurrentMonthResolver{},
	PeriodMonth:        MonthResolver{},
	"custom-month":     MonthResolver{},
	PeriodQuarter:      QuarterResolver{},
	"custom-quarter":   QuarterResolver{},
	PeriodYear:         YearResolver{},
	"custom-year":      YearResolver{},
	PeriodRange:        RangeResolver{},
}

// GetPeriodResolver returns the resolver for kind. An empty kind means the
// current month.
func GetPeriodResolver(kind string) (PeriodResolver, error) {
	kind = strings.ToLower(strings.TrimSpace(kind))
	if kind == "" {
		kind = PeriodCurrentMonth
	}
	r, ok := periodResolvers[kind]
	if !ok {
		return nil, fmt.Errorf("%w: unknown period kind %q", ErrInvalidPeriod, kind)
	}
	return r, nil
}

// RegisterPeriodResolver adds or replaces a period kind. Call it during
// initialisation only; the registry is not locked.
func RegisterPeriodResolver(kind string, r PeriodResolver) {
	periodResolvers[kind] = r
}

// ResolvePeriod looks up the resolver for kind and applies it.
func ResolvePeriod(kind string, p PeriodParams, now time.Time) (aggregate.Period, error) {
	r, err := GetPeriodResolver(kind)
	if err != nil {
		return aggregate.Period{}, err
	}
	return r.Resolve(p, now)
}
