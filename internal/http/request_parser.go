// Package http provides HTTP server and handler implementations.
//
// This file implements utilities for parsing and validating HTTP request
// data: JSON bodies, report period selectors and list filters.

package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"bally/internal/core"
	"bally/internal/services"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 20

// ErrMalformedBody marks request bodies that are not a single JSON object of
// the expected shape.
var ErrMalformedBody = errors.New("malformed request body")

// DecodeJSON reads one JSON value from the request body into v. Unknown
// fields are rejected. Type and syntax problems are wrapped in
// ErrMalformedBody; errors raised by the field types themselves (amounts,
// dates, rates) are returned unchanged.
func DecodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()

	if err := dec.Decode(v); err != nil {
		var (
			syntaxErr *json.SyntaxError
			typeErr   *json.UnmarshalTypeError
			maxErr    *http.MaxBytesError
		)
		switch {
		case errors.Is(err, io.EOF):
			return fmt.Errorf("%w: empty body", ErrMalformedBody)
		case errors.As(err, &syntaxErr), errors.Is(err, io.ErrUnexpectedEOF):
			return fmt.Errorf("%w: invalid JSON", ErrMalformedBody)
		case errors.As(err, &typeErr):
			return fmt.Errorf("%w: field %q has the wrong type", ErrMalformedBody, typeErr.Field)
		case errors.As(err, &maxErr):
			return fmt.Errorf("%w: body larger than %d bytes", ErrMalformedBody, maxErr.Limit)
		case strings.HasPrefix(err.Error(), "json: unknown field"):
			return fmt.Errorf("%w: %s", ErrMalformedBody, strings.TrimPrefix(err.Error(), "json: "))
		default:
			return err
		}
	}
	if dec.More() {
		return fmt.Errorf("%w: trailing data after JSON object", ErrMalformedBody)
	}
	return nil
}

// PeriodSelector is a parsed ?period=...&year=... query.
type PeriodSelector struct {
	Kind   string
	Params services.PeriodParams
}

// Name is the selector as shown in export filenames, e.g. "2024-q1".
func (s PeriodSelector) Name() string {
	switch s.Kind {
	case services.PeriodMonth, "custom-month":
		if s.Params.Year != 0 && s.Params.Month != 0 {
			return fmt.Sprintf("%04d-%02d", s.Params.Year, s.Params.Month)
		}
	case services.PeriodQuarter, "custom-quarter":
		if s.Params.Year != 0 && s.Params.Quarter != 0 {
			return fmt.Sprintf("%04d-q%d", s.Params.Year, s.Params.Quarter)
		}
	case services.PeriodYear, "custom-year":
		if s.Params.Year != 0 {
			return strconv.Itoa(s.Params.Year)
		}
	case services.PeriodRange:
		return s.Params.From + "-to-" + s.Params.To
	case "":
		return services.PeriodCurrentMonth
	}
	return s.Kind
}

// ParsePeriodSelector reads period, year, month, quarter, from and to.
// Missing numbers stay zero and default to the current date when resolved.
func ParsePeriodSelector(query url.Values) (PeriodSelector, error) {
	sel := PeriodSelector{
		Kind: strings.ToLower(strings.TrimSpace(query.Get("period"))),
		Params: services.PeriodParams{
			From: strings.TrimSpace(query.Get("from")),
			To:   strings.TrimSpace(query.Get("to")),
		},
	}

	for _, f := range []struct {
		name string
		dst  *int
	}{
		{"year", &sel.Params.Year},
		{"month", &sel.Params.Month},
		{"quarter", &sel.Params.Quarter},
	} {
		v := strings.TrimSpace(query.Get(f.name))
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return PeriodSelector{}, fmt.Errorf("%w: %s %q is not a number", services.ErrInvalidPeriod, f.name, v)
		}
		*f.dst = n
	}
	return sel, nil
}

// ParseInvoiceFilter reads supplierId and status.
func ParseInvoiceFilter(query url.Values) (services.InvoiceFilter, error) {
	f := services.InvoiceFilter{SupplierID: strings.TrimSpace(query.Get("supplierId"))}
	if v := query.Get("status"); strings.TrimSpace(v) != "" {
		status, err := core.ParseStatus(v)
		if err != nil {
			return services.InvoiceFilter{}, err
		}
		f.Status = status
	}
	return f, nil
}

// wantsText reports whether the client asked for the plain-text export.
func wantsText(r *http.Request) bool {
	return strings.EqualFold(strings.TrimSpace(r.URL.Query().Get("format")), "text")
}
