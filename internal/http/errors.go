package http

import (
	"errors"
	"net/http"

	"bally/internal/core"
	applog "bally/internal/log"
	"bally/internal/middleware/trace"
	"bally/internal/records"
	"bally/internal/services"
)

// validationErrors map to 422 Unprocessable Entity.
var validationErrors = []error{
	core.ErrEmptyID,
	core.ErrEmptyName,
	core.ErrNameTooLong,
	core.ErrInvalidEmail,
	core.ErrInvalidTerms,
	core.ErrMissingSupplier,
	core.ErrEmptyInvoiceNumber,
	core.ErrInvalidStatus,
	core.ErrVATMismatch,
	core.ErrTotalMismatch,
	core.ErrDescriptionTooLong,
	core.ErrInvalidAmount,
	core.ErrInvalidRate,
	core.ErrZeroDate,
	core.ErrInvalidDate,
	services.ErrUnknownSupplier,
	services.ErrInvalidPeriod,
}

// StatusFor returns the HTTP status code for an error returned by the
// record and report services.
func StatusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrMalformedBody):
		return http.StatusBadRequest
	case errors.Is(err, records.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, records.ErrSupplierInUse):
		return http.StatusConflict
	}
	for _, target := range validationErrors {
		if errors.Is(err, target) {
			return http.StatusUnprocessableEntity
		}
	}
	return http.StatusInternalServerError
}

// writeError answers with the status StatusFor picks. Server errors are
// logged and their details withheld from the client.
func writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	status := StatusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		applog.NewStructuredLogger(applog.FromContext(r.Context())).
			LogError(r.Context(), "Request failed", err, applog.ComponentHTTP, op, nil)
		msg = "internal server error"
	}
	NewResponse().
		Status(status).
		JSON(ErrorBody{Error: msg, RequestID: trace.GetRequestID(r.Context())}).
		Write(w)
}
