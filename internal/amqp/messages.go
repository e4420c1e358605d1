package amqp

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"bally/internal/core"
)

// EventType says what happened to a record.
type EventType string

const (
	EventCreated EventType = "created"
	EventUpdated EventType = "updated"
	EventDeleted EventType = "deleted"
)

// RecordEvent announces a supplier or invoice change. It carries ids and
// dates only; consumers read the records back from the store.
type RecordEvent struct {
	Kind string    `json:"kind"` // "supplier" or "invoice"
	ID   string    `json:"id"`
	Type EventType `json:"type"`

	// InvoiceDate is the invoice's date after the change (before it, for deletes).
	InvoiceDate core.Date `json:"invoiceDate"`

	// PreviousDate is set on updates that moved an invoice to another date.
	PreviousDate core.Date `json:"previousDate"`

	Timestamp time.Time `json:"timestamp"`
}

var ErrInvalidEvent = errors.New("invalid record event")

func NewRecordEvent(kind, id string, typ EventType) *RecordEvent {
	return &RecordEvent{
		Kind:      kind,
		ID:        id,
		Type:      typ,
		Timestamp: time.Now().UTC(),
	}
}

// AffectedDates returns the distinct invoice dates whose periods the event touches.
func (e *RecordEvent) AffectedDates() []core.Date {
	var dates []core.Date
	if !e.InvoiceDate.IsZero() {
		dates = append(dates, e.InvoiceDate)
	}
	if !e.PreviousDate.IsZero() && !e.PreviousDate.Equal(e.InvoiceDate.Time) {
		dates = append(dates, e.PreviousDate)
	}
	return dates
}

func (e *RecordEvent) Validate() error {
	if e.Kind != "supplier" && e.Kind != "invoice" {
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidEvent, e.Kind)
	}
	if e.ID == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidEvent)
	}
	switch e.Type {
	case EventCreated, EventUpdated, EventDeleted:
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidEvent, e.Type)
	}
	return nil
}

func (e *RecordEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// RecordEventFromJSON decodes and validates an event body.
func RecordEventFromJSON(data []byte) (*RecordEvent, error) {
	var e RecordEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	if err := e.Validate(); err != nil {
		return nil, err
	}
	return &e, nil
}
