package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventType names what happened to a fee record.
type EventType string

const (
	EventFeeRecordCreated EventType = "fee_record.created"
	EventPaymentApplied   EventType = "payment.applied"
)

// LedgerEvent is a lightweight notification that a fee record changed.
// Consumers re-read the record from the store; the event only identifies it.
type LedgerEvent struct {
	EventID     string    `json:"eventId"`
	Type        EventType `json:"type"`
	AdmissionNo string    `json:"admissionNo"`
	Month       int       `json:"month"`
	Year        int       `json:"year"`
	AmountCents int64     `json:"amountCents,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// NewLedgerEvent stamps a fresh event id and the current time.
func NewLedgerEvent(t EventType, admissionNo string, month, year int, amountCents int64) *LedgerEvent {
	return &LedgerEvent{
		EventID:     uuid.NewString(),
		Type:        t,
		AdmissionNo: admissionNo,
		Month:       month,
		Year:        year,
		AmountCents: amountCents,
		Timestamp:   time.Now().UTC(),
	}
}

func (m *LedgerEvent) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// LedgerEventFromJSON decodes and sanity-checks an event body.
func LedgerEventFromJSON(data []byte) (*LedgerEvent, error) {
	var msg LedgerEvent
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if _, err := uuid.Parse(msg.EventID); err != nil {
		return nil, fmt.Errorf("invalid event id %q: %w", msg.EventID, err)
	}
	switch msg.Type {
	case EventFeeRecordCreated, EventPaymentApplied:
	default:
		return nil, fmt.Errorf("unknown event type %q", msg.Type)
	}
	if msg.AdmissionNo == "" || msg.Month < 1 || msg.Month > 12 || msg.Year < 1 {
		return nil, fmt.Errorf("event %s does not identify a fee record", msg.EventID)
	}
	return &msg, nil
}
