package events

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

type Type string

const (
	GigProvisioned Type = "gig.provisioned"
	TicketBooked   Type = "ticket.booked"
	ActCancelled   Type = "gig.act_cancelled"
	GigCancelled   Type = "gig.cancelled"
)

// Event is emitted after a unit of work commits. It never describes uncommitted state.
type Event struct {
	ID         string    `json:"id"`
	Type       Type      `json:"type"`
	GigID      int64     `json:"gig_id"`
	OccurredAt time.Time `json:"occurred_at"`
	Payload    any       `json:"payload,omitempty"`
}

func New(t Type, gigID int64, payload any) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       t,
		GigID:      gigID,
		OccurredAt: time.Now().UTC(),
		Payload:    payload,
	}
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Multi publishes to every publisher and joins their errors.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, e Event) error {
	var errs []error
	for _, p := range m {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }

// Payloads

type GigProvisionedPayload struct {
	VenueName    string `json:"venue_name"`
	Title        string `json:"title"`
	Performances int    `json:"performances"`
}

type TicketBookedPayload struct {
	TicketID      int64  `json:"ticket_id"`
	CustomerEmail string `json:"customer_email"`
	PriceType     string `json:"price_type"`
}

type ActCancelledPayload struct {
	ActName       string `json:"act_name"`
	RemainingActs int    `json:"remaining_acts"`
}

// GigCancelledPayload lists every customer to refund and notify.
type GigCancelledPayload struct {
	AffectedEmails []string `json:"affected_emails"`
	CancelledAct   string   `json:"cancelled_act,omitempty"`
}
