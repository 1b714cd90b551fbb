package booking

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"ms-gigs/internal/events"
	"ms-gigs/internal/logger"
	"ms-gigs/internal/store"
)

const bookTicketProcedure = "book_ticket"

type Request struct {
	GigID         int64  `json:"gig_id"`
	CustomerName  string `json:"customer_name"`
	CustomerEmail string `json:"customer_email"`
	PriceType     string `json:"price_type"`
}

// Result is the outcome of a booking the store accepted or refused. Infrastructure
// failures are returned as errors instead.
type Result struct {
	Booked   bool       `json:"booked"`
	TicketID int64      `json:"ticket_id,omitempty"`
	Kind     store.Kind `json:"-"`
	Reason   string     `json:"reason,omitempty"`
}

type Service struct {
	Gateway   store.Gateway
	Publisher events.Publisher
	Logger    *logger.Logger
}

func NewService(gw store.Gateway, pub events.Publisher, log *logger.Logger) *Service {
	if pub == nil {
		pub = events.Nop{}
	}
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Service{Gateway: gw, Publisher: pub, Logger: log}
}

// BookTicket hands the whole check-and-insert to the book_ticket procedure. Tier
// existence, gig status and capacity are decided there and nowhere else.
func (s *Service) BookTicket(ctx context.Context, req Request) (Result, error) {
	unit, err := s.Gateway.BeginUnit(ctx)
	if err != nil {
		s.Logger.Error("BOOKING", fmt.Sprintf("Booking for gig %d could not start: %v", req.GigID, err))
		return Result{}, fmt.Errorf("booking ticket for gig %d: %w", req.GigID, err)
	}
	s.Logger.Debug("BOOKING", fmt.Sprintf("Booking %s/%s for gig %d in unit %s", req.CustomerEmail, req.PriceType, req.GigID, unit.ID()))

	rs, err := unit.CallProcedure(ctx, bookTicketProcedure, req.GigID, req.CustomerName, req.CustomerEmail, req.PriceType)
	if err != nil {
		if rbErr := unit.Rollback(); rbErr != nil {
			err = errors.Join(err, rbErr)
		}
		return s.refusal(req, err)
	}

	ticketID, err := ticketIDFrom(rs)
	if err != nil {
		err = errors.Join(err, unit.Rollback())
		s.Logger.Error("BOOKING", fmt.Sprintf("Booking for gig %d rolled back: %v", req.GigID, err))
		return Result{}, fmt.Errorf("booking ticket for gig %d: %w", req.GigID, err)
	}

	if err := unit.Commit(); err != nil {
		err = errors.Join(err, unit.Rollback())
		s.Logger.Error("BOOKING", fmt.Sprintf("Booking for gig %d failed to commit: %v", req.GigID, err))
		return Result{}, fmt.Errorf("booking ticket for gig %d: %w", req.GigID, err)
	}

	s.Logger.LogGig("BOOKED", req.GigID, fmt.Sprintf("ticket %d (%s) for %s", ticketID, req.PriceType, req.CustomerEmail))
	e := events.New(events.TicketBooked, req.GigID, events.TicketBookedPayload{
		TicketID:      ticketID,
		CustomerEmail: req.CustomerEmail,
		PriceType:     req.PriceType,
	})
	if err := s.Publisher.Publish(ctx, e); err != nil {
		s.Logger.Warn("BOOKING", fmt.Sprintf("Publishing %s for gig %d failed: %v", e.Type, req.GigID, err))
	}

	return Result{Booked: true, TicketID: ticketID}, nil
}

// refusal turns a rolled-back procedure call into either a rejected result or an
// infrastructure error.
func (s *Service) refusal(req Request, err error) (Result, error) {
	kind := store.KindOf(err)
	switch kind {
	case store.KindRejected, store.KindNotFound, store.KindConstraint:
		s.Logger.Warn("BOOKING", fmt.Sprintf("Booking for gig %d rejected (%s): %s", req.GigID, kind, store.Message(err)))
		return Result{Booked: false, Kind: kind, Reason: store.Message(err)}, nil
	default:
		s.Logger.Error("BOOKING", fmt.Sprintf("Booking for gig %d failed: %v", req.GigID, err))
		return Result{}, fmt.Errorf("booking ticket for gig %d: %w", req.GigID, err)
	}
}

func ticketIDFrom(rs store.RowSet) (int64, error) {
	cell, ok := rs.Cell(0, 0)
	if !ok {
		return 0, store.NewError(store.KindUnavailable, "book ticket", "procedure returned no ticket id")
	}
	id, err := strconv.ParseInt(cell, 10, 64)
	if err != nil {
		return 0, store.NewError(store.KindUnavailable, "book ticket", "unexpected ticket id %q", cell)
	}
	return id, nil
}
