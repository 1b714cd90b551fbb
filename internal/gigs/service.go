package gigs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"ms-gigs/internal/events"
	"ms-gigs/internal/logger"
	"ms-gigs/internal/models"
	"ms-gigs/internal/store"
)

const venueByName = "venuename = ?"

// Performance is one act slot requested for a new gig. Duration is in minutes.
type Performance struct {
	ActID    int64     `json:"act_id"`
	Fee      int       `json:"fee"`
	OnTime   time.Time `json:"on_time"`
	Duration int       `json:"duration"`
}

type Request struct {
	VenueName        string        `json:"venue_name"`
	Title            string        `json:"title"`
	Start            time.Time     `json:"start"`
	AdultTicketPrice int           `json:"adult_ticket_price"`
	Performances     []Performance `json:"performances"`
}

// Validate checks the request shape. Lineup rules are left to the store.
func (r Request) Validate() error {
	var problems []string
	if strings.TrimSpace(r.VenueName) == "" {
		problems = append(problems, "venue name is required")
	}
	if strings.TrimSpace(r.Title) == "" {
		problems = append(problems, "title is required")
	}
	if r.Start.IsZero() {
		problems = append(problems, "start must be a valid date-time")
	}
	if r.AdultTicketPrice < 0 {
		problems = append(problems, "adult ticket price must not be negative")
	}
	for i, p := range r.Performances {
		if p.ActID <= 0 {
			problems = append(problems, fmt.Sprintf("performance %d: act id must be positive", i))
		}
		if p.Fee < 0 {
			problems = append(problems, fmt.Sprintf("performance %d: fee must not be negative", i))
		}
		if p.OnTime.IsZero() {
			problems = append(problems, fmt.Sprintf("performance %d: on-time must be a valid date-time", i))
		}
		if p.Duration <= 0 {
			problems = append(problems, fmt.Sprintf("performance %d: duration must be positive", i))
		}
	}
	if len(problems) > 0 {
		return store.NewError(store.KindRejected, "provision gig", "%s", strings.Join(problems, "; "))
	}
	return nil
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

// Provision creates the gig, its lineup and the standard adult tier in one unit
// of work and returns the new gig id. On any failure nothing is left behind.
func (s *Service) Provision(ctx context.Context, req Request) (int64, error) {
	if err := req.Validate(); err != nil {
		s.Logger.Warn("GIG", err.Error())
		return 0, err
	}

	unit, err := s.Gateway.BeginUnit(ctx)
	if err != nil {
		s.Logger.Error("GIG", fmt.Sprintf("Provisioning %q could not start: %v", req.Title, err))
		return 0, fmt.Errorf("provisioning gig %q: %w", req.Title, err)
	}
	s.Logger.Debug("GIG", fmt.Sprintf("Provisioning %q at %s in unit %s", req.Title, req.VenueName, unit.ID()))

	gigID, err := s.provision(ctx, unit, req)
	if err != nil {
		err = errors.Join(err, unit.Rollback())
		s.Logger.Error("GIG", fmt.Sprintf("Provisioning %q rolled back (%s): %v", req.Title, store.KindOf(err), err))
		return 0, fmt.Errorf("provisioning gig %q: %w", req.Title, err)
	}
	if err := unit.Commit(); err != nil {
		err = errors.Join(err, unit.Rollback())
		s.Logger.Error("GIG", fmt.Sprintf("Provisioning %q failed to commit: %v", req.Title, err))
		return 0, fmt.Errorf("provisioning gig %q: %w", req.Title, err)
	}

	s.Logger.LogGig("PROVISIONED", gigID, fmt.Sprintf("%q with %d performances", req.Title, len(req.Performances)))
	s.publish(ctx, events.New(events.GigProvisioned, gigID, events.GigProvisionedPayload{
		VenueName:    req.VenueName,
		Title:        req.Title,
		Performances: len(req.Performances),
	}))
	return gigID, nil
}

func (s *Service) provision(ctx context.Context, unit store.Unit, req Request) (int64, error) {
	venue, err := findVenue(ctx, unit, req.VenueName)
	if err != nil {
		return 0, err
	}

	gig := models.Gig{
		VenueID:     venue.VenueID,
		GigTitle:    req.Title,
		GigDateTime: req.Start.UTC(),
		GigStatus:   models.GigGoingAhead,
	}
	if _, err := unit.Insert(ctx, &gig, "gigid"); err != nil {
		return 0, fmt.Errorf("inserting gig: %w", err)
	}
	if gig.GigID == 0 {
		return 0, store.NewError(store.KindUnavailable, "insert gig", "statement returned no generated key")
	}

	if len(req.Performances) > 0 {
		lineup := make([]models.ActPerformance, 0, len(req.Performances))
		for _, p := range req.Performances {
			lineup = append(lineup, models.ActPerformance{
				ActID:     p.ActID,
				GigID:     gig.GigID,
				ActGigFee: p.Fee,
				OnTime:    p.OnTime.UTC(),
				Duration:  p.Duration,
			})
		}
		if _, err := unit.Insert(ctx, &lineup); err != nil {
			return 0, fmt.Errorf("inserting performances: %w", err)
		}
	}

	tier := models.TicketTier{
		GigID:     gig.GigID,
		PriceType: models.StandardAdultPriceType,
		Price:     req.AdultTicketPrice,
	}
	if _, err := unit.Insert(ctx, &tier); err != nil {
		return 0, fmt.Errorf("inserting adult tier: %w", err)
	}
	return gig.GigID, nil
}

func findVenue(ctx context.Context, unit store.Unit, name string) (models.Venue, error) {
	var venue models.Venue
	if err := unit.SelectOne(ctx, &venue, venueByName, name); err != nil {
		if store.IsNotFound(err) {
			return venue, store.NewError(store.KindNotFound, "resolve venue", "venue %q not found", name)
		}
		return venue, fmt.Errorf("resolving venue: %w", err)
	}
	return venue, nil
}

func (s *Service) publish(ctx context.Context, e events.Event) {
	if err := s.Publisher.Publish(ctx, e); err != nil {
		s.Logger.Warn("GIG", fmt.Sprintf("Publishing %s for gig %d failed: %v", e.Type, e.GigID, err))
	}
}
