package cancellation

import (
	"context"
	"errors"
	"fmt"

	"ms-gigs/internal/events"
	"ms-gigs/internal/logger"
	"ms-gigs/internal/models"
	"ms-gigs/internal/store"
)

const (
	cancelActProcedure = "cancel_act_in_gig"
	cancelGigProcedure = "cancel_gig"

	gigByID        = "gigid = ?"
	actByName      = "actname = ?"
	actInGig       = "gigid = ? AND actid = ?"
	emailColumn    = "customeremail"
	actNameColumn  = "actname"
	onTimeColumn   = "ontime"
	finishedColumn = "finish_time"
)

type Status string

const (
	StatusRemainingLineup Status = "remaining_lineup"
	StatusGigCancelled    Status = "gig_cancelled"
	StatusFailed          Status = "failed"
)

// Outcome is exactly one of a remaining lineup, a cancelled gig with the
// customers to refund, or a failure that changed nothing.
type Outcome struct {
	Status         Status               `json:"status"`
	GigID          int64                `json:"gig_id"`
	Lineup         []models.LineupEntry `json:"lineup,omitempty"`
	AffectedEmails []string             `json:"affected_emails,omitempty"`
	Escalated      bool                 `json:"escalated"`
	Reason         string               `json:"reason,omitempty"`
}

// lineupViolationError marks a narrow cancellation the store refused because the
// remaining lineup would be invalid. It is the only error that escalates.
type lineupViolationError struct {
	err error
}

func (e *lineupViolationError) Error() string {
	return fmt.Sprintf("lineup would become invalid: %v", e.err)
}

func (e *lineupViolationError) Unwrap() error {
	return e.err
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

// CancelAct removes actName from the gig. When the store refuses because the
// lineup would no longer be valid, the whole gig is cancelled instead.
func (s *Service) CancelAct(ctx context.Context, gigID int64, actName string) (Outcome, error) {
	s.Logger.Debug("CANCEL", fmt.Sprintf("Cancelling %q in gig %d", actName, gigID))

	outcome, err := s.narrow(ctx, gigID, actName)
	if err == nil {
		s.announce(ctx, outcome, actName)
		return outcome, nil
	}

	var violation *lineupViolationError
	if !errors.As(err, &violation) {
		s.Logger.Error("CANCEL", fmt.Sprintf("Cancelling %q in gig %d failed (%s): %v", actName, gigID, store.KindOf(err), err))
		return failed(gigID, err), err
	}

	s.Logger.Warn("CANCEL", fmt.Sprintf("Removing %q would invalidate gig %d, cancelling the gig: %s", actName, gigID, store.Message(err)))
	outcome, err = s.cancelGig(ctx, gigID)
	if err != nil {
		s.Logger.Error("CANCEL", fmt.Sprintf("Escalated cancellation of gig %d failed: %v", gigID, err))
		return failed(gigID, err), err
	}
	s.announce(ctx, outcome, actName)
	return outcome, nil
}

func (s *Service) narrow(ctx context.Context, gigID int64, actName string) (Outcome, error) {
	unit, err := s.Gateway.BeginUnit(ctx)
	if err != nil {
		return Outcome{}, fmt.Errorf("cancelling %q in gig %d: %w", actName, gigID, err)
	}

	rs, err := s.removeAct(ctx, unit, gigID, actName)
	if err != nil {
		return Outcome{}, errors.Join(err, unit.Rollback())
	}

	outcome := interpret(gigID, rs)
	if err := unit.Commit(); err != nil {
		return Outcome{}, errors.Join(fmt.Errorf("cancelling %q in gig %d: %w", actName, gigID, err), unit.Rollback())
	}
	s.Logger.LogGig("ACT_CANCELLED", gigID, fmt.Sprintf("%q removed, outcome %s", actName, outcome.Status))
	return outcome, nil
}

func (s *Service) removeAct(ctx context.Context, unit store.Unit, gigID int64, actName string) (store.RowSet, error) {
	actID, err := checkPreconditions(ctx, unit, gigID, actName)
	if err != nil {
		return store.EmptyRowSet(), err
	}

	rs, err := unit.CallProcedure(ctx, cancelActProcedure, actID, gigID)
	if err != nil {
		if store.IsRejected(err) {
			return store.EmptyRowSet(), &lineupViolationError{err: err}
		}
		return store.EmptyRowSet(), fmt.Errorf("cancelling %q in gig %d: %w", actName, gigID, err)
	}
	return rs, nil
}

// checkPreconditions resolves the act and refuses requests the narrow procedure
// would misread as a lineup violation.
func checkPreconditions(ctx context.Context, unit store.Unit, gigID int64, actName string) (int64, error) {
	var gig models.Gig
	if err := unit.SelectOne(ctx, &gig, gigByID, gigID); err != nil {
		if store.IsNotFound(err) {
			return 0, store.NewError(store.KindNotFound, "cancel act", "gig %d does not exist", gigID)
		}
		return 0, fmt.Errorf("reading gig %d: %w", gigID, err)
	}
	if gig.GigStatus != models.GigGoingAhead {
		return 0, store.NewError(store.KindRejected, "cancel act", "gig %d is already %s", gigID, gig.GigStatus)
	}

	var act models.Act
	if err := unit.SelectOne(ctx, &act, actByName, actName); err != nil {
		if store.IsNotFound(err) {
			return 0, store.NewError(store.KindNotFound, "cancel act", "act %q does not exist", actName)
		}
		return 0, fmt.Errorf("resolving act %q: %w", actName, err)
	}

	performs, err := unit.Exists(ctx, (*models.ActPerformance)(nil), actInGig, gigID, act.ActID)
	if err != nil {
		return 0, fmt.Errorf("checking lineup of gig %d: %w", gigID, err)
	}
	if !performs {
		return 0, store.NewError(store.KindNotFound, "cancel act", "act %q does not perform in gig %d", actName, gigID)
	}
	return act.ActID, nil
}

func (s *Service) cancelGig(ctx context.Context, gigID int64) (Outcome, error) {
	unit, err := s.Gateway.BeginUnit(ctx)
	if err != nil {
		return Outcome{}, fmt.Errorf("cancelling gig %d: %w", gigID, err)
	}

	rs, err := unit.CallProcedure(ctx, cancelGigProcedure, gigID)
	if err != nil {
		return Outcome{}, errors.Join(fmt.Errorf("cancelling gig %d: %w", gigID, err), unit.Rollback())
	}
	emails := distinctEmails(rs, rs.Column(emailColumn))

	if err := unit.Commit(); err != nil {
		return Outcome{}, errors.Join(fmt.Errorf("cancelling gig %d: %w", gigID, err), unit.Rollback())
	}
	s.Logger.LogGig("CANCELLED", gigID, fmt.Sprintf("%d customers affected", len(emails)))
	return Outcome{Status: StatusGigCancelled, GigID: gigID, AffectedEmails: emails, Escalated: true}, nil
}

// interpret reads the narrow procedure's rows. Any non-NULL customer email means
// the store cancelled the gig itself; otherwise the rows are the new lineup.
func interpret(gigID int64, rs store.RowSet) Outcome {
	if col := rs.Column(emailColumn); col >= 0 {
		if emails := distinctEmails(rs, col); len(emails) > 0 {
			return Outcome{Status: StatusGigCancelled, GigID: gigID, AffectedEmails: emails}
		}
	}

	nameCol, onCol, finishCol := rs.Column(actNameColumn), rs.Column(onTimeColumn), rs.Column(finishedColumn)
	if nameCol < 0 || onCol < 0 || finishCol < 0 {
		nameCol, onCol, finishCol = 0, 1, 2
	}

	lineup := make([]models.LineupEntry, 0, rs.Len())
	for i := range rs.Rows {
		name, ok := rs.Cell(i, nameCol)
		if !ok {
			continue
		}
		onTime, _ := rs.Cell(i, onCol)
		finish, _ := rs.Cell(i, finishCol)
		lineup = append(lineup, models.LineupEntry{ActName: name, OnTime: onTime, FinishTime: finish})
	}
	return Outcome{Status: StatusRemainingLineup, GigID: gigID, Lineup: lineup}
}

// distinctEmails keeps the first occurrence of each non-NULL email.
func distinctEmails(rs store.RowSet, col int) []string {
	if col < 0 {
		col = 0
	}
	seen := make(map[string]struct{})
	emails := []string{}
	for i := range rs.Rows {
		email, ok := rs.Cell(i, col)
		if !ok {
			continue
		}
		if _, dup := seen[email]; dup {
			continue
		}
		seen[email] = struct{}{}
		emails = append(emails, email)
	}
	return emails
}

func failed(gigID int64, err error) Outcome {
	return Outcome{Status: StatusFailed, GigID: gigID, Reason: store.Message(err)}
}

func (s *Service) announce(ctx context.Context, outcome Outcome, actName string) {
	var e events.Event
	switch outcome.Status {
	case StatusRemainingLineup:
		e = events.New(events.ActCancelled, outcome.GigID, events.ActCancelledPayload{
			ActName:       actName,
			RemainingActs: len(outcome.Lineup),
		})
	case StatusGigCancelled:
		e = events.New(events.GigCancelled, outcome.GigID, events.GigCancelledPayload{
			AffectedEmails: outcome.AffectedEmails,
			CancelledAct:   actName,
		})
	default:
		return
	}
	if err := s.Publisher.Publish(ctx, e); err != nil {
		s.Logger.Warn("CANCEL", fmt.Sprintf("Publishing %s for gig %d failed: %v", e.Type, e.GigID, err))
	}
}
