package cancellation

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"ms-gigs/internal/events"
	"ms-gigs/internal/models"
	"ms-gigs/internal/store"
	"ms-gigs/internal/store/storetest"
)

const (
	gigID   = int64(4)
	actID   = int64(12)
	actName = "The Selecter"
)

type recordingPublisher struct {
	got []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, e events.Event) error {
	p.got = append(p.got, e)
	return nil
}

func expectGig(unit *storetest.MockUnit, status models.GigStatus) {
	unit.On("SelectOne", mock.Anything, mock.AnythingOfType("*models.Gig"), gigByID, []any{gigID}).
		Run(func(args mock.Arguments) {
			gig := args.Get(1).(*models.Gig)
			gig.GigID, gig.GigStatus = gigID, status
		}).
		Return(nil)
}

func expectAct(unit *storetest.MockUnit) {
	unit.On("SelectOne", mock.Anything, mock.AnythingOfType("*models.Act"), actByName, []any{actName}).
		Run(func(args mock.Arguments) { args.Get(1).(*models.Act).ActID = actID }).
		Return(nil)
}

func notFound() error {
	return store.NewError(store.KindNotFound, "select", "sql: no rows in result set")
}

// expectPreconditions sets up a GoingAhead gig in which the act performs.
func expectPreconditions(unit *storetest.MockUnit) {
	expectGig(unit, models.GigGoingAhead)
	expectAct(unit)
	unit.On("Exists", mock.Anything, (*models.ActPerformance)(nil), actInGig, []any{gigID, actID}).Return(true, nil)
}

func lineupRows(rows ...store.Row) store.RowSet {
	return storetest.Rows([]string{"actname", "ontime", "finish_time", "customeremail"}, rows...)
}

func setup(units ...*storetest.MockUnit) (*Service, *storetest.MockGateway, *recordingPublisher) {
	gw := &storetest.MockGateway{}
	for _, u := range units {
		gw.On("BeginUnit", mock.Anything).Return(u, nil).Once()
	}
	pub := &recordingPublisher{}
	return NewService(gw, pub, nil), gw, pub
}

func TestCancelActReturnsRemainingLineup(t *testing.T) {
	unit := &storetest.MockUnit{}
	expectPreconditions(unit)
	unit.On("CallProcedure", mock.Anything, cancelActProcedure, []any{actID, gigID}).Return(lineupRows(
		store.Row{storetest.Str("ViewBee 40"), storetest.Str("2026-11-03 20:00:00"), storetest.Str("2026-11-03 21:00:00"), nil},
	), nil)
	unit.On("Commit").Return(nil)
	svc, gw, pub := setup(unit)

	outcome, err := svc.CancelAct(context.Background(), gigID, actName)

	require.NoError(t, err)
	assert.Equal(t, StatusRemainingLineup, outcome.Status)
	assert.False(t, outcome.Escalated)
	assert.Equal(t, []models.LineupEntry{
		{ActName: "ViewBee 40", OnTime: "2026-11-03 20:00:00", FinishTime: "2026-11-03 21:00:00"},
	}, outcome.Lineup)
	gw.AssertNumberOfCalls(t, "BeginUnit", 1)
	unit.AssertNotCalled(t, "Rollback")

	require.Len(t, pub.got, 1)
	assert.Equal(t, events.ActCancelled, pub.got[0].Type)
}

func TestCancelActNarrowRowsCarryingEmailsCancelGig(t *testing.T) {
	unit := &storetest.MockUnit{}
	expectPreconditions(unit)
	unit.On("CallProcedure", mock.Anything, cancelActProcedure, []any{actID, gigID}).Return(lineupRows(
		store.Row{nil, nil, nil, storetest.Str("b@example.com")},
		store.Row{nil, nil, nil, storetest.Str("a@example.com")},
		store.Row{nil, nil, nil, storetest.Str("b@example.com")},
	), nil)
	unit.On("Commit").Return(nil)
	svc, gw, pub := setup(unit)

	outcome, err := svc.CancelAct(context.Background(), gigID, actName)

	require.NoError(t, err)
	assert.Equal(t, StatusGigCancelled, outcome.Status)
	assert.Equal(t, []string{"b@example.com", "a@example.com"}, outcome.AffectedEmails)
	assert.False(t, outcome.Escalated)
	gw.AssertNumberOfCalls(t, "BeginUnit", 1)

	require.Len(t, pub.got, 1)
	assert.Equal(t, events.GigCancelled, pub.got[0].Type)
}

func TestCancelActEscalatesOnLineupViolation(t *testing.T) {
	narrowUnit := &storetest.MockUnit{}
	expectPreconditions(narrowUnit)
	narrowUnit.On("CallProcedure", mock.Anything, cancelActProcedure, []any{actID, gigID}).
		Return(store.EmptyRowSet(), &store.Error{Kind: store.KindRejected, Op: "query", Message: "cannot remove the headline act"})
	narrowUnit.On("Rollback").Return(nil)

	broadUnit := &storetest.MockUnit{}
	broadUnit.On("CallProcedure", mock.Anything, cancelGigProcedure, []any{gigID}).Return(
		storetest.Rows([]string{"customeremail"},
			store.Row{storetest.Str("a@example.com")},
			store.Row{storetest.Str("c@example.com")},
			store.Row{storetest.Str("a@example.com")},
		), nil)
	broadUnit.On("Commit").Return(nil)
	svc, gw, pub := setup(narrowUnit, broadUnit)

	outcome, err := svc.CancelAct(context.Background(), gigID, actName)

	require.NoError(t, err)
	assert.Equal(t, StatusGigCancelled, outcome.Status)
	assert.True(t, outcome.Escalated)
	assert.Equal(t, []string{"a@example.com", "c@example.com"}, outcome.AffectedEmails)
	gw.AssertNumberOfCalls(t, "BeginUnit", 2)
	narrowUnit.AssertCalled(t, "Rollback")
	narrowUnit.AssertNotCalled(t, "Commit")

	require.Len(t, pub.got, 1)
	payload := pub.got[0].Payload.(events.GigCancelledPayload)
	assert.Equal(t, actName, payload.CancelledAct)
}

func TestCancelActEscalationWithoutBookings(t *testing.T) {
	narrowUnit := &storetest.MockUnit{}
	expectPreconditions(narrowUnit)
	narrowUnit.On("CallProcedure", mock.Anything, cancelActProcedure, []any{actID, gigID}).
		Return(store.EmptyRowSet(), &store.Error{Kind: store.KindRejected, Message: "last act"})
	narrowUnit.On("Rollback").Return(nil)

	broadUnit := &storetest.MockUnit{}
	broadUnit.On("CallProcedure", mock.Anything, cancelGigProcedure, []any{gigID}).
		Return(storetest.Rows([]string{"customeremail"}), nil)
	broadUnit.On("Commit").Return(nil)
	svc, _, _ := setup(narrowUnit, broadUnit)

	outcome, err := svc.CancelAct(context.Background(), gigID, actName)

	require.NoError(t, err)
	assert.Equal(t, StatusGigCancelled, outcome.Status)
	assert.NotNil(t, outcome.AffectedEmails)
	assert.Empty(t, outcome.AffectedEmails)
}

func TestCancelActEscalationFailureIsOperationFailed(t *testing.T) {
	narrowUnit := &storetest.MockUnit{}
	expectPreconditions(narrowUnit)
	narrowUnit.On("CallProcedure", mock.Anything, cancelActProcedure, []any{actID, gigID}).
		Return(store.EmptyRowSet(), &store.Error{Kind: store.KindRejected, Message: "last act"})
	narrowUnit.On("Rollback").Return(nil)

	broadUnit := &storetest.MockUnit{}
	broadUnit.On("CallProcedure", mock.Anything, cancelGigProcedure, []any{gigID}).
		Return(store.EmptyRowSet(), store.NewError(store.KindUnavailable, "query", "connection reset"))
	broadUnit.On("Rollback").Return(nil)
	svc, _, pub := setup(narrowUnit, broadUnit)

	outcome, err := svc.CancelAct(context.Background(), gigID, actName)

	require.Error(t, err)
	assert.Equal(t, StatusFailed, outcome.Status)
	assert.Equal(t, "connection reset", outcome.Reason)
	broadUnit.AssertCalled(t, "Rollback")
	broadUnit.AssertNotCalled(t, "Commit")
	assert.Empty(t, pub.got)
}

func TestCancelActInfrastructureFailureDoesNotEscalate(t *testing.T) {
	unit := &storetest.MockUnit{}
	expectPreconditions(unit)
	unit.On("CallProcedure", mock.Anything, cancelActProcedure, []any{actID, gigID}).
		Return(store.EmptyRowSet(), store.NewError(store.KindUnavailable, "query", "server closed the connection"))
	unit.On("Rollback").Return(nil)
	svc, gw, pub := setup(unit)

	outcome, err := svc.CancelAct(context.Background(), gigID, actName)

	require.Error(t, err)
	assert.Equal(t, StatusFailed, outcome.Status)
	assert.Equal(t, store.KindUnavailable, store.KindOf(err))
	gw.AssertNumberOfCalls(t, "BeginUnit", 1)
	assert.Empty(t, pub.got)
}

func TestCancelActPreconditionsDoNotEscalate(t *testing.T) {
	tests := []struct {
		name   string
		expect func(u *storetest.MockUnit)
		kind   store.Kind
		reason string
	}{
		{
			name: "unknown gig",
			expect: func(u *storetest.MockUnit) {
				u.On("SelectOne", mock.Anything, mock.AnythingOfType("*models.Gig"), gigByID, []any{gigID}).Return(notFound())
			},
			kind:   store.KindNotFound,
			reason: "gig 4 does not exist",
		},
		{
			name: "gig already cancelled",
			expect: func(u *storetest.MockUnit) {
				expectGig(u, models.GigCancelled)
			},
			kind:   store.KindRejected,
			reason: "gig 4 is already Cancelled",
		},
		{
			name: "unknown act",
			expect: func(u *storetest.MockUnit) {
				expectGig(u, models.GigGoingAhead)
				u.On("SelectOne", mock.Anything, mock.AnythingOfType("*models.Act"), actByName, []any{actName}).Return(notFound())
			},
			kind:   store.KindNotFound,
			reason: `act "The Selecter" does not exist`,
		},
		{
			name: "act not in gig",
			expect: func(u *storetest.MockUnit) {
				expectGig(u, models.GigGoingAhead)
				expectAct(u)
				u.On("Exists", mock.Anything, (*models.ActPerformance)(nil), actInGig, []any{gigID, actID}).Return(false, nil)
			},
			kind:   store.KindNotFound,
			reason: `act "The Selecter" does not perform in gig 4`,
		},
		{
			name: "gig lookup fails",
			expect: func(u *storetest.MockUnit) {
				u.On("SelectOne", mock.Anything, mock.AnythingOfType("*models.Gig"), gigByID, []any{gigID}).
					Return(store.NewError(store.KindUnavailable, "select", "connection reset"))
			},
			kind:   store.KindUnavailable,
			reason: "connection reset",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			unit := &storetest.MockUnit{}
			tt.expect(unit)
			unit.On("Rollback").Return(nil)
			svc, gw, pub := setup(unit)

			outcome, err := svc.CancelAct(context.Background(), gigID, actName)

			require.Error(t, err)
			assert.Equal(t, tt.kind, store.KindOf(err))
			assert.Equal(t, StatusFailed, outcome.Status)
			assert.Equal(t, tt.reason, outcome.Reason)
			gw.AssertNumberOfCalls(t, "BeginUnit", 1)
			unit.AssertNotCalled(t, "CallProcedure", mock.Anything, mock.Anything, mock.Anything)
			assert.Empty(t, pub.got)
		})
	}
}

func TestCancelActBeginFailure(t *testing.T) {
	gw := &storetest.MockGateway{}
	gw.On("BeginUnit", mock.Anything).Return(nil, errors.New("dial tcp: connection refused"))

	outcome, err := NewService(gw, nil, nil).CancelAct(context.Background(), gigID, actName)

	require.Error(t, err)
	assert.Equal(t, StatusFailed, outcome.Status)
	gw.AssertNumberOfCalls(t, "BeginUnit", 1)
}

func TestInterpretFallsBackToColumnPositions(t *testing.T) {
	rs := storetest.Rows([]string{"a", "b", "c"},
		store.Row{storetest.Str("Act One"), storetest.Str("19:00"), storetest.Str("19:45")},
		store.Row{storetest.Str("Act Two"), storetest.Str("20:00"), nil},
	)

	outcome := interpret(gigID, rs)

	assert.Equal(t, StatusRemainingLineup, outcome.Status)
	assert.Equal(t, []models.LineupEntry{
		{ActName: "Act One", OnTime: "19:00", FinishTime: "19:45"},
		{ActName: "Act Two", OnTime: "20:00", FinishTime: ""},
	}, outcome.Lineup)
}

func TestInterpretAllNullEmailsIsLineup(t *testing.T) {
	outcome := interpret(gigID, lineupRows(
		store.Row{storetest.Str("Act One"), storetest.Str("19:00"), storetest.Str("19:45"), nil},
	))

	assert.Equal(t, StatusRemainingLineup, outcome.Status)
	assert.Len(t, outcome.Lineup, 1)
}
