package events

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

type recorder struct {
	got []Event
	err error
}

func (r *recorder) Publish(_ context.Context, e Event) error {
	r.got = append(r.got, e)
	return r.err
}

func TestNewAssignsIdentity(t *testing.T) {
	a := New(GigCancelled, 7, GigCancelledPayload{AffectedEmails: []string{"a@x.com"}})
	b := New(GigCancelled, 7, nil)

	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, int64(7), a.GigID)
	assert.False(t, a.OccurredAt.IsZero())
}

func TestMultiPublishesToAllAndJoinsErrors(t *testing.T) {
	ok := &recorder{}
	failing := &recorder{err: errors.New("broker down")}
	m := Multi{ok, nil, failing, Nop{}}

	err := m.Publish(context.Background(), New(TicketBooked, 1, nil))

	assert.ErrorContains(t, err, "broker down")
	assert.Len(t, ok.got, 1)
	assert.Len(t, failing.got, 1)
}

func TestMultiWithoutFailuresReturnsNil(t *testing.T) {
	assert.NoError(t, Multi{&recorder{}, Nop{}}.Publish(context.Background(), New(GigProvisioned, 1, nil)))
}
