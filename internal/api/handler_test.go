package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"ms-gigs/internal/auth"
	"ms-gigs/internal/booking"
	"ms-gigs/internal/cancellation"
	"ms-gigs/internal/gigs"
	"ms-gigs/internal/logger"
	"ms-gigs/internal/models"
	"ms-gigs/internal/store"
	"ms-gigs/internal/store/storetest"
	"ms-gigs/internal/tickets/pass"
)

type MockServices struct {
	mock.Mock
}

func (m *MockServices) Provision(ctx context.Context, req gigs.Request) (int64, error) {
	args := m.Called(req)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockServices) BookTicket(ctx context.Context, req booking.Request) (booking.Result, error) {
	args := m.Called(req)
	return args.Get(0).(booking.Result), args.Error(1)
}

func (m *MockServices) CancelAct(ctx context.Context, gigID int64, actName string) (cancellation.Outcome, error) {
	args := m.Called(gigID, actName)
	return args.Get(0).(cancellation.Outcome), args.Error(1)
}

func (m *MockServices) Lineup(ctx context.Context, gigID int64) (store.RowSet, error) {
	args := m.Called(gigID)
	return args.Get(0).(store.RowSet), args.Error(1)
}

func (m *MockServices) Report(ctx context.Context, name string) (store.RowSet, error) {
	args := m.Called(name)
	return args.Get(0).(store.RowSet), args.Error(1)
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func newRouter(svc *MockServices, passes *pass.Generator, authn func(http.Handler) http.Handler) http.Handler {
	return NewRouter(&Handler{
		Gigs:         svc,
		Bookings:     svc,
		Cancellation: svc,
		Projections:  svc,
		Passes:       passes,
		Logger:       logger.NewNopLogger(),
	}, authn, nil, nil)
}

func do(t *testing.T, h http.Handler, method, path, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var env envelope
	if rec.Header().Get("Content-Type") == "application/json" {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec, env
}

func TestProvisionGig(t *testing.T) {
	svc := &MockServices{}
	start := time.Date(2026, time.November, 3, 19, 0, 0, 0, time.UTC)
	svc.On("Provision", gigs.Request{
		VenueName:        "Arena Venue",
		Title:            "Autumn Night",
		Start:            start,
		AdultTicketPrice: 40,
		Performances:     []gigs.Performance{{ActID: 2, Fee: 300, OnTime: start, Duration: 45}},
	}).Return(int64(17), nil)

	rec, env := do(t, newRouter(svc, nil, nil), http.MethodPost, "/api/gigs", `{
		"venue_name": "Arena Venue",
		"title": "Autumn Night",
		"start": "2026-11-03T19:00:00Z",
		"adult_ticket_price": 40,
		"performances": [{"act_id": 2, "fee": 300, "on_time": "2026-11-03T19:00:00Z", "duration": 45}]
	}`)

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.True(t, env.Success)
	assert.JSONEq(t, `{"gig_id": 17}`, string(env.Data))
}

func TestProvisionGigErrorKinds(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"unknown venue", store.NewError(store.KindNotFound, "resolve venue", `venue "X" not found`), http.StatusNotFound},
		{"invalid request", store.NewError(store.KindRejected, "provision gig", "title is required"), http.StatusUnprocessableEntity},
		{"overlap", store.NewError(store.KindConstraint, "execute", "performances overlap"), http.StatusConflict},
		{"store down", store.NewError(store.KindUnavailable, "begin unit", "connection refused"), http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &MockServices{}
			svc.On("Provision", mock.Anything).Return(int64(0), tt.err)

			rec, env := do(t, newRouter(svc, nil, nil), http.MethodPost, "/api/gigs", `{"venue_name":"X"}`)

			assert.Equal(t, tt.status, rec.Code)
			assert.False(t, env.Success)
			assert.Equal(t, store.Message(tt.err), env.Error)
		})
	}
}

func TestProvisionGigBadJSON(t *testing.T) {
	svc := &MockServices{}

	rec, _ := do(t, newRouter(svc, nil, nil), http.MethodPost, "/api/gigs", `{"venue_name":`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	svc.AssertNotCalled(t, "Provision", mock.Anything)
}

func TestGetLineup(t *testing.T) {
	svc := &MockServices{}
	svc.On("Lineup", int64(5)).Return(storetest.Rows([]string{"actname", "ontime", "finish_time"},
		store.Row{storetest.Str("The Selecter"), storetest.Str("19:00"), nil}), nil)

	rec, env := do(t, newRouter(svc, nil, nil), http.MethodGet, "/api/gigs/5/lineup", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"columns":["actname","ontime","finish_time"],"rows":[["The Selecter","19:00",null]]}`, string(env.Data))
}

func TestGetLineupInvalidID(t *testing.T) {
	svc := &MockServices{}

	rec, _ := do(t, newRouter(svc, nil, nil), http.MethodGet, "/api/gigs/abc/lineup", "")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	svc.AssertNotCalled(t, "Lineup", mock.Anything)
}

func TestBookTicketIssuesPass(t *testing.T) {
	svc := &MockServices{}
	svc.On("BookTicket", booking.Request{GigID: 5, CustomerName: "Jo", CustomerEmail: "jo@example.com", PriceType: "A"}).
		Return(booking.Result{Booked: true, TicketID: 33}, nil)
	passes, err := pass.NewGenerator("pass-secret")
	require.NoError(t, err)

	rec, env := do(t, newRouter(svc, passes, nil), http.MethodPost, "/api/gigs/5/bookings",
		`{"customer_name":" Jo ","customer_email":"jo@example.com","price_type":"A"}`)

	require.Equal(t, http.StatusCreated, rec.Code)
	var data bookingResponse
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, int64(33), data.TicketID)
	assert.NotEmpty(t, data.PassQR)

	p, err := passes.Open(data.PassToken)
	require.NoError(t, err)
	assert.Equal(t, int64(33), p.TicketID)
	assert.Equal(t, int64(5), p.GigID)
	assert.Equal(t, "jo@example.com", p.CustomerEmail)
}

func TestVerifyPass(t *testing.T) {
	passes, err := pass.NewGenerator("pass-secret")
	require.NoError(t, err)
	token, _, err := passes.Issue(pass.Pass{TicketID: 33, GigID: 5, CustomerEmail: "jo@example.com", PriceType: "A"})
	require.NoError(t, err)
	h := newRouter(&MockServices{}, passes, nil)

	rec, env := do(t, h, http.MethodPost, "/api/passes/verify", `{"pass_token":"`+token+`"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	var p pass.Pass
	require.NoError(t, json.Unmarshal(env.Data, &p))
	assert.Equal(t, int64(33), p.TicketID)
	assert.Equal(t, "jo@example.com", p.CustomerEmail)

	other, err := pass.NewGenerator("another-secret")
	require.NoError(t, err)
	forged, _, err := other.Issue(pass.Pass{TicketID: 34})
	require.NoError(t, err)

	rec, env = do(t, h, http.MethodPost, "/api/passes/verify", `{"pass_token":"`+forged+`"}`)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, pass.ErrInvalidPass.Error(), env.Error)
}

func TestVerifyPassWithoutGenerator(t *testing.T) {
	rec, _ := do(t, newRouter(&MockServices{}, nil, nil), http.MethodPost, "/api/passes/verify", `{"pass_token":"x"}`)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestBookTicketRejected(t *testing.T) {
	svc := &MockServices{}
	svc.On("BookTicket", mock.Anything).
		Return(booking.Result{Booked: false, Kind: store.KindRejected, Reason: "price type Z does not exist for gig 5"}, nil)

	rec, env := do(t, newRouter(svc, nil, nil), http.MethodPost, "/api/gigs/5/bookings",
		`{"customer_name":"Jo","customer_email":"jo@example.com","price_type":"Z"}`)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "price type Z does not exist for gig 5", env.Error)
}

func TestBookTicketUnavailable(t *testing.T) {
	svc := &MockServices{}
	svc.On("BookTicket", mock.Anything).
		Return(booking.Result{}, store.NewError(store.KindUnavailable, "query", "connection reset"))

	rec, _ := do(t, newRouter(svc, nil, nil), http.MethodPost, "/api/gigs/5/bookings", `{}`)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestCancelAct(t *testing.T) {
	svc := &MockServices{}
	svc.On("CancelAct", int64(5), "The Selecter").Return(cancellation.Outcome{
		Status: cancellation.StatusRemainingLineup,
		GigID:  5,
		Lineup: []models.LineupEntry{{ActName: "ViewBee 40", OnTime: "20:00", FinishTime: "21:00"}},
	}, nil)

	rec, env := do(t, newRouter(svc, nil, nil), http.MethodPost, "/api/gigs/5/cancellations", `{"act_name":"The Selecter"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Act cancelled", env.Message)
	var outcome cancellation.Outcome
	require.NoError(t, json.Unmarshal(env.Data, &outcome))
	assert.Equal(t, cancellation.StatusRemainingLineup, outcome.Status)
	assert.Len(t, outcome.Lineup, 1)
}

func TestCancelActEscalated(t *testing.T) {
	svc := &MockServices{}
	svc.On("CancelAct", int64(5), "ViewBee 40").Return(cancellation.Outcome{
		Status:         cancellation.StatusGigCancelled,
		GigID:          5,
		AffectedEmails: []string{"a@example.com"},
		Escalated:      true,
	}, nil)

	rec, env := do(t, newRouter(svc, nil, nil), http.MethodPost, "/api/gigs/5/cancellations", `{"act_name":"ViewBee 40"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Gig cancelled", env.Message)
	assert.Contains(t, string(env.Data), "a@example.com")
}

func TestCancelActRequiresName(t *testing.T) {
	svc := &MockServices{}

	rec, _ := do(t, newRouter(svc, nil, nil), http.MethodPost, "/api/gigs/5/cancellations", `{"act_name":"  "}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	svc.AssertNotCalled(t, "CancelAct", mock.Anything, mock.Anything)
}

func TestCancelActNotFound(t *testing.T) {
	svc := &MockServices{}
	svc.On("CancelAct", int64(5), "Nobody").
		Return(cancellation.Outcome{Status: cancellation.StatusFailed}, store.NewError(store.KindNotFound, "cancel act", `act "Nobody" does not exist`))

	rec, env := do(t, newRouter(svc, nil, nil), http.MethodPost, "/api/gigs/5/cancellations", `{"act_name":"Nobody"}`)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, `act "Nobody" does not exist`, env.Error)
}

func TestGetReport(t *testing.T) {
	svc := &MockServices{}
	svc.On("Report", "feasible-gigs").Return(storetest.Rows([]string{"gigid", "tickets"}), nil)
	svc.On("Report", "nope").Return(store.EmptyRowSet(), store.NewError(store.KindNotFound, "report", `unknown report "nope"`))
	router := newRouter(svc, nil, nil)

	rec, env := do(t, router, http.MethodGet, "/api/reports/feasible-gigs", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"columns":["gigid","tickets"],"rows":[]}`, string(env.Data))

	rec, _ = do(t, router, http.MethodGet, "/api/reports/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMutationsRequireTokenWhenConfigured(t *testing.T) {
	svc := &MockServices{}
	svc.On("Lineup", int64(5)).Return(store.EmptyRowSet(), nil)
	svc.On("Provision", mock.Anything).Return(int64(1), nil)
	router := newRouter(svc, nil, auth.Middleware("secret", "gig-service", nil))

	rec, _ := do(t, router, http.MethodGet, "/api/gigs/5/lineup", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = do(t, router, http.MethodPost, "/api/gigs", `{}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	svc.AssertNotCalled(t, "Provision", mock.Anything)

	token, err := auth.IssueToken("secret", "gig-service", "box-office", time.Minute)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/gigs", strings.NewReader(`{}`))
	req.Header.Set("Authorization", "Bearer "+token)
	authed := httptest.NewRecorder()
	router.ServeHTTP(authed, req)
	assert.Equal(t, http.StatusCreated, authed.Code)
}

func TestHealth(t *testing.T) {
	rec, env := do(t, newRouter(&MockServices{}, nil, nil), http.MethodGet, "/health", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, env.Success)
}

func TestCORSPreflight(t *testing.T) {
	h := NewRouter(&Handler{}, nil, []string{"https://box-office.example.com"}, nil)

	req := httptest.NewRequest(http.MethodOptions, "/api/gigs", nil)
	req.Header.Set("Origin", "https://box-office.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "https://box-office.example.com", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodOptions, "/api/gigs", nil)
	req.Header.Set("Origin", "https://elsewhere.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}
