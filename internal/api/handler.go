package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"ms-gigs/internal/booking"
	"ms-gigs/internal/cancellation"
	"ms-gigs/internal/gigs"
	"ms-gigs/internal/logger"
	"ms-gigs/internal/store"
	"ms-gigs/internal/tickets/pass"
	"ms-gigs/internal/utils"
)

type Provisioner interface {
	Provision(ctx context.Context, req gigs.Request) (int64, error)
}

type Booker interface {
	BookTicket(ctx context.Context, req booking.Request) (booking.Result, error)
}

type Canceller interface {
	CancelAct(ctx context.Context, gigID int64, actName string) (cancellation.Outcome, error)
}

type Projections interface {
	Lineup(ctx context.Context, gigID int64) (store.RowSet, error)
	Report(ctx context.Context, name string) (store.RowSet, error)
}

type Handler struct {
	Gigs         Provisioner
	Bookings     Booker
	Cancellation Canceller
	Projections  Projections
	// Passes is optional; without it bookings carry no ticket pass.
	Passes *pass.Generator
	Logger *logger.Logger
}

type bookingRequest struct {
	CustomerName  string `json:"customer_name"`
	CustomerEmail string `json:"customer_email"`
	PriceType     string `json:"price_type"`
}

type bookingResponse struct {
	TicketID  int64  `json:"ticket_id"`
	PassToken string `json:"pass_token,omitempty"`
	PassQR    string `json:"pass_qr_png,omitempty"`
}

type passRequest struct {
	PassToken string `json:"pass_token"`
}

type cancellationRequest struct {
	ActName string `json:"act_name"`
}

func gigIDParam(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "gigId")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid gig id %q", raw)
	}
	return id, nil
}

func badRequest(w http.ResponseWriter, message string, err error) {
	utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse(message, err.Error()))
}

// ProvisionGig handles POST /api/gigs
func (h *Handler) ProvisionGig(w http.ResponseWriter, r *http.Request) {
	var req gigs.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "Invalid request body", err)
		return
	}

	gigID, err := h.Gigs.Provision(r.Context(), req)
	if err != nil {
		utils.WriteError(w, "Gig was not created", err)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, utils.SuccessResponse("Gig created", map[string]int64{"gig_id": gigID}))
}

// GetLineup handles GET /api/gigs/{gigId}/lineup
func (h *Handler) GetLineup(w http.ResponseWriter, r *http.Request) {
	gigID, err := gigIDParam(r)
	if err != nil {
		badRequest(w, "Invalid gig id", err)
		return
	}

	rs, err := h.Projections.Lineup(r.Context(), gigID)
	if err != nil {
		utils.WriteError(w, "Lineup unavailable", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse(fmt.Sprintf("Lineup of gig %d", gigID), rs))
}

// BookTicket handles POST /api/gigs/{gigId}/bookings
func (h *Handler) BookTicket(w http.ResponseWriter, r *http.Request) {
	gigID, err := gigIDParam(r)
	if err != nil {
		badRequest(w, "Invalid gig id", err)
		return
	}
	var body bookingRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		badRequest(w, "Invalid request body", err)
		return
	}

	req := booking.Request{
		GigID:         gigID,
		CustomerName:  strings.TrimSpace(body.CustomerName),
		CustomerEmail: strings.TrimSpace(body.CustomerEmail),
		PriceType:     strings.TrimSpace(body.PriceType),
	}
	res, err := h.Bookings.BookTicket(r.Context(), req)
	if err != nil {
		utils.WriteError(w, "Booking failed", err)
		return
	}
	if !res.Booked {
		utils.WriteJSON(w, utils.StatusForKind(res.Kind), utils.ErrorResponse("Booking rejected", res.Reason))
		return
	}

	resp := bookingResponse{TicketID: res.TicketID}
	if h.Passes != nil {
		token, png, err := h.Passes.Issue(pass.Pass{
			TicketID:      res.TicketID,
			GigID:         gigID,
			CustomerEmail: req.CustomerEmail,
			PriceType:     req.PriceType,
		})
		if err != nil {
			h.Logger.Warn("PASS", fmt.Sprintf("Issuing pass for ticket %d failed: %v", res.TicketID, err))
		} else {
			resp.PassToken = token
			resp.PassQR = base64.StdEncoding.EncodeToString(png)
		}
	}
	utils.WriteJSON(w, http.StatusCreated, utils.SuccessResponse("Ticket booked", resp))
}

// CancelAct handles POST /api/gigs/{gigId}/cancellations
func (h *Handler) CancelAct(w http.ResponseWriter, r *http.Request) {
	gigID, err := gigIDParam(r)
	if err != nil {
		badRequest(w, "Invalid gig id", err)
		return
	}
	var body cancellationRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		badRequest(w, "Invalid request body", err)
		return
	}
	if strings.TrimSpace(body.ActName) == "" {
		badRequest(w, "Invalid request body", fmt.Errorf("act_name is required"))
		return
	}

	outcome, err := h.Cancellation.CancelAct(r.Context(), gigID, body.ActName)
	if err != nil {
		utils.WriteError(w, "Cancellation failed", err)
		return
	}

	message := "Act cancelled"
	if outcome.Status == cancellation.StatusGigCancelled {
		message = "Gig cancelled"
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse(message, outcome))
}

// VerifyPass handles POST /api/passes/verify
func (h *Handler) VerifyPass(w http.ResponseWriter, r *http.Request) {
	if h.Passes == nil {
		utils.WriteJSON(w, http.StatusServiceUnavailable, utils.ErrorResponse("Pass verification unavailable", "ticket passes are not enabled"))
		return
	}
	var body passRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		badRequest(w, "Invalid request body", err)
		return
	}

	p, err := h.Passes.Open(strings.TrimSpace(body.PassToken))
	if err != nil {
		h.Logger.LogSecurity("PASS_REJECTED", err.Error())
		utils.WriteJSON(w, http.StatusUnprocessableEntity, utils.ErrorResponse("Pass rejected", err.Error()))
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse(fmt.Sprintf("Pass for ticket %d", p.TicketID), p))
}

// GetReport handles GET /api/reports/{report}
func (h *Handler) GetReport(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "report")

	rs, err := h.Projections.Report(r.Context(), name)
	if err != nil {
		utils.WriteError(w, "Report unavailable", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse(fmt.Sprintf("Report %s", name), rs))
}

func Health(w http.ResponseWriter, r *http.Request) {
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("ok", nil))
}
