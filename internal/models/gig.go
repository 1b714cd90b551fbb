package models

import (
	"time"

	"github.com/uptrace/bun"
)

type GigStatus string

const (
	GigGoingAhead GigStatus = "GoingAhead"
	GigCancelled  GigStatus = "Cancelled"
)

// StandardAdultPriceType is the tier every provisioned gig starts with.
const StandardAdultPriceType = "A"

type Venue struct {
	bun.BaseModel `bun:"table:venue"`

	VenueID   int64  `bun:"venueid,pk,autoincrement" json:"venue_id"`
	VenueName string `bun:"venuename,unique,notnull" json:"venue_name"`
	HireCost  int    `bun:"hirecost,notnull" json:"hire_cost"`
	Capacity  int    `bun:"capacity,notnull" json:"capacity"`
}

type Act struct {
	bun.BaseModel `bun:"table:act"`

	ActID       int64  `bun:"actid,pk,autoincrement" json:"act_id"`
	ActName     string `bun:"actname,unique,notnull" json:"act_name"`
	Genre       string `bun:"genre" json:"genre"`
	StandardFee int    `bun:"standardfee,notnull" json:"standard_fee"`
}

type Gig struct {
	bun.BaseModel `bun:"table:gig"`

	GigID       int64     `bun:"gigid,pk,autoincrement" json:"gig_id"`
	VenueID     int64     `bun:"venueid,notnull" json:"venue_id"`
	GigTitle    string    `bun:"gigtitle,notnull" json:"gig_title"`
	GigDateTime time.Time `bun:"gigdatetime,notnull" json:"gig_datetime"`
	GigStatus   GigStatus `bun:"gigstatus,notnull" json:"gig_status"`
}

// ActPerformance is one act's slot in a gig's lineup. Duration is in minutes;
// the finish time is derived by the store.
type ActPerformance struct {
	bun.BaseModel `bun:"table:act_gig"`

	ActID     int64     `bun:"actid,pk" json:"act_id"`
	GigID     int64     `bun:"gigid,pk" json:"gig_id"`
	ActGigFee int       `bun:"actgigfee,notnull" json:"fee"`
	OnTime    time.Time `bun:"ontime,pk" json:"on_time"`
	Duration  int       `bun:"duration,notnull" json:"duration"`
}

type TicketTier struct {
	bun.BaseModel `bun:"table:gig_ticket"`

	GigID     int64  `bun:"gigid,pk" json:"gig_id"`
	PriceType string `bun:"pricetype,pk" json:"price_type"`
	Price     int    `bun:"price,notnull" json:"price"`
}

// Ticket is a booking. Customers exist only as the email captured here.
type Ticket struct {
	bun.BaseModel `bun:"table:ticket"`

	TicketID      int64  `bun:"ticketid,pk,autoincrement" json:"ticket_id"`
	GigID         int64  `bun:"gigid,notnull" json:"gig_id"`
	PriceType     string `bun:"pricetype,notnull" json:"price_type"`
	Cost          int    `bun:"cost,notnull" json:"cost"`
	CustomerName  string `bun:"customername,notnull" json:"customer_name"`
	CustomerEmail string `bun:"customeremail,notnull" json:"customer_email"`
}

type LineupEntry struct {
	ActName    string `json:"act_name"`
	OnTime     string `json:"on_time"`
	FinishTime string `json:"finish_time"`
}
