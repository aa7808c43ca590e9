package models

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

const (
	BookingPending   = "pending"
	BookingConfirmed = "confirmed"
	BookingRejected  = "rejected"
	BookingCancelled = "cancelled"
)

const (
	PassengerAdult  = "Adult"
	PassengerChild  = "Child"
	PassengerInfant = "Infant"
)

type Passenger struct {
	Type           string `json:"type"`
	Title          string `json:"title"`
	GivenName      string `json:"given_name"`
	SurName        string `json:"sur_name"`
	PassportNumber string `json:"passport_number,omitempty"`
	Dob            string `json:"dob,omitempty"`
	ExpiryDate     string `json:"expiry_date,omitempty"`
}

// TicketBooking is a buyer's claim on seats from one ticket group.
// SeatsBooked never changes after creation.
type TicketBooking struct {
	bun.BaseModel `bun:"table:ticket_bookings"`

	ID               string          `bun:"id,pk" json:"id"`
	BookingReference string          `bun:"booking_reference,notnull,unique" json:"booking_reference"`
	BuyerAgencyID    string          `bun:"buyer_agency_id,notnull" json:"buyer_agency_id"`
	SellerAgencyID   string          `bun:"seller_agency_id,notnull" json:"seller_agency_id"`
	TicketGroupID    string          `bun:"ticket_group_id,notnull" json:"ticket_group_id"`
	SeatsBooked      int             `bun:"seats_booked,notnull" json:"seats_booked"`
	TotalPrice       decimal.Decimal `bun:"total_price,type:decimal(12,2),notnull" json:"total_price"`
	Passengers       []Passenger     `bun:"passengers,type:jsonb" json:"passengers"`
	Status           string          `bun:"status,notnull" json:"status"`
	IsReadByBuyer    bool            `bun:"is_read_by_buyer,notnull,default:false" json:"is_read_by_buyer"`
	IsReadBySeller   bool            `bun:"is_read_by_seller,notnull,default:false" json:"is_read_by_seller"`
	CreatedAt        time.Time       `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt        time.Time       `bun:"updated_at,notnull" json:"updated_at"`

	TicketGroup *TicketGroup `bun:"rel:belongs-to,join:ticket_group_id=id" json:"ticket_details,omitempty"`
}

type BookingRequest struct {
	TicketGroupID string      `json:"ticket_group_id"`
	SeatsBooked   int         `json:"seats_booked"`
	Passengers    []Passenger `json:"passengers"`
}

// BookingView decorates a booking with the other party's name for listings.
type BookingView struct {
	TicketBooking
	Counterparty string `json:"counterparty"`
}

const (
	ListSales     = "sales"
	ListPurchases = "purchases"
)

type UnreadCounts struct {
	Sales     int `json:"sales"`
	Purchases int `json:"purchases"`
}
