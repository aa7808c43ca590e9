package models

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

const (
	TicketGroupActive = "active"
	TicketGroupClosed = "closed"
)

// TicketGroup is a seller-owned lot of seats on a single flight.
// AvailableSeats is only ever decremented or incremented by the
// reservation engine; every other write clamps it to [0, TotalSeats].
type TicketGroup struct {
	bun.BaseModel `bun:"table:ticket_groups"`

	ID                  string          `bun:"id,pk" json:"id"`
	AgencyID            string          `bun:"agency_id,notnull" json:"agency_id"`
	Airline             string          `bun:"airline,notnull" json:"airline"`
	Sector              string          `bun:"sector,notnull" json:"sector"`
	TravelType          string          `bun:"travel_type,notnull" json:"travel_type"`
	FlightNo            string          `bun:"flight_no,notnull" json:"flight_no"`
	Date                time.Time       `bun:"date,notnull" json:"date"`
	DepartureTime       string          `bun:"departure_time" json:"departure_time,omitempty"`
	ArrivalTime         string          `bun:"arrival_time" json:"arrival_time,omitempty"`
	ReturnFlightNo      string          `bun:"return_flight_no" json:"return_flight_no,omitempty"`
	ReturnDate          *time.Time      `bun:"return_date" json:"return_date,omitempty"`
	ReturnDepartureTime string          `bun:"return_departure_time" json:"return_departure_time,omitempty"`
	ReturnArrivalTime   string          `bun:"return_arrival_time" json:"return_arrival_time,omitempty"`
	Baggage             string          `bun:"baggage" json:"baggage,omitempty"`
	Meal                bool            `bun:"meal,notnull,default:false" json:"meal"`
	PricePerSeat        decimal.Decimal `bun:"price_per_seat,type:decimal(12,2),notnull" json:"price_per_seat"`
	TotalSeats          int             `bun:"total_seats,notnull" json:"total_seats"`
	AvailableSeats      int             `bun:"available_seats,notnull" json:"available_seats"`
	Status              string          `bun:"status,notnull,default:'active'" json:"status"`
	CreatedAt           time.Time       `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt           time.Time       `bun:"updated_at,notnull" json:"updated_at"`
}

// ClampSeats pulls AvailableSeats back into [0, TotalSeats].
func (g *TicketGroup) ClampSeats() {
	if g.AvailableSeats > g.TotalSeats {
		g.AvailableSeats = g.TotalSeats
	}
	if g.AvailableSeats < 0 {
		g.AvailableSeats = 0
	}
}

// TicketGroupUpdate carries the fields an owner may edit. Nil means unchanged.
type TicketGroupUpdate struct {
	Airline             *string          `json:"airline"`
	Sector              *string          `json:"sector"`
	TravelType          *string          `json:"travel_type"`
	FlightNo            *string          `json:"flight_no"`
	Date                *time.Time       `json:"date"`
	DepartureTime       *string          `json:"departure_time"`
	ArrivalTime         *string          `json:"arrival_time"`
	ReturnFlightNo      *string          `json:"return_flight_no"`
	ReturnDate          *time.Time       `json:"return_date"`
	ClearReturnDate     bool             `json:"-"`
	ReturnDepartureTime *string          `json:"return_departure_time"`
	ReturnArrivalTime   *string          `json:"return_arrival_time"`
	Baggage             *string          `json:"baggage"`
	Meal                *bool            `json:"meal"`
	PricePerSeat        *decimal.Decimal `json:"price_per_seat"`
	TotalSeats          *int             `json:"total_seats"`
}

// TicketGroupFilter narrows a marketplace listing.
type TicketGroupFilter struct {
	Sector     string
	Airline    string
	TravelType string
	Date       *time.Time
	Status     string
	OwnedOnly  bool

	// Viewer scoping: non-admin viewers see open future lots plus their own.
	ViewerAgencyID string
	ViewerIsAdmin  bool
	Today          time.Time

	Page      int
	Limit     int
	SortBy    string
	SortOrder string
}

type TicketGroupPage struct {
	TicketGroups []TicketGroup `json:"ticket_groups"`
	Total        int           `json:"total"`
	Page         int           `json:"page"`
	Limit        int           `json:"limit"`
}

// MarketplaceStats is the global sold/available headline.
type MarketplaceStats struct {
	ActiveTickets int `json:"active_tickets"`
	SoldTickets   int `json:"sold_tickets"`
}
