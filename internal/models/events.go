package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	TopicBookingCreated          = "marketplace.booking.created"
	TopicBookingConfirmed        = "marketplace.booking.confirmed"
	TopicBookingRejected         = "marketplace.booking.rejected"
	TopicBookingCancelled        = "marketplace.booking.cancelled"
	TopicCreditApplied           = "marketplace.ledger.credit_applied"
	TopicInventoryReconciliation = "marketplace.inventory.reconciliation"
)

// AllTopics lists every topic the service publishes to.
var AllTopics = []string{
	TopicBookingCreated,
	TopicBookingConfirmed,
	TopicBookingRejected,
	TopicBookingCancelled,
	TopicCreditApplied,
	TopicInventoryReconciliation,
}

type BookingEvent struct {
	Type             string    `json:"type"`
	BookingID        string    `json:"booking_id"`
	BookingReference string    `json:"booking_reference"`
	TicketGroupID    string    `json:"ticket_group_id"`
	BuyerAgencyID    string    `json:"buyer_agency_id"`
	SellerAgencyID   string    `json:"seller_agency_id"`
	SeatsBooked      int       `json:"seats_booked"`
	Status           string    `json:"status"`
	ActorUserID      string    `json:"actor_user_id,omitempty"`
	Timestamp        time.Time `json:"timestamp"`
}

type CreditAppliedEvent struct {
	EntryID     string             `json:"entry_id"`
	AgencyID    string             `json:"agency_id"`
	CustomerID  string             `json:"customer_id,omitempty"`
	Amount      decimal.Decimal    `json:"amount"`
	Unallocated decimal.Decimal    `json:"unallocated"`
	Allocations []LedgerAllocation `json:"allocations"`
	Timestamp   time.Time          `json:"timestamp"`
}

// ReconciliationEvent flags a lot whose seat count may have drifted because
// a compensating release failed.
type ReconciliationEvent struct {
	TicketGroupID string    `json:"ticket_group_id"`
	Seats         int       `json:"seats"`
	Reason        string    `json:"reason"`
	Error         string    `json:"error"`
	Timestamp     time.Time `json:"timestamp"`
}
