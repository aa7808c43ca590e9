package booking

import (
	"ms-marketplace/internal/models"
)

type Event string

const (
	EventConfirm Event = "confirm"
	EventReject  Event = "reject"
	EventCancel  Event = "cancel"
)

type edge struct {
	to      string
	release bool
}

// transitions is the complete booking lifecycle. Anything missing is an
// invalid transition; rejected and cancelled are terminal.
var transitions = map[string]map[Event]edge{
	models.BookingPending: {
		EventConfirm: {to: models.BookingConfirmed},
		EventReject:  {to: models.BookingRejected, release: true},
		EventCancel:  {to: models.BookingCancelled, release: true},
	},
	models.BookingConfirmed: {
		EventCancel: {to: models.BookingCancelled, release: true},
	},
}

// Next returns the target status and whether seats go back to the lot.
func Next(status string, ev Event) (string, bool, error) {
	e, ok := transitions[status][ev]
	if !ok {
		return "", false, &models.InvalidTransitionError{Status: status, Event: string(ev)}
	}
	return e.to, e.release, nil
}

// Allowed reports whether the actor's agency may fire ev on the booking.
// Only the seller confirms or rejects; either party may cancel. SuperAdmin
// gets no implicit party rights.
func Allowed(actor models.Actor, b *models.TicketBooking, ev Event) bool {
	if actor.AgencyID == "" {
		return false
	}
	isSeller := actor.AgencyID == b.SellerAgencyID
	isBuyer := actor.AgencyID == b.BuyerAgencyID
	switch ev {
	case EventConfirm, EventReject:
		return isSeller
	case EventCancel:
		return isSeller || isBuyer
	default:
		return false
	}
}

func topicFor(ev Event) string {
	switch ev {
	case EventConfirm:
		return models.TopicBookingConfirmed
	case EventReject:
		return models.TopicBookingRejected
	default:
		return models.TopicBookingCancelled
	}
}
