package booking

import (
	"strings"
	"time"

	"ms-marketplace/internal/models"

	"github.com/shopspring/decimal"
)

var passengerTypes = map[string]bool{
	models.PassengerAdult:  true,
	models.PassengerChild:  true,
	models.PassengerInfant: true,
}

// validatePassengers checks the manifest. An empty manifest is allowed so a
// buyer can hold seats before names are known.
func validatePassengers(passengers []models.Passenger, seats int) error {
	if len(passengers) > seats {
		return models.InvalidInput("%d passengers for %d seats", len(passengers), seats)
	}
	for i, p := range passengers {
		if !passengerTypes[p.Type] {
			return models.InvalidInput("passenger %d: type must be Adult, Child or Infant", i+1)
		}
		if strings.TrimSpace(p.GivenName) == "" || strings.TrimSpace(p.SurName) == "" {
			return models.InvalidInput("passenger %d: given_name and sur_name are required", i+1)
		}
		for field, v := range map[string]string{"dob": p.Dob, "expiry_date": p.ExpiryDate} {
			if v == "" {
				continue
			}
			if _, err := parseDay(v); err != nil {
				return models.InvalidInput("passenger %d: %s must be YYYY-MM-DD", i+1, field)
			}
		}
	}
	return nil
}

// parseDay accepts a date or an RFC 3339 timestamp and keeps the date part.
func parseDay(v string) (time.Time, error) {
	if i := strings.IndexByte(v, 'T'); i > 0 {
		v = v[:i]
	}
	return time.Parse("2006-01-02", v)
}

func decimalFromInt(n int) decimal.Decimal {
	return decimal.NewFromInt(int64(n))
}
