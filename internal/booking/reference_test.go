package booking

import (
	"regexp"
	"testing"
	"time"

	"ms-marketplace/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestNewReference_Format(t *testing.T) {
	now := time.Date(2026, 1, 7, 23, 59, 0, 0, time.UTC)
	pattern := regexp.MustCompile(`^INV-20260107-[0-9A-F]{6}$`)

	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		ref := NewReference(now)
		assert.Regexp(t, pattern, ref)
		seen[ref] = true
	}
	assert.Greater(t, len(seen), 1)
}

func TestValidatePassengers(t *testing.T) {
	ok := []models.Passenger{{Type: "Adult", GivenName: "Ali", SurName: "Khan", Dob: "1990-04-02T00:00:00Z", ExpiryDate: "2030-01-01"}}
	assert.NoError(t, validatePassengers(ok, 1))
	assert.NoError(t, validatePassengers(nil, 3))

	assert.ErrorIs(t, validatePassengers(ok, 0), models.ErrInvalidInput)
	assert.ErrorIs(t, validatePassengers([]models.Passenger{{Type: "Senior", GivenName: "A", SurName: "B"}}, 1), models.ErrInvalidInput)
	assert.ErrorIs(t, validatePassengers([]models.Passenger{{Type: "Child", GivenName: "A"}}, 1), models.ErrInvalidInput)
	assert.ErrorIs(t, validatePassengers([]models.Passenger{{Type: "Infant", GivenName: "A", SurName: "B", Dob: "02/04/2024"}}, 1), models.ErrInvalidInput)
}
