package utils

import (
	"net/http"
	"time"

	"ms-marketplace/internal/models"
)

const DateLayout = "2006-01-02"

// ParseDate accepts a calendar date or an RFC3339 timestamp and returns it in UTC.
func ParseDate(s string) (time.Time, error) {
	if t, err := time.Parse(DateLayout, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, models.InvalidInput("bad date %q", s)
	}
	return t.UTC(), nil
}

// EndOfDay moves a date-only bound to the last instant of that day.
func EndOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 23, 59, 59, 999999999, time.UTC)
}

// DateRangeFromQuery reads optional start_date and end_date parameters.
// A date-only end_date covers the whole day.
func DateRangeFromQuery(r *http.Request) (models.DateRange, error) {
	var out models.DateRange
	q := r.URL.Query()
	if s := q.Get("start_date"); s != "" {
		t, err := ParseDate(s)
		if err != nil {
			return out, err
		}
		out.Start = &t
	}
	if s := q.Get("end_date"); s != "" {
		t, err := ParseDate(s)
		if err != nil {
			return out, err
		}
		if len(s) == len(DateLayout) {
			t = EndOfDay(t)
		}
		out.End = &t
	}
	if out.Start != nil && out.End != nil && out.End.Before(*out.Start) {
		return out, models.InvalidInput("end_date before start_date")
	}
	return out, nil
}
