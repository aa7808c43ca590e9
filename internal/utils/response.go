package utils

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"ms-marketplace/internal/models"
)

type APIResponse struct {
	Success        bool        `json:"success"`
	Message        string      `json:"message,omitempty"`
	Data           interface{} `json:"data,omitempty"`
	Error          string      `json:"error,omitempty"`
	AvailableSeats *int        `json:"available_seats,omitempty"`
	Status         string      `json:"status,omitempty"`
	Timestamp      time.Time   `json:"timestamp"`
}

func SuccessResponse(message string, data interface{}) APIResponse {
	return APIResponse{
		Success:   true,
		Message:   message,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}
}

func ErrorResponse(message, error string) APIResponse {
	return APIResponse{
		Success:   false,
		Message:   message,
		Error:     error,
		Timestamp: time.Now().UTC(),
	}
}

func WriteJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func WriteSuccess(w http.ResponseWriter, status int, message string, data interface{}) {
	WriteJSON(w, status, SuccessResponse(message, data))
}

// ErrorStatus maps a domain error to its HTTP status code.
func ErrorStatus(err error) int {
	switch {
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrClosed), errors.Is(err, models.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, models.ErrInsufficientSeats),
		errors.Is(err, models.ErrInvalidTransition),
		errors.Is(err, models.ErrConcurrentUpdate):
		return http.StatusConflict
	case errors.Is(err, models.ErrPersistence):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// WriteError writes err as an error envelope. Seat shortfalls carry the
// remaining count and refused transitions carry the current status.
func WriteError(w http.ResponseWriter, message string, err error) {
	status := ErrorStatus(err)
	resp := ErrorResponse(message, err.Error())
	if status == http.StatusInternalServerError || status == http.StatusServiceUnavailable {
		resp.Error = http.StatusText(status)
	}

	var seats *models.InsufficientSeatsError
	if errors.As(err, &seats) {
		n := seats.Available
		resp.AvailableSeats = &n
	}
	var trans *models.InvalidTransitionError
	if errors.As(err, &trans) {
		resp.Status = trans.Status
	}
	WriteJSON(w, status, resp)
}

// DecodeJSON reads the request body into v, rejecting unknown fields.
func DecodeJSON(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return models.InvalidInput("malformed request body: %v", err)
	}
	return nil
}
