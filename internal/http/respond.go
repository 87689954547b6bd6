package http

import (
	"encoding/json"
	"net/http"

	"github.com/cockroachdb/errors"
	"github.com/robertarktes/event-seat-inventory/internal/domain"
)

type errorBody struct {
	Error            string                   `json:"error"`
	Message          string                   `json:"message"`
	UnavailableSeats []domain.UnavailableSeat `json:"unavailable_seats,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// errorStatus maps an error kind to its HTTP status and error code.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest, "validation_error"
	case errors.Is(err, domain.ErrCapacityExceeded):
		return http.StatusConflict, "sold_out"
	case errors.Is(err, domain.ErrDestructiveOperation):
		return http.StatusConflict, "destructive_operation"
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict, "conflict"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := errorStatus(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		LoggerFrom(r.Context()).Error("request failed: ", err)
		msg = "internal error"
	}
	body := errorBody{Error: code, Message: msg}
	var unavailable *domain.SeatsUnavailableError
	if errors.As(err, &unavailable) {
		body.UnavailableSeats = unavailable.Seats
	}
	writeJSON(w, status, body)
}

func decodeJSON(r *http.Request, v interface{}) error {
	if err := decodeBody(r, v); err != nil {
		return err
	}
	return domain.ValidateStruct(v)
}

func decodeBody(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return domain.Validationf("request body exceeds %d bytes", tooLarge.Limit)
		}
		return domain.Validationf("invalid request body: %v", err)
	}
	return nil
}
