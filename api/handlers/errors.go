package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/ruteri/certificate-trust-backend/api"
	"github.com/ruteri/certificate-trust-backend/interfaces"
)

// RequestError provides structured error information for HTTP responses.
// It includes both an HTTP status code and the underlying error.
type RequestError struct {
	// StatusCode is the HTTP status code to return.
	StatusCode int

	// Err is the underlying error.
	Err error
}

// Error returns the error message from the underlying error.
func (e *RequestError) Error() string {
	return e.Err.Error()
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

func badRequest(err error) error {
	return &RequestError{StatusCode: http.StatusBadRequest, Err: err}
}

// StatusFor maps an error returned by the coordinators, stores or readers to
// an HTTP status code.
func StatusFor(err error) int {
	var reqErr *RequestError
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &reqErr):
		return reqErr.StatusCode
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, interfaces.ErrBadRequest), errors.Is(err, interfaces.ErrInvalidLocationURI):
		return http.StatusBadRequest
	case errors.Is(err, interfaces.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, interfaces.ErrNotFound), errors.Is(err, interfaces.ErrContentNotFound):
		return http.StatusNotFound
	case errors.Is(err, interfaces.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, interfaces.ErrInsufficientFunds):
		return http.StatusPaymentRequired
	case errors.Is(err, interfaces.ErrUpstreamUnavailable), errors.Is(err, interfaces.ErrBackendUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError writes the JSON error body for err. Internal errors are logged
// and answered with a generic message.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	resp := api.ErrorResponse{Error: err.Error()}

	var funds *interfaces.InsufficientFundsError
	if errors.As(err, &funds) {
		resp.Balance = interfaces.FormatEther(funds.Balance)
		resp.Required = interfaces.FormatEther(funds.Required)
	}

	if status == http.StatusInternalServerError {
		h.log.Error("Request failed", slog.String("path", r.URL.Path), "err", err)
		resp.Error = http.StatusText(status)
	} else {
		h.log.Debug("Request rejected", slog.String("path", r.URL.Path), slog.Int("status", status), "err", err)
	}

	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
