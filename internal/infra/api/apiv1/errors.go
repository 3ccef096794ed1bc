package apiv1

import (
	"encoding/json"
	"errors"
	"net/http"

	"momo-subscription/internal/domain"
)

type errorBody struct {
	Error                  string `json:"error"`
	Code                   string `json:"code"`
	RetryWithNewExternalID bool   `json:"retryWithNewExternalId"`
}

// mapError converts a use-case error into an HTTP status and a stable code.
// Storage and unknown failures are reported without their cause.
func mapError(err error) (int, errorBody) {
	switch {
	case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrInvalidArgument):
		return http.StatusBadRequest, errorBody{Error: err.Error(), Code: "validation_error"}
	case errors.Is(err, domain.ErrInvalidPayload):
		return http.StatusBadRequest, errorBody{Error: "invalid payload", Code: "invalid_payload"}
	case errors.Is(err, domain.ErrRateLimited):
		return http.StatusTooManyRequests, errorBody{Error: err.Error(), Code: "rate_limited"}
	case errors.Is(err, domain.ErrGatewayRejected):
		return http.StatusBadGateway, errorBody{Error: err.Error(), Code: "gateway_rejected", RetryWithNewExternalID: true}
	case errors.Is(err, domain.ErrGatewayUnavailable):
		return http.StatusServiceUnavailable, errorBody{Error: "payment gateway unavailable", Code: "gateway_unavailable", RetryWithNewExternalID: true}
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, errorBody{Error: "not found", Code: "not_found"}
	case errors.Is(err, domain.ErrStateConflict), errors.Is(err, domain.ErrAlreadyExists), errors.Is(err, domain.ErrConcurrentUpdate):
		return http.StatusConflict, errorBody{Error: err.Error(), Code: "conflict"}
	default:
		return http.StatusInternalServerError, errorBody{Error: "internal error", Code: "internal_error"}
	}
}

func writeError(w http.ResponseWriter, err error) {
	status, body := mapError(err)
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
