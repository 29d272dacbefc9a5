package response

import (
	"encoding/json"
	"net/http"

	"github.com/edvin/dbaas/internal/fault"
)

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// ErrorResponse is the wire shape of every error body.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

func WriteError(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, ErrorResponse{Error: message})
}

// WriteFault maps a fault kind onto its HTTP status and writes the error
// body. Unknown errors become plain 500s without leaking internals.
func WriteFault(w http.ResponseWriter, err error) {
	kind := fault.KindOf(err)
	status := statusFor(kind)

	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "internal error"
	}
	WriteJSON(w, status, ErrorResponse{Error: message, Kind: string(kind)})
}

func statusFor(kind fault.Kind) int {
	switch kind {
	case fault.InvalidModel, fault.BadRequest, fault.MissingKey, fault.BadValue,
		fault.QuotaResourceUnknown:
		return http.StatusBadRequest
	case fault.NotFound, fault.ComputeInstanceNotFound, fault.DNSRecordNotFound:
		return http.StatusNotFound
	case fault.UnprocessableEntity:
		return http.StatusUnprocessableEntity
	case fault.QuotaExceeded, fault.OverLimit:
		return http.StatusRequestEntityTooLarge
	case fault.GuestTimeout, fault.PollTimeout:
		return http.StatusGatewayTimeout
	case fault.GuestError, fault.VolumeCreationFailure, fault.SubstrateAuth, fault.ObjectStoreAuth:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// PaginatedResponse wraps a list with pagination metadata.
type PaginatedResponse struct {
	Items      any    `json:"items"`
	NextMarker string `json:"next_marker,omitempty"`
}

// WritePaginated writes a paginated JSON response.
func WritePaginated(w http.ResponseWriter, status int, items any, nextMarker string) {
	WriteJSON(w, status, PaginatedResponse{
		Items:      items,
		NextMarker: nextMarker,
	})
}
