package utils

import (
	"encoding/json"
	"net/http"
	"time"

	"ms-gigs/internal/store"
)

type APIResponse struct {
	Success   bool        `json:"success"`
	Message   string      `json:"message"`
	Data      interface{} `json:"data,omitempty"`
	Error     string      `json:"error,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

func SuccessResponse(message string, data interface{}) APIResponse {
	return APIResponse{
		Success:   true,
		Message:   message,
		Data:      data,
		Timestamp: time.Now(),
	}
}

func ErrorResponse(message, error string) APIResponse {
	return APIResponse{
		Success:   false,
		Message:   message,
		Error:     error,
		Timestamp: time.Now(),
	}
}

// StatusForKind maps a store error kind to the HTTP status the API answers with.
func StatusForKind(kind store.Kind) int {
	switch kind {
	case store.KindNotFound:
		return http.StatusNotFound
	case store.KindRejected:
		return http.StatusUnprocessableEntity
	case store.KindConstraint:
		return http.StatusConflict
	default:
		return http.StatusServiceUnavailable
	}
}

func WriteJSON(w http.ResponseWriter, status int, body APIResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// WriteError answers with the status for err's kind and the store message.
func WriteError(w http.ResponseWriter, message string, err error) {
	WriteJSON(w, StatusForKind(store.KindOf(err)), ErrorResponse(message, store.Message(err)))
}
