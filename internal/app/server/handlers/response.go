package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"chaty/internal/core/domain"
	"chaty/pkg/logging"
)

// envelope is the body of every JSON response.
type envelope struct {
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, message string, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Message: message, Data: data})
}

// writeError maps domain errors onto status codes. Internal failures are
// logged and hidden behind a generic message.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrConversationNotFound), errors.Is(err, domain.ErrMessageNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrUnauthenticated):
		status = http.StatusUnauthorized
	}
	if status == http.StatusInternalServerError {
		logging.FromContext(r.Context(), nil).ErrorContext(r.Context(), "http - handler - failed", logging.Err(err))
	}
	writeJSON(w, status, domain.PublicMessage(err), nil)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64*1024))
	if err := dec.Decode(v); err != nil {
		return domain.NewValidationError(domain.MsgInvalidPayload)
	}
	return nil
}

func queryLimit(r *http.Request) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil {
		return 0
	}
	return n
}
