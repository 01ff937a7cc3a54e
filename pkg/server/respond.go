package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"proxycast-hq/flowscope/pkg/flow"
)

// errorBody is the JSON error envelope returned by every endpoint.
type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErrorMessage(w http.ResponseWriter, status int, kind, message string) {
	writeJSON(w, status, errorBody{Error: errorDetail{Type: kind, Message: message}})
}

// writeError maps the flow error taxonomy onto HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case flow.IsNotFound(err):
		writeErrorMessage(w, http.StatusNotFound, "not_found", err.Error())
	case flow.IsDuplicateID(err):
		writeErrorMessage(w, http.StatusConflict, "duplicate_id", err.Error())
	case flow.IsInvalidTransition(err):
		writeErrorMessage(w, http.StatusConflict, "invalid_transition", err.Error())
	case flow.IsInvalidExpression(err):
		writeErrorMessage(w, http.StatusBadRequest, "invalid_expression", err.Error())
	case flow.IsInvalidPolicy(err):
		writeErrorMessage(w, http.StatusBadRequest, "invalid_policy", err.Error())
	case flow.IsCapacityExceeded(err):
		writeErrorMessage(w, http.StatusServiceUnavailable, "capacity_exceeded", err.Error())
	case flow.IsSerializationFailure(err):
		writeErrorMessage(w, http.StatusInternalServerError, "serialization_failed", err.Error())
	default:
		writeErrorMessage(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

// decodeJSON decodes a request body, rejecting malformed JSON with a 400.
// Unrecognized fields are ignored and an empty body decodes into the zero
// value, so older consoles can keep posting requests a newer server no
// longer reads.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.Body == nil {
		return true
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return true
		}
		writeErrorMessage(w, http.StatusBadRequest, "invalid_request", "invalid JSON body: "+err.Error())
		return false
	}
	return true
}
