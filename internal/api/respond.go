package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"gorm.io/gorm"

	"smtrack.dev/telemetry-hub/internal/ingest"
	"smtrack.dev/telemetry-hub/internal/query"
	"smtrack.dev/telemetry-hub/pkg/scope"
)

// errBadPayload rejects a request body that fails to decode or is missing
// required fields.
var errBadPayload = errors.New("invalid request payload")

type errorResponse struct {
	Error string `json:"error"`
}

// writeJSON serializes v with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps an error to a status code and a sanitized envelope.
// Validation failures carry their message; anything else is an internal error
// whose detail stays in the logs.
func writeError(w http.ResponseWriter, logger *slog.Logger, r *http.Request, err error) {
	switch {
	case errors.Is(err, scope.ErrUnknownRole):
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: err.Error()})
	case errors.Is(err, query.ErrForbidden):
		writeJSON(w, http.StatusForbidden, errorResponse{Error: err.Error()})
	case errors.Is(err, gorm.ErrRecordNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "not found"})
	case errors.Is(err, errBadPayload),
		errors.Is(err, query.ErrInvalidFilter),
		errors.Is(err, query.ErrInvalidSpan),
		errors.Is(err, ingest.ErrWrongYear),
		errors.Is(err, ingest.ErrInvalidReport):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	default:
		logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal server error"})
	}
}
