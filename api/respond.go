package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"log/slog"

	"github.com/garnizeh/cleardeal/internal/escrow"
	"github.com/garnizeh/cleardeal/pkg/requestid"
	"github.com/garnizeh/cleardeal/pkg/settlement"
)

type errorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("encode response", slog.Any("err", err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg, RequestID: w.Header().Get(requestid.Header)})
}

// writeEngineError maps lifecycle errors onto HTTP statuses.
func writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		ve  *escrow.ValidationError
		nf  *escrow.NotFoundError
		dup *escrow.DuplicateApplicationError
		ne  *escrow.NotEligibleError
		ns  *escrow.NotSelectedError
		nos *escrow.NoSubmissionError
		ce  *escrow.ConflictError
		se  *escrow.SettlementError
	)
	switch {
	case errors.As(err, &ve):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &ne):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.As(err, &nf):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &dup), errors.As(err, &ns), errors.As(err, &nos), errors.As(err, &ce):
		writeError(w, http.StatusConflict, err.Error())
	case errors.As(err, &se):
		status := http.StatusBadGateway
		if errors.Is(err, settlement.ErrTimeout) {
			status = http.StatusGatewayTimeout
		}
		writeError(w, status, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, "request timed out")
	default:
		logger.Error("request failed",
			slog.String("path", r.URL.Path),
			slog.String("request_id", requestid.FromRequest(r)),
			slog.Any("err", err),
		)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
