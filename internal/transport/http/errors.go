package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"wavelink-service/internal/domain"
)

// ErrorPayload is the body of REST errors and websocket "error" messages.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// classify maps domain errors to an HTTP status and a stable code.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrNoPairsAvailable):
		return http.StatusConflict, "no_pairs_available"
	case errors.Is(err, domain.ErrNoOpenTurn):
		return http.StatusConflict, "no_open_turn"
	case errors.Is(err, domain.ErrSlotFilled):
		return http.StatusConflict, "slot_filled"
	case errors.Is(err, domain.ErrInvalidSubmission):
		return http.StatusUnprocessableEntity, "invalid_submission"
	case errors.Is(err, domain.ErrInvalidGame):
		return http.StatusUnprocessableEntity, "invalid_game"
	case errors.Is(err, domain.ErrStandInUnavailable):
		return http.StatusServiceUnavailable, "stand_in_unavailable"
	case errors.Is(err, domain.ErrGameNotFound):
		return http.StatusNotFound, "game_not_found"
	case errors.Is(err, domain.ErrTurnNotFound):
		return http.StatusNotFound, "turn_not_found"
	case errors.Is(err, domain.ErrNotParticipant):
		return http.StatusForbidden, "not_participant"
	}
	return http.StatusInternalServerError, "internal"
}

func errorPayload(err error) ErrorPayload {
	status, code := classify(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal error"
	}
	return ErrorPayload{Code: code, Message: msg}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, _ := classify(err)
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	}
	writeJSON(w, status, errorPayload(err))
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
