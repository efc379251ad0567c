package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dmitrymomot/subsync/pkg/directory"
	"github.com/dmitrymomot/subsync/pkg/subscription"
	"github.com/dmitrymomot/subsync/pkg/team"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// statusFor maps domain errors onto the narrowest correct status code.
func statusFor(err error) int {
	switch {
	case errors.Is(err, subscription.ErrValidation),
		errors.Is(err, team.ErrDuplicateEntries),
		errors.Is(err, directory.ErrInvalidEmail):
		return http.StatusBadRequest

	case errors.Is(err, team.ErrNotTeamOwner),
		errors.Is(err, team.ErrSeatLocked):
		return http.StatusForbidden

	case errors.Is(err, team.ErrSeatLimitExceeded),
		errors.Is(err, team.ErrAlreadyMember),
		errors.Is(err, team.ErrOnAnotherTeam),
		errors.Is(err, team.ErrHasSubscription),
		errors.Is(err, team.ErrInconsistentMembership),
		errors.Is(err, subscription.ErrMemberConflict):
		return http.StatusConflict

	case errors.Is(err, directory.ErrUserNotFound):
		return http.StatusNotFound

	case errors.Is(err, directory.ErrUpstream),
		errors.Is(err, directory.ErrUnauthorized),
		errors.Is(err, team.ErrPartialUpdate):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
