package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/dmitrymomot/subsync/pkg/logger"
	"github.com/dmitrymomot/subsync/pkg/team"
)

// SeatManager is the handler's view of the team seat manager.
type SeatManager interface {
	UpdateTeam(ctx context.Context, ownerID string, upd team.Update) error
}

type teamUpdateRequest struct {
	IDsToRemove []string `json:"ids_to_remove"`
	EmailsToAdd []string `json:"emails_to_add"`
}

// TeamHandler serves the authenticated team-management endpoint. The
// authenticated user is always the team owner being modified.
type TeamHandler struct {
	manager SeatManager
	log     *slog.Logger
}

func NewTeamHandler(manager SeatManager, log *slog.Logger) *TeamHandler {
	return &TeamHandler{manager: manager, log: logOrDefault(log)}
}

func (h *TeamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	var req teamUpdateRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.IDsToRemove) == 0 && len(req.EmailsToAdd) == 0 {
		writeError(w, http.StatusBadRequest, "nothing to change")
		return
	}

	err := h.manager.UpdateTeam(r.Context(), ownerID, team.Update{
		IDsToRemove: req.IDsToRemove,
		EmailsToAdd: req.EmailsToAdd,
	})
	if err != nil {
		h.log.ErrorContext(r.Context(), "team update failed",
			logger.UserID(ownerID),
			logger.Error(err),
		)
		writeError(w, statusFor(err), err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"updated": true})
}
