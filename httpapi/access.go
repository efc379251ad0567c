package httpapi

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/dmitrymomot/subsync/pkg/directory"
	"github.com/dmitrymomot/subsync/pkg/license"
	"github.com/dmitrymomot/subsync/pkg/logger"
)

type accessResponse struct {
	Subscribed bool            `json:"subscribed"`
	Access     *license.Access `json:"access,omitempty"`
	Banned     bool            `json:"banned,omitempty"`
}

// AccessHandler serves the effective-access read path: the subscription the
// authenticated user actually holds, after seat delegation and staleness
// bounds.
type AccessHandler struct {
	dir directory.Client
	log *slog.Logger
	now func() time.Time
}

// AccessOption configures optional handler collaborators.
type AccessOption func(*AccessHandler)

// WithAccessClock injects the time source. Intended for tests.
func WithAccessClock(now func() time.Time) AccessOption {
	return func(h *AccessHandler) {
		if now != nil {
			h.now = now
		}
	}
}

func NewAccessHandler(dir directory.Client, log *slog.Logger, opts ...AccessOption) *AccessHandler {
	h := &AccessHandler{dir: dir, log: logOrDefault(log), now: time.Now}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *AccessHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	user, err := h.dir.GetUser(r.Context(), userID)
	if err != nil {
		h.log.ErrorContext(r.Context(), "access lookup failed", logger.UserID(userID), logger.Error(err))
		writeError(w, statusFor(err), "access lookup failed")
		return
	}

	// Seat delegation reads the owner record: the user's own when they own
	// the team, the referenced one when they occupy someone else's seat.
	owner := user.Metadata
	if user.Metadata.Variant() == license.VariantTeamMember {
		ownerUser, err := h.dir.GetUser(r.Context(), user.Metadata.OwnerID)
		switch {
		case errors.Is(err, directory.ErrUserNotFound):
			owner = license.NoSubscription()
		case err != nil:
			h.log.ErrorContext(r.Context(), "owner lookup failed", logger.UserID(userID), logger.Error(err))
			writeError(w, statusFor(err), "access lookup failed")
			return
		default:
			owner = ownerUser.Metadata
		}
	}

	access, subscribed := license.EffectiveAccess(user.ID, user.Metadata, owner, h.now())
	resp := accessResponse{Subscribed: subscribed, Banned: user.Metadata.Banned}
	if subscribed {
		resp.Access = &access
	}
	writeJSON(w, http.StatusOK, resp)
}
