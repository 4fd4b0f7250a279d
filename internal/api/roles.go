package api

import (
	"net/http"

	"go.uber.org/zap"
)

// EventUserRoleChanged is routed beside the fan-out events but only refreshes
// recipient caches; it notifies nobody.
const EventUserRoleChanged = "user-role-changed"

// UserRoleChanged is the body of POST /internal/events/user-role-changed.
type UserRoleChanged struct {
	UserID       string `json:"userId" validate:"required"`
	PreviousRole string `json:"previousRole"`
	Role         string `json:"role" validate:"required"`
}

// UserRoleChanged handles POST /internal/events/user-role-changed. It drops
// the cached recipient sets of both roles so broadcasts pick up the change
// immediately instead of after the cache TTL.
func (h *Handler) UserRoleChanged(w http.ResponseWriter, r *http.Request) {
	var ev UserRoleChanged
	if err := decode(r, &ev); err != nil {
		h.writeError(w, http.StatusBadRequest, "validation_error", "Invalid event payload", err.Error())
		return
	}

	roles := []string{ev.Role}
	if ev.PreviousRole != "" && ev.PreviousRole != ev.Role {
		roles = append(roles, ev.PreviousRole)
	}

	if h.roles != nil {
		for _, role := range roles {
			if err := h.roles.ForgetRole(r.Context(), role); err != nil {
				h.logger.Error("failed to invalidate recipient cache",
					zap.Error(err),
					zap.String("role", role),
					zap.String("user_id", ev.UserID),
				)
				h.writeError(w, http.StatusServiceUnavailable, "cache_unavailable", "Failed to refresh recipients, retry later", role)
				return
			}
		}
	}

	h.logger.Info("recipient cache refreshed after role change",
		zap.String("user_id", ev.UserID),
		zap.String("previous_role", ev.PreviousRole),
		zap.String("role", ev.Role),
	)
	w.WriteHeader(http.StatusNoContent)
}
