package api

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/StackHorizon-ProxoCoris/backend-mobileapp/internal/device"
)

// RegisterDeviceRequest is the body of POST /api/device-tokens.
type RegisterDeviceRequest struct {
	Token    string `json:"token" validate:"required"`
	Platform string `json:"platform"`
}

// DeviceResponse is returned after a token is registered.
type DeviceResponse struct {
	ID       string `json:"id"`
	Token    string `json:"token"`
	Platform string `json:"platform"`
	Active   bool   `json:"active"`
}

// UnregisterDeviceRequest is the body of DELETE /api/device-tokens.
type UnregisterDeviceRequest struct {
	Token string `json:"token" validate:"required"`
}

// RegisterDevice handles POST /api/device-tokens
func (h *Handler) RegisterDevice(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())

	var req RegisterDeviceRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid request body", err.Error())
		return
	}

	dt, err := h.devices.Upsert(r.Context(), userID, req.Token, req.Platform)
	if errors.Is(err, device.ErrEmptyToken) {
		h.writeError(w, http.StatusBadRequest, "validation_error", "token is required", "")
		return
	}
	if err != nil {
		h.logger.Error("failed to register device token",
			zap.Error(err),
			zap.String("user_id", userID),
		)
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to register device token", "")
		return
	}

	h.writeJSON(w, http.StatusOK, DeviceResponse{
		ID:       dt.ID.String(),
		Token:    dt.Token,
		Platform: dt.Platform,
		Active:   dt.Active,
	})
}

// UnregisterDevice handles DELETE /api/device-tokens. Unknown tokens succeed.
func (h *Handler) UnregisterDevice(w http.ResponseWriter, r *http.Request) {
	var req UnregisterDeviceRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid request body", err.Error())
		return
	}

	err := h.devices.Deactivate(r.Context(), req.Token)
	if errors.Is(err, device.ErrEmptyToken) {
		h.writeError(w, http.StatusBadRequest, "validation_error", "token is required", "")
		return
	}
	if err != nil {
		h.logger.Error("failed to deactivate device token", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to deactivate device token", "")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]bool{"deactivated": true})
}
