package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/jwtauth/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"

	"github.com/tendant/login-guard/pkg/device"
)

// SessionClaim is the JWT claim carrying the caller's own device session id.
const SessionClaim = "device_session_id"

// SessionService is the part of device.Service the handler needs.
type SessionService interface {
	GetUserDeviceSessionsWithCurrent(ctx context.Context, userID string, currentSessionID *uuid.UUID) ([]device.SessionSummary, error)
	RevokeDeviceSession(ctx context.Context, sessionID uuid.UUID, userID string) (bool, error)
	RevokeAllUserSessions(ctx context.Context, userID string, exceptSessionID *uuid.UUID) (int, error)
}

// DeviceHandler handles HTTP requests for a user's remembered devices
type DeviceHandler struct {
	service SessionService
}

// NewDeviceHandler creates a new device handler
func NewDeviceHandler(service SessionService) *DeviceHandler {
	return &DeviceHandler{service: service}
}

// ListSessionsResponse represents the response body for listing device sessions
type ListSessionsResponse struct {
	Status   string                  `json:"status"`
	Sessions []device.SessionSummary `json:"sessions"`
}

// RevokeAllRequest represents the request body for revoking all sessions
type RevokeAllRequest struct {
	ExceptCurrent bool `json:"except_current"`
}

// RevokeAllResponse represents the response body for revoking all sessions
type RevokeAllResponse struct {
	Status       string `json:"status"`
	RevokedCount int    `json:"revoked_count"`
}

// SuccessResponse represents a generic success response
type SuccessResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// ListSessions handles GET /
func (h *DeviceHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	userID, current, ok := caller(r)
	if !ok {
		renderErrorResponse(w, r, http.StatusUnauthorized, "Unauthorized")
		return
	}

	sessions, err := h.service.GetUserDeviceSessionsWithCurrent(r.Context(), userID, current)
	if err != nil {
		slog.Error("Failed to list device sessions", "user_id", userID, "error", err)
		renderErrorResponse(w, r, http.StatusInternalServerError, "Failed to list devices")
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, ListSessionsResponse{Status: "success", Sessions: sessions})
}

// RevokeSession handles DELETE /{id}
func (h *DeviceHandler) RevokeSession(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := caller(r)
	if !ok {
		renderErrorResponse(w, r, http.StatusUnauthorized, "Unauthorized")
		return
	}

	sessionID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		renderErrorResponse(w, r, http.StatusBadRequest, "Invalid session id")
		return
	}

	changed, err := h.service.RevokeDeviceSession(r.Context(), sessionID, userID)
	if err != nil {
		slog.Error("Failed to revoke device session", "user_id", userID, "session_id", sessionID, "error", err)
		renderErrorResponse(w, r, http.StatusInternalServerError, "Failed to revoke device")
		return
	}
	if !changed {
		renderErrorResponse(w, r, http.StatusNotFound, "Device session not found")
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, SuccessResponse{Status: "success", Message: "Device session revoked"})
}

// RevokeAll handles POST /revoke-all
func (h *DeviceHandler) RevokeAll(w http.ResponseWriter, r *http.Request) {
	userID, current, ok := caller(r)
	if !ok {
		renderErrorResponse(w, r, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req RevokeAllRequest
	if r.ContentLength != 0 {
		if err := render.DecodeJSON(r.Body, &req); err != nil {
			renderErrorResponse(w, r, http.StatusBadRequest, "Invalid request body")
			return
		}
	}

	var except *uuid.UUID
	if req.ExceptCurrent {
		if current == nil {
			renderErrorResponse(w, r, http.StatusBadRequest, "No current device session")
			return
		}
		except = current
	}

	count, err := h.service.RevokeAllUserSessions(r.Context(), userID, except)
	if err != nil {
		slog.Error("Failed to revoke device sessions", "user_id", userID, "error", err)
		renderErrorResponse(w, r, http.StatusInternalServerError, "Failed to revoke devices")
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, RevokeAllResponse{Status: "success", RevokedCount: count})
}

// Handler returns a http.Handler for the device session API. The router
// must sit behind jwtauth.Verifier and jwtauth.Authenticator.
func Handler(h *DeviceHandler) http.Handler {
	r := chi.NewRouter()

	r.Get("/", h.ListSessions)
	r.Delete("/{id}", h.RevokeSession)
	r.Post("/revoke-all", h.RevokeAll)

	return r
}

// caller returns the user id and, when present, the current device session
// id from the verified JWT.
func caller(r *http.Request) (string, *uuid.UUID, bool) {
	_, claims, err := jwtauth.FromContext(r.Context())
	if err != nil || claims == nil {
		return "", nil, false
	}

	var userID string
	for _, key := range []string{"sub", "user_id", "id"} {
		if v, ok := claims[key].(string); ok && v != "" {
			userID = v
			break
		}
	}
	if userID == "" {
		return "", nil, false
	}

	var current *uuid.UUID
	if raw, ok := claims[SessionClaim].(string); ok {
		if id, err := uuid.Parse(raw); err == nil {
			current = &id
		}
	}
	return userID, current, true
}

// renderErrorResponse renders an error response with the given status code and message
func renderErrorResponse(w http.ResponseWriter, r *http.Request, statusCode int, message string) {
	render.Status(r, statusCode)
	render.JSON(w, r, ErrorResponse{Status: "error", Message: message})
}
