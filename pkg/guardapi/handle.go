// Package guardapi exposes the limiter, detector and remember-me service over
// HTTP for an identity provider that runs its own credential check.
package guardapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/tendant/login-guard/pkg/detector"
	"github.com/tendant/login-guard/pkg/device"
	guarderrors "github.com/tendant/login-guard/pkg/errors"
	"github.com/tendant/login-guard/pkg/identifier"
	"github.com/tendant/login-guard/pkg/ratelimit"
)

type Limiter interface {
	CheckRateLimit(ctx context.Context, identifier string, policy ratelimit.Policy) ratelimit.Result
	RecordLoginAttempt(ctx context.Context, identifier string, success bool, details ratelimit.AttemptDetails) error
}

type Summarizer interface {
	GetSecuritySummary(ctx context.Context, identifier string) (detector.Summary, error)
}

type RememberMe interface {
	TryCreateSession(ctx context.Context, userID string, info device.DeviceInfo, durationDays int) (device.IssuedSession, bool)
	ValidateToken(ctx context.Context, token string, info device.DeviceInfo) device.ValidationResult
}

type Handle struct {
	limiter    Limiter
	summarizer Summarizer
	rememberMe RememberMe
	policies   map[string]ratelimit.Policy
}

func NewHandle(limiter Limiter, summarizer Summarizer, rememberMe RememberMe, policies ...ratelimit.Policy) *Handle {
	h := &Handle{
		limiter:    limiter,
		summarizer: summarizer,
		rememberMe: rememberMe,
		policies:   make(map[string]ratelimit.Policy),
	}
	if len(policies) == 0 {
		policies = []ratelimit.Policy{ratelimit.LoginPolicy, ratelimit.PasswordResetPolicy, ratelimit.SuspiciousPolicy}
	}
	for _, p := range policies {
		h.policies[p.Name] = p
	}
	return h
}

// CheckRequest asks whether an identifier may attempt an action. When
// Identifier is empty it is derived from the forwarded client headers.
type CheckRequest struct {
	Policy     string `json:"policy"`
	Identifier string `json:"identifier,omitempty"`
}

type CheckResponse struct {
	Identifier string `json:"identifier"`
	ratelimit.Result
}

type AttemptRequest struct {
	Identifier string `json:"identifier,omitempty"`
	Success    bool   `json:"success"`
	Email      string `json:"email,omitempty"`
	UserID     string `json:"user_id,omitempty"`
}

type RememberRequest struct {
	UserID       string `json:"user_id"`
	DurationDays int    `json:"duration_days,omitempty"`
}

type RememberResponse struct {
	Token     string `json:"token"`
	SessionID string `json:"session_id"`
	ExpiresAt string `json:"expires_at"`
}

type ValidateRequest struct {
	Token string `json:"token"`
}

type ErrorResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Check handles POST /check
func (h *Handle) Check(w http.ResponseWriter, r *http.Request) {
	var req CheckRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		renderError(w, r, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Policy == "" {
		req.Policy = ratelimit.LoginPolicy.Name
	}
	policy, ok := h.policies[req.Policy]
	if !ok {
		renderError(w, r, http.StatusBadRequest, "Unknown policy")
		return
	}

	id := requestIdentifier(r, req.Identifier)
	result := h.limiter.CheckRateLimit(r.Context(), id, policy)

	status := http.StatusOK
	if !result.Allowed {
		status = http.StatusTooManyRequests
	}
	render.Status(r, status)
	render.JSON(w, r, CheckResponse{Identifier: id, Result: result})
}

// RecordAttempt handles POST /attempts
func (h *Handle) RecordAttempt(w http.ResponseWriter, r *http.Request) {
	var req AttemptRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		renderError(w, r, http.StatusBadRequest, "Invalid request body")
		return
	}

	info := identifier.ExtractClientInfo(r)
	id := requestIdentifier(r, req.Identifier)
	err := h.limiter.RecordLoginAttempt(r.Context(), id, req.Success, ratelimit.AttemptDetails{
		Email:     req.Email,
		IPAddress: info.Address,
		UserAgent: info.Descriptor,
		UserID:    req.UserID,
	})
	if err != nil {
		slog.Error("Failed to record login attempt", "identifier", id, "code", guarderrors.GetCode(err), "error", err)
		renderError(w, r, guarderrors.MapErrorCodeToHTTPStatus(guarderrors.GetCode(err)), "Failed to record attempt")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Summary handles GET /summary/{identifier}
func (h *Handle) Summary(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "identifier")
	if len(id) != identifier.Length {
		renderError(w, r, http.StatusBadRequest, "Invalid identifier")
		return
	}

	summary, err := h.summarizer.GetSecuritySummary(r.Context(), id)
	if err != nil {
		slog.Error("Failed to build security summary", "identifier", id, "error", err)
		renderError(w, r, guarderrors.MapErrorCodeToHTTPStatus(guarderrors.GetCode(err)), "Failed to build summary")
		return
	}
	render.JSON(w, r, summary)
}

// Remember handles POST /remember
func (h *Handle) Remember(w http.ResponseWriter, r *http.Request) {
	var req RememberRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil || req.UserID == "" {
		renderError(w, r, http.StatusBadRequest, "Invalid request body")
		return
	}

	issued, ok := h.rememberMe.TryCreateSession(r.Context(), req.UserID, device.ExtractDeviceInfo(r), req.DurationDays)
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, RememberResponse{
		Token:     issued.Token,
		SessionID: issued.SessionID.String(),
		ExpiresAt: issued.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

// Validate handles POST /remember/validate
func (h *Handle) Validate(w http.ResponseWriter, r *http.Request) {
	var req ValidateRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		renderError(w, r, http.StatusBadRequest, "Invalid request body")
		return
	}

	result := h.rememberMe.ValidateToken(r.Context(), req.Token, device.ExtractDeviceInfo(r))
	if !result.Valid {
		render.Status(r, http.StatusUnauthorized)
	}
	render.JSON(w, r, result)
}

// Handler returns the guard API router.
func Handler(h *Handle) http.Handler {
	r := chi.NewRouter()

	r.Post("/check", h.Check)
	r.Post("/attempts", h.RecordAttempt)
	r.Get("/summary/{identifier}", h.Summary)
	r.Post("/remember", h.Remember)
	r.Post("/remember/validate", h.Validate)

	return r
}

func requestIdentifier(r *http.Request, explicit string) string {
	if explicit != "" {
		return explicit
	}
	return identifier.FromRequest(r)
}

func renderError(w http.ResponseWriter, r *http.Request, statusCode int, message string) {
	render.Status(r, statusCode)
	render.JSON(w, r, ErrorResponse{Status: "error", Message: message})
}
