// Package api serves the hostdesk JSON HTTP API: account flows backed by split
// tokens and webhosting plan administration.
package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/kuitang/hostdesk/internal/account"
	"github.com/kuitang/hostdesk/internal/errs"
	"github.com/kuitang/hostdesk/internal/logutil"
	"github.com/kuitang/hostdesk/internal/obs"
	"github.com/kuitang/hostdesk/internal/webhosting"
)

const (
	maxBodyBytes      = 1 << 20
	retryAfterSeconds = 1
)

// Handler wraps the account and plan services and provides HTTP handlers
type Handler struct {
	accounts *account.Service
	plans    *webhosting.PlanService
}

// NewHandler creates a new API handler
func NewHandler(accounts *account.Service, plans *webhosting.PlanService) *Handler {
	return &Handler{accounts: accounts, plans: plans}
}

// ---------------------------------------------------------------------------
// Accounts
// ---------------------------------------------------------------------------

// CredentialsRequest is the body of register and login.
type CredentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Register handles POST /auth/register
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req CredentialsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	acct, err := h.accounts.Register(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, acct)
}

// Login handles POST /auth/login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req CredentialsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	acct, err := h.accounts.VerifyLogin(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, acct)
}

// PasswordResetRequest is the body of POST /auth/password/reset.
type PasswordResetRequest struct {
	Email string `json:"email"`
}

// RequestPasswordReset handles POST /auth/password/reset. It always answers
// 202 so the response never reveals whether the address has an account.
func (h *Handler) RequestPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req PasswordResetRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.accounts.RequestPasswordReset(r.Context(), req.Email); err != nil {
		obs.From(r.Context()).With("pkg", "api").Error("password_reset_request_failed",
			"email", logutil.MaskEmail(req.Email), "error", err)
	}
	writeJSON(w, http.StatusAccepted, StatusResponse{Status: "accepted"})
}

// PasswordResetConfirmRequest is the body of POST /auth/password/reset/confirm.
type PasswordResetConfirmRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

// ConfirmPasswordReset handles POST /auth/password/reset/confirm
func (h *Handler) ConfirmPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req PasswordResetConfirmRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.accounts.ConfirmPasswordReset(r.Context(), req.Token, req.Password); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, StatusResponse{Status: "password_updated"})
}

// EmailChangeRequest is the body of POST /account/email.
type EmailChangeRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	NewEmail string `json:"new_email"`
}

// RequestEmailChange handles POST /account/email
func (h *Handler) RequestEmailChange(w http.ResponseWriter, r *http.Request) {
	var req EmailChangeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.accounts.RequestEmailChange(r.Context(), req.Email, req.Password, req.NewEmail); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, StatusResponse{Status: "accepted"})
}

// ConfirmEmailChange handles GET /account/email/confirm?token=
func (h *Handler) ConfirmEmailChange(w http.ResponseWriter, r *http.Request) {
	acct, err := h.accounts.ConfirmEmailChange(r.Context(), r.URL.Query().Get("token"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, acct)
}

// ---------------------------------------------------------------------------
// Plans
// ---------------------------------------------------------------------------

// CreatePlanRequest is the body of POST /plans.
type CreatePlanRequest struct {
	Name         string                  `json:"name"`
	Constraints  webhosting.Constraints  `json:"constraints"`
	Capabilities webhosting.Capabilities `json:"capabilities"`
}

// ListPlans handles GET /plans
func (h *Handler) ListPlans(w http.ResponseWriter, r *http.Request) {
	plans, err := h.plans.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, plans)
}

// GetPlan handles GET /plans/{id}
func (h *Handler) GetPlan(w http.ResponseWriter, r *http.Request) {
	plan, err := h.plans.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

// CreatePlan handles POST /plans
func (h *Handler) CreatePlan(w http.ResponseWriter, r *http.Request) {
	var req CreatePlanRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	plan, err := h.plans.Create(r.Context(), req.Name, req.Constraints, req.Capabilities)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, plan)
}

// ConstraintsUpdateResponse reports the stored plan and what changed.
type ConstraintsUpdateResponse struct {
	Plan    webhosting.Plan     `json:"plan"`
	Changes []webhosting.Change `json:"changes"`
}

// UpdateConstraints handles PUT /plans/{id}/constraints
func (h *Handler) UpdateConstraints(w http.ResponseWriter, r *http.Request) {
	var c webhosting.Constraints
	if !decodeJSON(w, r, &c) {
		return
	}
	plan, changes, err := h.plans.UpdateConstraints(r.Context(), r.PathValue("id"), c)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if changes == nil {
		changes = []webhosting.Change{}
	}
	writeJSON(w, http.StatusOK, ConstraintsUpdateResponse{Plan: plan, Changes: changes})
}

// CapabilitiesUpdateResponse reports the stored plan and the capability diff.
type CapabilitiesUpdateResponse struct {
	Plan webhosting.Plan           `json:"plan"`
	Diff webhosting.CapabilityDiff `json:"diff"`
}

// UpdateCapabilities handles PUT /plans/{id}/capabilities
func (h *Handler) UpdateCapabilities(w http.ResponseWriter, r *http.Request) {
	var caps webhosting.Capabilities
	if !decodeJSON(w, r, &caps) {
		return
	}
	plan, diff, err := h.plans.UpdateCapabilities(r.Context(), r.PathValue("id"), caps)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, CapabilitiesUpdateResponse{Plan: plan, Diff: diff})
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// StatusResponse is a body for requests with no resource to return.
type StatusResponse struct {
	Status string `json:"status"`
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error string    `json:"error"`
	Code  errs.Code `json:"code"`
}

// decodeJSON reads a bounded JSON body into dst, writing a 400 on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if errs.Is(err, errs.InvalidArgument) {
			// Value objects such as ByteSize reject their own input.
			writeError(w, r, err)
			return false
		}
		writeError(w, r, errs.Wrap(errs.InvalidArgument, "invalid JSON body", err))
		return false
	}
	return true
}

// writeJSON writes a JSON response with the given status code
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError maps err to its HTTP status. Internal errors are logged and
// reported without detail; retryable ones carry Retry-After.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := errs.CodeOf(err)
	status := errs.HTTPStatus(code)
	if status >= http.StatusInternalServerError {
		obs.From(r.Context()).With("pkg", "api").Error("request_failed", "path", r.URL.Path, "error", err)
	}
	if errs.Retryable(code) && w.Header().Get("Retry-After") == "" {
		w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds))
	}
	writeJSON(w, status, ErrorResponse{Error: errs.MessageOf(err), Code: code})
}
