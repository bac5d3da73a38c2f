package handler

import (
	"context"
	stderrors "errors"
	"net/http"
	"net/url"

	"cleansight/internal/domain"
	"cleansight/internal/service/identity"
	"cleansight/internal/service/session"
	"cleansight/pkg/errors"
	"cleansight/pkg/logger"
	"github.com/go-chi/chi/v5"
)

// FederatedFlow runs the provider redirect round trip
type FederatedFlow interface {
	BeginFederated(ctx context.Context, provider, sid, roleHint string) (string, error)
	CompleteFederated(ctx context.Context, provider, state, code string) (*identity.FederatedCallback, error)
}

// PendingRoleStore records the role picked at federated registration for one browser session
type PendingRoleStore interface {
	Put(ctx context.Context, sid, email string, role domain.Role) error
}

// FederatedHandler serves the OAuth start and callback endpoints and the registration step
type FederatedHandler struct {
	flow        FederatedFlow
	pending     PendingRoleStore
	frontendURL string
	logger      *logger.Logger
}

// NewFederatedHandler creates the handler. frontendURL prefixes every browser redirect.
func NewFederatedHandler(flow FederatedFlow, pending PendingRoleStore, frontendURL string, log *logger.Logger) *FederatedHandler {
	return &FederatedHandler{
		flow:        flow,
		pending:     pending,
		frontendURL: frontendURL,
		logger:      log.Named("federated_handler"),
	}
}

// Start handles GET /auth/{provider}/start?role=
func (h *FederatedHandler) Start(w http.ResponseWriter, r *http.Request) {
	sess, appErr := requestSession(r)
	if appErr != nil {
		writeError(w, r, appErr, h.logger)
		return
	}

	role, appErr := selfServiceRole(r.URL.Query().Get("role"))
	if appErr != nil {
		writeError(w, r, appErr, h.logger)
		return
	}

	provider := chi.URLParam(r, "provider")
	authURL, err := h.flow.BeginFederated(r.Context(), provider, sess.ID(), string(role))
	if stderrors.Is(err, identity.ErrUnknownProvider) {
		writeError(w, r, errors.NewNotFoundError("Unknown sign-in provider"), h.logger)
		return
	}
	if err != nil {
		writeError(w, r, errors.NewExternalError("Could not start sign-in, please retry", err), h.logger)
		return
	}
	http.Redirect(w, r, authURL, http.StatusFound)
}

// Callback handles GET /auth/{provider}/callback. Failures land on the login page with a message.
func (h *FederatedHandler) Callback(w http.ResponseWriter, r *http.Request) {
	sess, appErr := requestSession(r)
	if appErr != nil {
		writeError(w, r, appErr, h.logger)
		return
	}

	provider := chi.URLParam(r, "provider")
	log := h.logger.WithField("provider", provider)
	q := r.URL.Query()

	if reason := q.Get("error"); reason != "" {
		log.WithField("reason", reason).Info("Provider denied sign-in")
		h.redirectLogin(w, r, "Sign-in was cancelled")
		return
	}

	cb, err := h.flow.CompleteFederated(r.Context(), provider, q.Get("state"), q.Get("code"))
	if err != nil {
		log.WithError(err).Warn("Federated callback rejected")
		h.redirectLogin(w, r, session.UserMessage(err))
		return
	}
	if cb.SID != sess.ID() {
		// the flow was started by another browser session
		log.Warn("Federated callback session mismatch")
		h.redirectLogin(w, r, "Sign-in expired, please try again")
		return
	}

	res, err := sess.SignInWithFederatedProvider(r.Context(), cb.Assertion, cb.RoleHint)
	if err != nil {
		h.redirectLogin(w, r, errors.As(err).Message)
		return
	}

	target := res.RedirectTo
	if res.PrefillEmail != "" {
		target = withQuery(target, "email", res.PrefillEmail)
	}
	http.Redirect(w, r, h.frontendURL+target, http.StatusFound)
}

// RegisterRequest completes registration for a first-time federated user
type RegisterRequest struct {
	Email    string `json:"email"`
	Role     string `json:"role"`
	Provider string `json:"provider,omitempty"`
}

// Register handles POST /api/auth/register/federated. The chosen role is
// parked for the email within the caller's session, then the client restarts
// the provider flow from the same browser.
func (h *FederatedHandler) Register(w http.ResponseWriter, r *http.Request) {
	sess, appErr := requestSession(r)
	if appErr != nil {
		writeError(w, r, appErr, h.logger)
		return
	}

	var req RegisterRequest
	if appErr := decodeJSON(w, r, &req); appErr != nil {
		writeError(w, r, appErr, h.logger)
		return
	}

	email := domain.NormalizeEmail(req.Email)
	if email == "" {
		writeError(w, r, errors.NewValidationError("Email is required", nil), h.logger)
		return
	}
	role, appErr := selfServiceRole(req.Role)
	if appErr != nil {
		writeError(w, r, appErr, h.logger)
		return
	}
	if role == "" {
		role = domain.DefaultRole
	}
	provider := req.Provider
	if provider == "" {
		provider = "google"
	}

	if err := h.pending.Put(r.Context(), sess.ID(), email, role); err != nil {
		writeError(w, r, errors.NewExternalError("Could not save registration, please retry", err), h.logger)
		return
	}

	h.logger.WithFields(map[string]interface{}{"role": role, "provider": provider}).Info("Pending role recorded")
	respondJSON(w, http.StatusOK, AuthResponse{
		Success:  true,
		Redirect: "/auth/" + url.PathEscape(provider) + "/start",
	}, h.logger)
}

func (h *FederatedHandler) redirectLogin(w http.ResponseWriter, r *http.Request, message string) {
	http.Redirect(w, r, h.frontendURL+withQuery(domain.RouteLogin, "error", message), http.StatusFound)
}

func withQuery(target, key, value string) string {
	u, err := url.Parse(target)
	if err != nil {
		return target
	}
	q := u.Query()
	q.Set(key, value)
	u.RawQuery = q.Encode()
	return u.String()
}
