package handler

import (
	"net/http"
	"time"

	"cleansight/internal/domain"
	"cleansight/internal/middleware"
	"cleansight/internal/service/identity"
	"cleansight/internal/service/session"
	"cleansight/pkg/errors"
	"cleansight/pkg/logger"
)

// AuthHandler serves password sign-in, sign-up, sign-out and the session snapshot
type AuthHandler struct {
	tokens *identity.TokenIssuer
	cookie middleware.SessionConfig
	logger *logger.Logger
}

// NewAuthHandler creates a new auth handler. tokens may be nil to disable bearer tokens.
func NewAuthHandler(tokens *identity.TokenIssuer, cookie middleware.SessionConfig, log *logger.Logger) *AuthHandler {
	return &AuthHandler{
		tokens: tokens,
		cookie: cookie,
		logger: log.Named("auth_handler"),
	}
}

// CredentialsRequest is the sign-in form
type CredentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SignUpRequest is the registration form; everything but the credentials is optional
type SignUpRequest struct {
	CredentialsRequest
	Role        string         `json:"role,omitempty"`
	DisplayName string         `json:"display_name,omitempty"`
	State       string         `json:"state,omitempty"`
	City        string         `json:"city,omitempty"`
	Zone        string         `json:"zone,omitempty"`
	Address     string         `json:"address,omitempty"`
	Extensions  map[string]any `json:"extensions,omitempty"`
}

// AuthResponse tells the client where to go next
type AuthResponse struct {
	Success   bool         `json:"success"`
	Redirect  string       `json:"redirect_to"`
	User      *domain.User `json:"user,omitempty"`
	Token     string       `json:"token,omitempty"`
	ExpiresAt *time.Time   `json:"expires_at,omitempty"`
}

// SessionResponse wraps the session snapshot
type SessionResponse struct {
	Success bool             `json:"success"`
	Session session.Snapshot `json:"session"`
}

// GetSession handles GET /api/session
func (h *AuthHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	snap, ok := middleware.SnapshotFrom(r.Context())
	if !ok {
		writeError(w, r, errors.NewInternalError("Session not loaded", nil), h.logger)
		return
	}
	respondJSON(w, http.StatusOK, SessionResponse{Success: true, Session: snap}, h.logger)
}

// SignIn handles POST /api/auth/signin
func (h *AuthHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	sess, appErr := requestSession(r)
	if appErr != nil {
		writeError(w, r, appErr, h.logger)
		return
	}

	var req CredentialsRequest
	if appErr := decodeJSON(w, r, &req); appErr != nil {
		writeError(w, r, appErr, h.logger)
		return
	}

	res, err := sess.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, r, err, h.logger)
		return
	}
	h.respondAuth(w, sess.ID(), res)
}

// SignUp handles POST /api/auth/signup
func (h *AuthHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	sess, appErr := requestSession(r)
	if appErr != nil {
		writeError(w, r, appErr, h.logger)
		return
	}

	var req SignUpRequest
	if appErr := decodeJSON(w, r, &req); appErr != nil {
		writeError(w, r, appErr, h.logger)
		return
	}
	role, appErr := selfServiceRole(req.Role)
	if appErr != nil {
		writeError(w, r, appErr, h.logger)
		return
	}
	if appErr := checkExtensions(req.Extensions); appErr != nil {
		writeError(w, r, appErr, h.logger)
		return
	}

	hints := domain.ProfileHints{
		Role:        string(role),
		DisplayName: req.DisplayName,
		State:       req.State,
		City:        req.City,
		Zone:        req.Zone,
		Address:     req.Address,
		Extensions:  req.Extensions,
	}
	res, err := sess.SignUp(r.Context(), req.Email, req.Password, hints)
	if err != nil {
		writeError(w, r, err, h.logger)
		return
	}
	h.respondAuth(w, sess.ID(), res)
}

// SignOut handles POST /api/auth/signout
func (h *AuthHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	sess, appErr := requestSession(r)
	if appErr != nil {
		writeError(w, r, appErr, h.logger)
		return
	}

	res := sess.SignOut(r.Context())
	middleware.ClearSessionCookie(w, h.cookie)
	respondJSON(w, http.StatusOK, AuthResponse{Success: true, Redirect: res.RedirectTo}, h.logger)
}

func (h *AuthHandler) respondAuth(w http.ResponseWriter, sid string, res *session.Result) {
	response := AuthResponse{Success: true, Redirect: res.RedirectTo, User: res.User}

	if h.tokens != nil && res.User != nil {
		token, expiresAt, err := h.tokens.Issue(sid, res.User.ID)
		if err != nil {
			// the cookie session is already established
			h.logger.WithError(err).Error("Failed to issue session token")
		} else {
			response.Token, response.ExpiresAt = token, &expiresAt
		}
	}

	h.logger.WithFields(map[string]interface{}{
		"user_id":     userID(res.User),
		"redirect_to": res.RedirectTo,
	}).Info("User signed in")
	respondJSON(w, http.StatusOK, response, h.logger)
}

func userID(u *domain.User) string {
	if u == nil {
		return ""
	}
	return u.ID
}
