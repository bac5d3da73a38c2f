package handler

import (
	"net/http"

	"cleansight/internal/domain"
	"cleansight/internal/service/session"
	"cleansight/pkg/errors"
	"cleansight/pkg/logger"
)

// ProfileHandler serves settings edits and onboarding submission
type ProfileHandler struct {
	logger *logger.Logger
}

func NewProfileHandler(log *logger.Logger) *ProfileHandler {
	return &ProfileHandler{logger: log.Named("profile_handler")}
}

// UserResponse carries the merged user after a write
type UserResponse struct {
	Success bool         `json:"success"`
	User    *domain.User `json:"user"`
}

// Update handles PATCH /api/profile. Role is not part of the accepted body.
func (h *ProfileHandler) Update(w http.ResponseWriter, r *http.Request) {
	sess, appErr := requestSession(r)
	if appErr != nil {
		writeError(w, r, appErr, h.logger)
		return
	}

	var update domain.ProfileUpdate
	if appErr := decodeJSON(w, r, &update); appErr != nil {
		writeError(w, r, appErr, h.logger)
		return
	}
	if appErr := checkExtensions(update.Extensions); appErr != nil {
		writeError(w, r, appErr, h.logger)
		return
	}

	user, err := sess.UpdateUser(r.Context(), update)
	if err != nil {
		writeError(w, r, err, h.logger)
		return
	}
	respondJSON(w, http.StatusOK, UserResponse{Success: true, User: user}, h.logger)
}

// SubmitOnboarding handles POST /api/onboarding/address
func (h *ProfileHandler) SubmitOnboarding(w http.ResponseWriter, r *http.Request) {
	sess, appErr := requestSession(r)
	if appErr != nil {
		writeError(w, r, appErr, h.logger)
		return
	}

	var loc session.Location
	if appErr := decodeJSON(w, r, &loc); appErr != nil {
		writeError(w, r, appErr, h.logger)
		return
	}

	res, err := sess.SubmitOnboarding(r.Context(), loc)
	if err != nil {
		writeError(w, r, err, h.logger)
		return
	}

	h.logger.WithField("user_id", userID(res.User)).Info("Onboarding completed")
	respondJSON(w, http.StatusOK, AuthResponse{Success: true, Redirect: res.RedirectTo, User: res.User}, h.logger)
}

// checkExtensions rejects extension keys users may not set on themselves
func checkExtensions(ext map[string]any) *errors.AppError {
	bad := domain.ForbiddenExtensions(ext)
	if len(bad) == 0 {
		return nil
	}
	return errors.NewValidationError("Some profile fields cannot be changed", map[string]interface{}{"fields": bad})
}
