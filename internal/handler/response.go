package handler

import (
	"encoding/json"
	"io"
	"net/http"

	"cleansight/internal/domain"
	"cleansight/internal/middleware"
	"cleansight/internal/service/session"
	"cleansight/pkg/errors"
	"cleansight/pkg/logger"
)

const maxBodyBytes = 64 << 10

func respondJSON(w http.ResponseWriter, status int, data interface{}, log *logger.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.WithError(err).Error("Failed to encode response")
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error, log *logger.Logger) {
	middleware.WriteError(w, r, errors.As(err), log)
}

// decodeJSON reads a bounded JSON body into dst
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) *errors.AppError {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		if err == io.EOF {
			return errors.NewValidationError("Request body is required", nil)
		}
		appErr := errors.NewValidationError("Invalid JSON body", nil)
		appErr.Internal = err
		return appErr
	}
	return nil
}

// requestSession returns the session attached by the session middleware
func requestSession(r *http.Request) (*session.Session, *errors.AppError) {
	sess, ok := middleware.SessionFrom(r.Context())
	if !ok {
		return nil, errors.NewInternalError("Session not loaded", nil)
	}
	return sess, nil
}

// selfServiceRole validates a role chosen by the user. Admins are provisioned, never self-selected.
func selfServiceRole(raw string) (domain.Role, *errors.AppError) {
	if raw == "" {
		return "", nil
	}
	role, ok := domain.ParseRole(raw)
	if !ok {
		return "", errors.NewValidationError("Invalid role", map[string]interface{}{"role": raw})
	}
	if role == domain.RoleAdmin {
		return "", errors.NewAuthorizationError("This role cannot be chosen at registration")
	}
	return role, nil
}
