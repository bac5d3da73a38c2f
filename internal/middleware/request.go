package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"cleansight/pkg/errors"
	"cleansight/pkg/logger"
	"github.com/google/uuid"
)

// ContextKey represents keys used in request context
type ContextKey string

const (
	// RequestIDContextKey is the key for request ID in context
	RequestIDContextKey ContextKey = "request_id"
	// SessionContextKey holds the loaded *session.Session
	SessionContextKey ContextKey = "session"
	// SnapshotContextKey holds the session.Snapshot taken when the request started
	SnapshotContextKey ContextKey = "session_snapshot"
)

const requestIDHeader = "X-Request-ID"

// RequestID tags every request with an id, reusing a sane inbound one
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(requestIDHeader)
		if _, err := uuid.Parse(requestID); err != nil {
			requestID = uuid.NewString()
		}

		ctx := context.WithValue(r.Context(), RequestIDContextKey, requestID)
		w.Header().Set(requestIDHeader, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetRequestID returns the request id or ""
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(RequestIDContextKey).(string)
	return id
}

// WriteError writes the standard error envelope
func WriteError(w http.ResponseWriter, r *http.Request, appErr *errors.AppError, log *logger.Logger) {
	requestID := GetRequestID(r.Context())
	entry := log.WithError(appErr).WithFields(map[string]interface{}{
		"status":     appErr.StatusCode,
		"path":       r.URL.Path,
		"request_id": requestID,
	})
	if appErr.StatusCode >= http.StatusInternalServerError {
		entry.Error("Request error")
	} else {
		entry.Debug("Request rejected")
	}

	response := &errors.ErrorResponse{}
	response.Error.Type = appErr.Type
	response.Error.Message = appErr.Message
	response.Error.Code = appErr.Code
	response.Error.Details = appErr.Details
	response.Error.RequestID = requestID
	response.Error.Timestamp = time.Now().UTC().Format(time.RFC3339)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(appErr.StatusCode)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		log.WithError(err).Error("Failed to encode error response")
	}
}
