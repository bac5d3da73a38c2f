package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"cleansight/internal/guard"
	"cleansight/pkg/errors"
	"cleansight/pkg/logger"
)

// DecisionContextKey holds the guard.Decision for rendered pages
const DecisionContextKey ContextKey = "guard_decision"

// PageGuard turns route guard and onboarding gate decisions into responses.
// It must run after Session.
func PageGuard(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			snap, ok := SnapshotFrom(r.Context())
			if !ok {
				WriteError(w, r, errors.NewInternalError("Session not loaded", nil), log)
				return
			}

			d := guard.Resolve(r.URL.RequestURI(), guard.View{Loading: snap.Loading, User: snap.User})
			switch d.Action {
			case guard.ActionPlaceholder:
				writePlaceholder(w, log)
			case guard.ActionRedirect:
				log.WithFields(map[string]interface{}{
					"path":   r.URL.Path,
					"target": d.Target,
					"reason": d.Reason,
				}).Debug("Guard redirect")
				http.Redirect(w, r, RedirectURL(d), http.StatusFound)
			case guard.ActionNotFound:
				WriteError(w, r, errors.NewNotFoundError("Page not found"), log)
			default:
				next.ServeHTTP(w, r.WithContext(withDecision(r, d)))
			}
		})
	}
}

// RedirectURL appends the requested location as ?from= when the decision carries one
func RedirectURL(d guard.Decision) string {
	if d.From == "" {
		return d.Target
	}
	return d.Target + "?from=" + url.QueryEscape(d.From)
}

func writePlaceholder(w http.ResponseWriter, log *logger.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Retry-After", "1")
	w.WriteHeader(http.StatusAccepted)
	if err := json.NewEncoder(w).Encode(map[string]string{"status": "loading"}); err != nil {
		log.WithError(err).Error("Failed to encode placeholder response")
	}
}

func withDecision(r *http.Request, d guard.Decision) context.Context {
	return context.WithValue(r.Context(), DecisionContextKey, d)
}

// DecisionFrom returns the decision that let the request through
func DecisionFrom(ctx context.Context) (guard.Decision, bool) {
	d, ok := ctx.Value(DecisionContextKey).(guard.Decision)
	return d, ok
}
