package middleware

import (
	"context"
	stderrors "errors"
	"net/http"
	"strings"
	"time"

	"cleansight/internal/service/identity"
	"cleansight/internal/service/session"
	"cleansight/pkg/errors"
	"cleansight/pkg/logger"
	"github.com/google/uuid"
)

// SessionAcquirer hands out the session context for a browser session id
type SessionAcquirer interface {
	Acquire(ctx context.Context, sid string) (*session.Session, error)
}

// TokenVerifier validates bearer tokens issued at sign-in
type TokenVerifier interface {
	Parse(token string) (*identity.SessionClaims, error)
}

// SessionConfig controls the session cookie and the bootstrap wait
type SessionConfig struct {
	CookieName       string
	CookieSecure     bool
	CookieTTL        time.Duration
	BootstrapTimeout time.Duration
}

// DefaultCookieName is used when SessionConfig.CookieName is empty
const DefaultCookieName = "cleansight_sid"

// Session attaches the caller's session context to the request.
// The sid comes from a bearer token when present, otherwise from the session
// cookie; a browser without either gets a fresh sid cookie. The request waits
// up to BootstrapTimeout for a bootstrapping session to settle.
func Session(sessions SessionAcquirer, tokens TokenVerifier, cfg SessionConfig, log *logger.Logger) func(http.Handler) http.Handler {
	if cfg.CookieName == "" {
		cfg.CookieName = DefaultCookieName
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sid, appErr := sessionID(r, tokens, cfg.CookieName)
			if appErr != nil {
				WriteError(w, r, appErr, log)
				return
			}
			if sid == "" {
				sid = uuid.NewString()
				SetSessionCookie(w, cfg, sid)
			}

			ctx := r.Context()
			sess, err := sessions.Acquire(ctx, sid)
			if stderrors.Is(err, session.ErrTooManySessions) {
				WriteError(w, r, errors.NewUnavailableError("Server is busy, please retry", err), log)
				return
			}
			if err != nil {
				WriteError(w, r, errors.NewExternalError("Session store unavailable", err), log)
				return
			}

			snap := waitBootstrap(ctx, sess, cfg.BootstrapTimeout)
			ctx = context.WithValue(ctx, SessionContextKey, sess)
			ctx = context.WithValue(ctx, SnapshotContextKey, snap)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func sessionID(r *http.Request, tokens TokenVerifier, cookieName string) (string, *errors.AppError) {
	if authHeader := r.Header.Get("Authorization"); authHeader != "" {
		if !strings.HasPrefix(authHeader, "Bearer ") {
			return "", errors.NewAuthenticationError("Invalid authorization header format")
		}
		token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
		if token == "" || tokens == nil {
			return "", errors.NewAuthenticationError("Token is required")
		}
		claims, err := tokens.Parse(token)
		if err != nil {
			appErr := errors.NewAuthenticationError("Invalid or expired token")
			appErr.Internal = err
			return "", appErr
		}
		return claims.SID, nil
	}

	cookie, err := r.Cookie(cookieName)
	if err != nil {
		return "", nil
	}
	// a tampered or foreign cookie is replaced rather than rejected
	if _, err := uuid.Parse(cookie.Value); err != nil {
		return "", nil
	}
	return cookie.Value, nil
}

// waitBootstrap returns the settled snapshot, or a loading one when the timeout passes first
func waitBootstrap(ctx context.Context, sess *session.Session, timeout time.Duration) session.Snapshot {
	if timeout <= 0 {
		return sess.Snapshot()
	}
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	snap, _ := sess.Wait(waitCtx)
	return snap
}

// SetSessionCookie issues the HTTP-only session cookie
func SetSessionCookie(w http.ResponseWriter, cfg SessionConfig, sid string) {
	http.SetCookie(w, &http.Cookie{
		Name:     cookieName(cfg),
		Value:    sid,
		Path:     "/",
		MaxAge:   int(cfg.CookieTTL.Seconds()),
		HttpOnly: true,
		Secure:   cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearSessionCookie expires the session cookie
func ClearSessionCookie(w http.ResponseWriter, cfg SessionConfig) {
	http.SetCookie(w, &http.Cookie{
		Name:     cookieName(cfg),
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func cookieName(cfg SessionConfig) string {
	if cfg.CookieName == "" {
		return DefaultCookieName
	}
	return cfg.CookieName
}

// SessionFrom returns the session loaded by the Session middleware
func SessionFrom(ctx context.Context) (*session.Session, bool) {
	sess, ok := ctx.Value(SessionContextKey).(*session.Session)
	return sess, ok
}

// SnapshotFrom returns the snapshot taken when the request was admitted
func SnapshotFrom(ctx context.Context) (session.Snapshot, bool) {
	snap, ok := ctx.Value(SnapshotContextKey).(session.Snapshot)
	return snap, ok
}
