package profile

import (
	"context"
	"errors"
	"time"

	"cleansight/internal/domain"
	"cleansight/internal/repository"
	"cleansight/pkg/logger"
)

// PendingRoles remembers the role picked on the registration form while the
// browser goes through the federated provider. Entries are keyed by browser
// session and email and expire; losing one only means the user ends up with
// the default role.
type PendingRoles struct {
	kv     repository.KeyValueStore
	ttl    time.Duration
	logger *logger.Logger
}

func NewPendingRoles(kv repository.KeyValueStore, ttl time.Duration, log *logger.Logger) *PendingRoles {
	return &PendingRoles{kv: kv, ttl: ttl, logger: log.Named("pending_roles")}
}

// Put records role for email within session sid, rejecting roles outside the known set
func (p *PendingRoles) Put(ctx context.Context, sid, email string, role domain.Role) error {
	if sid == "" {
		return errors.New("pending role: no session")
	}
	if !domain.IsValidRole(string(role)) {
		return domain.ErrInvalidRole
	}
	return p.kv.Put(ctx, repository.PendingRoleKey(sid, email), string(role), p.ttl)
}

// Peek returns the pending role for email parked by session sid. Store failures count as absent.
func (p *PendingRoles) Peek(ctx context.Context, sid, email string) (domain.Role, bool) {
	if sid == "" {
		return "", false
	}
	raw, ok, err := p.kv.Get(ctx, repository.PendingRoleKey(sid, email))
	if err != nil {
		p.logger.WithError(err).Warn("Pending role lookup failed")
		return "", false
	}
	if !ok || !domain.IsValidRole(raw) {
		return "", false
	}
	return domain.Role(raw), true
}

func (p *PendingRoles) Clear(ctx context.Context, sid, email string) {
	if err := p.kv.Delete(ctx, repository.PendingRoleKey(sid, email)); err != nil {
		p.logger.WithError(err).Warn("Failed to clear pending role")
	}
}
