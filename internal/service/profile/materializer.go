package profile

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cleansight/internal/domain"
	"cleansight/internal/repository"
	"cleansight/pkg/logger"
	"golang.org/x/sync/singleflight"
)

// ensureTimeout bounds a shared ensure once it no longer follows any caller's context
const ensureTimeout = 10 * time.Second

// Materializer guarantees exactly one profile per identity, created lazily
// on the first successful sign-in and never overwritten afterwards.
type Materializer struct {
	profiles repository.ProfileRepository
	pending  *PendingRoles
	group    singleflight.Group
	logger   *logger.Logger
}

// NewMaterializer creates a materializer. pending may be nil when no side channel is configured.
func NewMaterializer(profiles repository.ProfileRepository, pending *PendingRoles, log *logger.Logger) *Materializer {
	return &Materializer{
		profiles: profiles,
		pending:  pending,
		logger:   log.Named("materializer"),
	}
}

// Get reads a profile without creating one
func (m *Materializer) Get(ctx context.Context, id string) (*domain.Profile, error) {
	return m.profiles.Get(ctx, id)
}

// Update persists a partial profile update
func (m *Materializer) Update(ctx context.Context, id string, update domain.ProfileUpdate) (*domain.Profile, error) {
	return m.profiles.Update(ctx, id, update)
}

// Ensure returns the identity's profile, creating it from hints when absent.
// Concurrent calls for the same id share one store round trip. The shared
// work is detached from the caller that started it, so one caller giving up
// does not fail the others.
func (m *Materializer) Ensure(ctx context.Context, identity *domain.Identity, hints domain.ProfileHints) (*domain.Profile, error) {
	if identity == nil || identity.ID == "" {
		return nil, errors.New("ensure profile: no identity")
	}

	ch := m.group.DoChan(identity.ID, func() (interface{}, error) {
		shared, cancel := context.WithTimeout(context.WithoutCancel(ctx), ensureTimeout)
		defer cancel()
		return m.ensure(shared, identity, hints)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*domain.Profile).Clone(), nil
	}
}

func (m *Materializer) ensure(ctx context.Context, identity *domain.Identity, hints domain.ProfileHints) (*domain.Profile, error) {
	existing, err := m.profiles.Get(ctx, identity.ID)
	if err != nil {
		return nil, fmt.Errorf("load profile: %w", err)
	}
	if existing != nil {
		return existing, nil
	}

	role, fromPending := m.deriveRole(ctx, identity, hints)
	p := &domain.Profile{
		ID:          identity.ID,
		Email:       identity.Email,
		DisplayName: deriveDisplayName(identity, hints.DisplayName),
		Role:        role,
		AvatarURL:   identity.AvatarURL,
		State:       strings.TrimSpace(hints.State),
		City:        strings.TrimSpace(hints.City),
		Zone:        strings.TrimSpace(hints.Zone),
		Address:     strings.TrimSpace(hints.Address),
		Extensions:  hints.Extensions,
	}

	err = m.profiles.Create(ctx, p)
	if errors.Is(err, domain.ErrProfileExists) {
		// lost the race to another writer; theirs stands
		winner, getErr := m.profiles.Get(ctx, identity.ID)
		if getErr != nil {
			return nil, fmt.Errorf("reload profile: %w", getErr)
		}
		if winner == nil {
			return nil, fmt.Errorf("reload profile: %w", domain.ErrProfileNotFound)
		}
		m.logger.WithField("user_id", identity.ID).Debug("Profile created concurrently, using existing")
		return winner, nil
	}
	if err != nil {
		return nil, fmt.Errorf("create profile: %w", err)
	}

	if fromPending {
		m.pending.Clear(ctx, hints.Session, identity.Email)
	}

	m.logger.WithFields(map[string]interface{}{
		"user_id":      identity.ID,
		"role":         p.Role,
		"from_pending": fromPending,
	}).Info("Profile materialized")
	return p, nil
}

// deriveRole picks a valid hint, then a role parked at federated registration
// by the same browser session, then the default
func (m *Materializer) deriveRole(ctx context.Context, identity *domain.Identity, hints domain.ProfileHints) (domain.Role, bool) {
	if hint := hints.Role; hint != "" {
		if role, ok := domain.ParseRole(hint); ok {
			return role, false
		}
		m.logger.WithField("role_hint", hint).Warn("Ignoring invalid role hint")
	}
	if m.pending != nil && hints.Session != "" && identity.Email != "" {
		if role, ok := m.pending.Peek(ctx, hints.Session, identity.Email); ok {
			return role, true
		}
	}
	return domain.DefaultRole, false
}

func deriveDisplayName(identity *domain.Identity, hint string) string {
	if name := strings.TrimSpace(hint); name != "" {
		return name
	}
	if name := strings.TrimSpace(identity.DisplayName); name != "" {
		return name
	}
	return identity.EmailLocalPart()
}
