package repository

import (
	"context"
	"sync"
	"time"

	"cleansight/internal/domain"
	"github.com/google/uuid"
)

// MemoryProfileRepository keeps profiles in process. Used when no database is configured and in tests.
type MemoryProfileRepository struct {
	mu       sync.RWMutex
	profiles map[string]*domain.Profile
	now      func() time.Time
}

// NewMemoryProfileRepository creates an empty in-memory profile store
func NewMemoryProfileRepository() *MemoryProfileRepository {
	return &MemoryProfileRepository{
		profiles: make(map[string]*domain.Profile),
		now:      time.Now,
	}
}

func (r *MemoryProfileRepository) Get(_ context.Context, id string) (*domain.Profile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.profiles[id].Clone(), nil
}

func (r *MemoryProfileRepository) Create(_ context.Context, p *domain.Profile) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.profiles[p.ID]; exists {
		return domain.ErrProfileExists
	}
	now := r.now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now
	r.profiles[p.ID] = p.Clone()
	return nil
}

func (r *MemoryProfileRepository) Update(_ context.Context, id string, u domain.ProfileUpdate) (*domain.Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.profiles[id]
	if !ok {
		return nil, domain.ErrProfileNotFound
	}
	u.ApplyTo(p)

	now := r.now().UTC()
	if !now.After(p.UpdatedAt) {
		now = p.UpdatedAt.Add(time.Microsecond)
	}
	p.UpdatedAt = now
	return p.Clone(), nil
}

// Len returns the number of stored profiles
func (r *MemoryProfileRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.profiles)
}

type federatedKey struct {
	provider string
	subject  string
}

// MemoryAccountRepository keeps accounts in process
type MemoryAccountRepository struct {
	mu        sync.RWMutex
	byID      map[string]*domain.Account
	byEmail   map[string]string
	federated map[federatedKey]string
}

// NewMemoryAccountRepository creates an empty in-memory account store
func NewMemoryAccountRepository() *MemoryAccountRepository {
	return &MemoryAccountRepository{
		byID:      make(map[string]*domain.Account),
		byEmail:   make(map[string]string),
		federated: make(map[federatedKey]string),
	}
}

func (r *MemoryAccountRepository) GetByID(_ context.Context, id string) (*domain.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return copyAccount(r.byID[id]), nil
}

func (r *MemoryAccountRepository) GetByEmail(_ context.Context, email string) (*domain.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return copyAccount(r.byID[r.byEmail[domain.NormalizeEmail(email)]]), nil
}

func (r *MemoryAccountRepository) GetByFederated(_ context.Context, provider, subject string) (*domain.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return copyAccount(r.byID[r.federated[federatedKey{provider, subject}]]), nil
}

func (r *MemoryAccountRepository) Create(_ context.Context, a *domain.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.createLocked(a)
}

func (r *MemoryAccountRepository) LinkFederated(_ context.Context, provider, subject, accountID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.linkLocked(provider, subject, accountID)
}

func (r *MemoryAccountRepository) CreateFederated(_ context.Context, a *domain.Account, provider, subject string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, linked := r.federated[federatedKey{provider, subject}]; linked {
		return domain.ErrFederatedLinked
	}
	if err := r.createLocked(a); err != nil {
		return err
	}
	return r.linkLocked(provider, subject, a.ID)
}

func (r *MemoryAccountRepository) createLocked(a *domain.Account) error {
	email := domain.NormalizeEmail(a.Email)
	if _, taken := r.byEmail[email]; taken {
		return domain.ErrEmailTaken
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	r.byID[a.ID] = copyAccount(a)
	r.byEmail[email] = a.ID
	return nil
}

func (r *MemoryAccountRepository) linkLocked(provider, subject, accountID string) error {
	key := federatedKey{provider, subject}
	if _, linked := r.federated[key]; linked {
		return domain.ErrFederatedLinked
	}
	if _, ok := r.byID[accountID]; !ok {
		return domain.ErrAccountNotFound
	}
	r.federated[key] = accountID
	return nil
}

func copyAccount(a *domain.Account) *domain.Account {
	if a == nil {
		return nil
	}
	c := *a
	return &c
}
