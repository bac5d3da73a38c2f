package repository

import (
	"context"
	"time"

	"cleansight/internal/domain"
)

// ProfileRepository is the document-style profile collection keyed by identity id
type ProfileRepository interface {
	// Get returns the profile or nil, nil when none exists
	Get(ctx context.Context, id string) (*domain.Profile, error)

	// Create stores a new profile, failing with domain.ErrProfileExists if one is already there.
	// CreatedAt and UpdatedAt are assigned by the store.
	Create(ctx context.Context, profile *domain.Profile) error

	// Update merges the partial update, failing with domain.ErrProfileNotFound when absent.
	// UpdatedAt always moves strictly forward.
	Update(ctx context.Context, id string, update domain.ProfileUpdate) (*domain.Profile, error)
}

// AccountRepository stores identity provider accounts and their federated links
type AccountRepository interface {
	// GetByID returns the account or nil, nil when none exists
	GetByID(ctx context.Context, id string) (*domain.Account, error)

	// GetByEmail matches case-insensitively and returns nil, nil when none exists
	GetByEmail(ctx context.Context, email string) (*domain.Account, error)

	// Create stores a new account, assigning an id when empty. Fails with domain.ErrEmailTaken.
	Create(ctx context.Context, account *domain.Account) error

	// GetByFederated resolves a provider subject to its linked account, nil, nil when unlinked
	GetByFederated(ctx context.Context, provider, subject string) (*domain.Account, error)

	// LinkFederated attaches a provider subject to an existing account
	LinkFederated(ctx context.Context, provider, subject, accountID string) error

	// CreateFederated creates an account and its provider link atomically
	CreateFederated(ctx context.Context, account *domain.Account, provider, subject string) error
}

// KeyValueStore holds short-lived records: session identities, pending roles and OAuth state
type KeyValueStore interface {
	Put(ctx context.Context, key, value string, ttl time.Duration) error

	// PutNew stores value only when key is absent and reports whether it did
	PutNew(ctx context.Context, key, value string, ttl time.Duration) (bool, error)

	// Get returns ok=false when the key is missing or expired
	Get(ctx context.Context, key string) (value string, ok bool, err error)

	// Take reads and deletes a key in one step
	Take(ctx context.Context, key string) (value string, ok bool, err error)

	Delete(ctx context.Context, key string) error
}

// Repositories aggregates all repository interfaces
type Repositories struct {
	Profiles ProfileRepository
	Accounts AccountRepository
	KV       KeyValueStore
}
