package repository

import (
	"context"
	"errors"
	"fmt"

	"cleansight/internal/domain"
	"cleansight/pkg/database"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const uniqueViolation = "23505"

const profileColumns = `id, email, display_name, role, avatar_url, state, city, zone, address, extensions, created_at, updated_at`

// profileRepository handles profile documents with PostgreSQL
type profileRepository struct {
	db *database.PostgresDB
}

// NewProfileRepository creates a new profile repository
func NewProfileRepository(db *database.PostgresDB) ProfileRepository {
	return &profileRepository{db: db}
}

func (r *profileRepository) Get(ctx context.Context, id string) (*domain.Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM profiles WHERE id = $1`

	profile, err := scanProfile(r.db.Pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	return profile, nil
}

func (r *profileRepository) Create(ctx context.Context, p *domain.Profile) error {
	query := `
		INSERT INTO profiles (id, email, display_name, role, avatar_url, state, city, zone, address, extensions)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at
	`

	err := r.db.Pool.QueryRow(ctx, query,
		p.ID,
		p.Email,
		p.DisplayName,
		string(p.Role),
		p.AvatarURL,
		p.State,
		p.City,
		p.Zone,
		p.Address,
		nonNilExtensions(p.Extensions),
	).Scan(&p.CreatedAt, &p.UpdatedAt)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return domain.ErrProfileExists
		}
		return fmt.Errorf("failed to create profile: %w", err)
	}
	return nil
}

// Update merges fields with COALESCE and extensions with the jsonb || operator.
// updated_at is bumped by at least one microsecond so two updates in the same
// clock tick still order.
func (r *profileRepository) Update(ctx context.Context, id string, u domain.ProfileUpdate) (*domain.Profile, error) {
	query := `
		UPDATE profiles SET
			display_name = COALESCE($2, display_name),
			avatar_url   = COALESCE($3, avatar_url),
			state        = COALESCE($4, state),
			city         = COALESCE($5, city),
			zone         = COALESCE($6, zone),
			address      = COALESCE($7, address),
			extensions   = extensions || $8::jsonb,
			updated_at   = GREATEST(NOW(), updated_at + INTERVAL '1 microsecond')
		WHERE id = $1
		RETURNING ` + profileColumns

	profile, err := scanProfile(r.db.Pool.QueryRow(ctx, query,
		id,
		u.DisplayName,
		u.AvatarURL,
		u.State,
		u.City,
		u.Zone,
		u.Address,
		nonNilExtensions(u.Extensions),
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrProfileNotFound
		}
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}
	return profile, nil
}

func scanProfile(row pgx.Row) (*domain.Profile, error) {
	p := &domain.Profile{}
	var role string
	err := row.Scan(
		&p.ID,
		&p.Email,
		&p.DisplayName,
		&role,
		&p.AvatarURL,
		&p.State,
		&p.City,
		&p.Zone,
		&p.Address,
		&p.Extensions,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.Role = domain.Role(role)
	return p, nil
}

func nonNilExtensions(ext map[string]any) map[string]any {
	if ext == nil {
		return map[string]any{}
	}
	return ext
}
