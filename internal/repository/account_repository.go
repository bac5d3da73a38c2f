package repository

import (
	"context"
	"errors"
	"fmt"

	"cleansight/internal/domain"
	"cleansight/pkg/database"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const accountColumns = `a.id, a.email, COALESCE(a.password_hash, ''), COALESCE(a.display_name, ''), COALESCE(a.avatar_url, '')`

// accountRepository handles identity provider accounts with PostgreSQL
type accountRepository struct {
	db *database.PostgresDB
}

// NewAccountRepository creates a new account repository
func NewAccountRepository(db *database.PostgresDB) AccountRepository {
	return &accountRepository{db: db}
}

func (r *accountRepository) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	if _, err := uuid.Parse(id); err != nil {
		// ids minted elsewhere can never match a uuid column
		return nil, nil
	}
	query := `SELECT ` + accountColumns + ` FROM accounts a WHERE a.id = $1`
	return r.getOne(ctx, query, id)
}

func (r *accountRepository) GetByEmail(ctx context.Context, email string) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts a WHERE LOWER(a.email) = $1`
	return r.getOne(ctx, query, domain.NormalizeEmail(email))
}

func (r *accountRepository) GetByFederated(ctx context.Context, provider, subject string) (*domain.Account, error) {
	query := `
		SELECT ` + accountColumns + `
		FROM federated_identities f
		JOIN accounts a ON a.id = f.account_id
		WHERE f.provider = $1 AND f.subject = $2
	`
	return r.getOne(ctx, query, provider, subject)
}

func (r *accountRepository) Create(ctx context.Context, account *domain.Account) error {
	return insertAccount(ctx, r.db.Pool, account)
}

func (r *accountRepository) LinkFederated(ctx context.Context, provider, subject, accountID string) error {
	return insertLink(ctx, r.db.Pool, provider, subject, accountID)
}

func (r *accountRepository) CreateFederated(ctx context.Context, account *domain.Account, provider, subject string) error {
	return pgx.BeginFunc(ctx, r.db.Pool, func(tx pgx.Tx) error {
		if err := insertAccount(ctx, tx, account); err != nil {
			return err
		}
		return insertLink(ctx, tx, provider, subject, account.ID)
	})
}

func (r *accountRepository) getOne(ctx context.Context, query string, args ...any) (*domain.Account, error) {
	a := &domain.Account{}
	err := r.db.Pool.QueryRow(ctx, query, args...).Scan(&a.ID, &a.Email, &a.PasswordHash, &a.DisplayName, &a.AvatarURL)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return a, nil
}

type execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

func insertAccount(ctx context.Context, db execer, a *domain.Account) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	_, err := db.Exec(ctx, `
		INSERT INTO accounts (id, email, password_hash, display_name, avatar_url)
		VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), NULLIF($5, ''))
	`, a.ID, a.Email, a.PasswordHash, a.DisplayName, a.AvatarURL)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return domain.ErrEmailTaken
		}
		return fmt.Errorf("failed to create account: %w", err)
	}
	return nil
}

func insertLink(ctx context.Context, db execer, provider, subject, accountID string) error {
	_, err := db.Exec(ctx, `
		INSERT INTO federated_identities (provider, subject, account_id)
		VALUES ($1, $2, $3)
	`, provider, subject, accountID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return domain.ErrFederatedLinked
		}
		return fmt.Errorf("failed to link federated identity: %w", err)
	}
	return nil
}
