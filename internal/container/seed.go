package container

import (
	"context"
	"errors"
	"fmt"

	"cleansight/internal/domain"
	"cleansight/internal/repository"
	"cleansight/internal/service/identity"
	"cleansight/pkg/logger"
)

// DemoPassword is shared by every demo account
const DemoPassword = "demo123"

type demoAccount struct {
	email string
	name  string
	role  domain.Role
	zone  string
}

var demoAccounts = []demoAccount{
	{"citizen@demo.com", "Demo Citizen", domain.RoleCitizen, "Koramangala"},
	{"ragpicker@demo.com", "Demo Kiosk", domain.RoleRagpicker, "Indiranagar"},
	{"org@demo.com", "Demo Institution", domain.RoleInstitution, "Whitefield"},
	{"admin@demo.com", "Demo Admin", domain.RoleAdmin, "MG Road"},
}

// SeedDemoAccounts creates the four demo users with completed onboarding.
// Accounts that already exist are left alone.
func SeedDemoAccounts(ctx context.Context, accounts repository.AccountRepository, profiles repository.ProfileRepository, log *logger.Logger) (int, error) {
	hash, err := identity.HashPassword(DemoPassword)
	if err != nil {
		return 0, err
	}

	created := 0
	for _, demo := range demoAccounts {
		existing, err := accounts.GetByEmail(ctx, demo.email)
		if err != nil {
			return created, fmt.Errorf("lookup %s: %w", demo.email, err)
		}
		if existing != nil {
			continue
		}

		acct := &domain.Account{Email: demo.email, PasswordHash: hash, DisplayName: demo.name}
		if err := accounts.Create(ctx, acct); err != nil {
			return created, fmt.Errorf("create %s: %w", demo.email, err)
		}

		p := &domain.Profile{
			ID:          acct.ID,
			Email:       demo.email,
			DisplayName: demo.name,
			Role:        demo.role,
			State:       "Karnataka",
			City:        "Bengaluru",
			Zone:        demo.zone,
			Address:     "1 " + demo.zone + " Main Road",
			Extensions: map[string]any{
				"fullLocation": demo.zone + ", Bengaluru, Karnataka",
			},
		}
		if err := profiles.Create(ctx, p); err != nil && !errors.Is(err, domain.ErrProfileExists) {
			return created, fmt.Errorf("create profile %s: %w", demo.email, err)
		}
		created++
	}

	log.WithField("created", created).Info("Demo accounts seeded")
	return created, nil
}
