package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"cleansight/internal/container"
	"cleansight/internal/repository"
	"cleansight/pkg/database"
	"cleansight/pkg/logger"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var timeout time.Duration

var rootCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the cleansight database schema",
	Long: `Create, drop and seed the accounts and profiles tables.

Reads DATABASE_URL from the environment or a local .env file.`,
	SilenceUsage: true,
}

var upCmd = &cobra.Command{
	Use:   "up",
	Short: "Create tables and indexes",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDB(cmd.Context(), func(ctx context.Context, db *database.PostgresDB) error {
			if err := db.Migrate(ctx); err != nil {
				return fmt.Errorf("failed to create tables: %w", err)
			}
			fmt.Println("✅ All tables created successfully")
			return nil
		})
	},
}

var dropCmd = &cobra.Command{
	Use:   "drop",
	Short: "Drop every table",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDB(cmd.Context(), func(ctx context.Context, db *database.PostgresDB) error {
			if err := db.Drop(ctx); err != nil {
				return fmt.Errorf("failed to drop tables: %w", err)
			}
			fmt.Println("✅ All tables dropped successfully")
			return nil
		})
	},
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Create the demo accounts, one per role",
	Long: `Create the demo accounts with completed onboarding. Existing accounts are left alone.

All demo accounts share the password ` + container.DemoPassword + `.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDB(cmd.Context(), func(ctx context.Context, db *database.PostgresDB) error {
			created, err := container.SeedDemoAccounts(ctx,
				repository.NewAccountRepository(db), repository.NewProfileRepository(db), logger.NewNop())
			if err != nil {
				return fmt.Errorf("failed to seed data: %w", err)
			}
			fmt.Printf("✅ Seeded %d demo accounts\n", created)
			return nil
		})
	},
}

func withDB(parent context.Context, fn func(ctx context.Context, db *database.PostgresDB) error) error {
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return fmt.Errorf("DATABASE_URL environment variable is not set")
	}

	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	db, err := database.NewPostgresDB(ctx, dbURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	return fn(ctx, db)
}

func main() {
	if err := godotenv.Load(); err != nil {
		fmt.Println("Warning: .env file not found")
	}

	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", time.Minute, "deadline for the whole command")
	rootCmd.AddCommand(upCmd, dropCmd, seedCmd)

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
