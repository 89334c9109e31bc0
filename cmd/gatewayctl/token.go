package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/kursadbilgin/concur-gateway/internal/infra/postgresql"
	"github.com/kursadbilgin/concur-gateway/internal/infra/postgresql/migrations"
	"github.com/kursadbilgin/concur-gateway/internal/observability"
	"github.com/kursadbilgin/concur-gateway/internal/repository"
	"github.com/kursadbilgin/concur-gateway/internal/service"
	"github.com/kursadbilgin/concur-gateway/internal/token"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const storeTimeout = 30 * time.Second

// openDBFunc is replaced in tests.
var openDBFunc = openDB

// TokenInfo is the non-secret view of a token.
type TokenInfo struct {
	Token     string    `json:"token"`
	Valid     bool      `json:"valid"`
	CreatedAt time.Time `json:"createdAt,omitempty"`
}

// IssuedTokenResult is printed once when a token is stored.
type IssuedTokenResult struct {
	ID           string    `json:"id"`
	RepositoryID string    `json:"repositoryId"`
	Token        string    `json:"token"`
	CreatedAt    time.Time `json:"createdAt"`
}

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Generate, inspect, issue and revoke API tokens",
	}

	cmd.AddCommand(tokenGenerateCmd())
	cmd.AddCommand(tokenInspectCmd())
	cmd.AddCommand(tokenIssueCmd())
	cmd.AddCommand(tokenRevokeCmd())

	return cmd
}

func tokenGenerateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "generate",
		Short: "Print a new token without storing it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := token.Generate(time.Now())
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), raw)
			return err
		},
	}
}

func tokenInspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <token>",
		Short: "Check a token's format and decode its creation time",
		Long: `Check a token's format and decode its creation time.

The secret part is masked in the output. The token store is not consulted.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return printJSON(cmd.OutOrStdout(), inspectToken(args[0]))
		},
	}
}

func inspectToken(raw string) TokenInfo {
	raw = strings.TrimSpace(raw)
	info := TokenInfo{
		Token: observability.RedactToken(raw),
		Valid: token.ValidateFormat(raw),
	}
	if createdAt, ok := token.CreatedAt(raw); ok {
		info.CreatedAt = createdAt
	}
	return info
}

func tokenIssueCmd() *cobra.Command {
	var repositoryID string

	cmd := &cobra.Command{
		Use:   "issue",
		Short: "Issue and store a token for a repository",
		Long: `Issue a token for a repository and store its digest.

The raw token is printed once and cannot be recovered later.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), storeTimeout)
			defer cancel()

			tokens, closeDB, err := tokenService(ctx)
			if err != nil {
				return err
			}
			defer closeDB()

			issued, err := tokens.Issue(ctx, repositoryID)
			if err != nil {
				return err
			}

			return printJSON(cmd.OutOrStdout(), IssuedTokenResult{
				ID:           issued.ID,
				RepositoryID: issued.RepositoryID,
				Token:        issued.Token,
				CreatedAt:    issued.CreatedAt,
			})
		},
	}

	cmd.Flags().StringVar(&repositoryID, "repo", "", "Repository the token authorizes")
	_ = cmd.MarkFlagRequired("repo")

	return cmd
}

func tokenRevokeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "revoke <token>",
		Short: "Revoke a stored token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), storeTimeout)
			defer cancel()

			tokens, closeDB, err := tokenService(ctx)
			if err != nil {
				return err
			}
			defer closeDB()

			raw := strings.TrimSpace(args[0])
			if err := tokens.Revoke(ctx, raw); err != nil {
				return err
			}

			_, err = fmt.Fprintf(cmd.OutOrStdout(), "revoked %s\n", observability.RedactToken(raw))
			return err
		},
	}
}

func tokenService(ctx context.Context) (*service.TokenService, func(), error) {
	db, err := openDBFunc(ctx, databaseDSN)
	if err != nil {
		return nil, nil, err
	}

	closeDB := func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}

	tokens, err := service.NewTokenService(repository.NewGormTokenRepo(db), zap.NewNop())
	if err != nil {
		closeDB()
		return nil, nil, err
	}
	return tokens, closeDB, nil
}

func openDB(ctx context.Context, dsn string) (*gorm.DB, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("database DSN is required: set --dsn or DATABASE_DSN")
	}

	db, err := postgresql.NewPostgres(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	return migrateDB(db, migrations.Migrate)
}

// migrateDB runs migrate on db and closes the pool when it fails.
func migrateDB(db *gorm.DB, migrate func(*gorm.DB) error) (*gorm.DB, error) {
	if err := migrate(db); err != nil {
		if sqlDB, dbErr := db.DB(); dbErr == nil {
			_ = sqlDB.Close()
		}
		return nil, fmt.Errorf("database migrations failed: %w", err)
	}
	return db, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
