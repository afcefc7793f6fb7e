package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/cobra"

	"github.com/fiscaldesk/support-platform/internal/middleware"
)

var (
	tokenSecret string
	tokenRole   string
	tokenName   string
	tokenTTL    time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token <subject>",
	Short: "Issue a signed API token for local development",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if tokenSecret == "" {
			return errors.New("--secret or JWT_SECRET is required")
		}
		role := middleware.Role(tokenRole)
		switch role {
		case middleware.RoleParticipant, middleware.RoleStudent, middleware.RoleCoordinator, middleware.RoleService:
		default:
			return fmt.Errorf("unknown role %q", tokenRole)
		}

		now := time.Now()
		token, err := middleware.IssueToken(tokenSecret, args[0], role, tokenName, jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(tokenTTL)),
		})
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenSecret, "secret", os.Getenv("JWT_SECRET"), "HMAC secret shared with the API")
	tokenCmd.Flags().StringVar(&tokenRole, "role", string(middleware.RoleParticipant), "participant, student, coordinator or service")
	tokenCmd.Flags().StringVar(&tokenName, "name", "", "Display name")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "Token lifetime")
}
