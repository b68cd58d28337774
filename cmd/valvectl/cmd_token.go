package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/nerrad567/valvectl/internal/auth"
)

var (
	tokenSubject string
	tokenRole    string
	tokenTTL     time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint an API bearer token",
	Long: `Token signs a bearer token for the HTTP API with security.jwt.secret.

Roles:
  viewer    read operation history and stream logs
  operator  viewer, plus start and stop valve operations`,
	Args: cobra.NoArgs,
	RunE: runToken,
}

func init() {
	tokenCmd.Flags().StringVar(&tokenSubject, "subject", "", "Who the token is for (required)")
	tokenCmd.Flags().StringVar(&tokenRole, "role", string(auth.RoleOperator), "viewer or operator")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 0, "Token lifetime (default security.jwt.token_ttl)")
	//nolint:errcheck // flag exists
	tokenCmd.MarkFlagRequired("subject")
	rootCmd.AddCommand(tokenCmd)
}

func runToken(cmd *cobra.Command, _ []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.ValidateServe(); err != nil {
		return err
	}

	ttl := tokenTTL
	if ttl == 0 {
		ttl = cfg.GetTokenTTL()
	}

	token, err := auth.GenerateToken(tokenSubject, auth.Role(tokenRole), cfg.Security.JWT.Secret, ttl)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}
