package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/Ampplex/InfluencerFlow-sub001/config"
	"github.com/Ampplex/InfluencerFlow-sub001/middleware"
	"github.com/Ampplex/InfluencerFlow-sub001/model"
	"github.com/spf13/cobra"
)

var (
	tokenUser string
	tokenRole string
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint a bearer token for local testing",
	Long:  `Signs an HS256 token with auth.jwt_secret. Only useful when auth.verify_tokens is on.`,
	RunE:  runToken,
}

func init() {
	tokenCmd.Flags().StringVar(&tokenUser, "user", "", "User id to embed in the token")
	tokenCmd.Flags().StringVar(&tokenRole, "role", "", "Optional role: brand or influencer")
	tokenCmd.MarkFlagRequired("user")
	rootCmd.AddCommand(tokenCmd)
}

func runToken(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if cfg.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret is required (or set " + config.EnvJWTSecret + ")")
	}
	if tokenRole != "" {
		if _, ok := model.ParseRole(tokenRole); !ok {
			return fmt.Errorf("unknown role %q", tokenRole)
		}
	}

	token, expiresAt, err := middleware.GenerateToken(tokenUser, tokenRole, &cfg.Auth)
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), token)
	fmt.Fprintf(cmd.ErrOrStderr(), "expires at %s\n", expiresAt.Format(time.RFC3339))
	return nil
}
