package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"routeledger/internal/infrastructure/auth"
)

var (
	tokenSubject string
	tokenScopes  []string
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue an operator token",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.Auth.JWTSecret == "" {
			return errors.New("auth.jwt_secret is not set, authentication is disabled")
		}
		svc := auth.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.TokenTTL)
		token, expires, err := svc.Issue(tokenSubject, tokenScopes...)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		fmt.Fprintf(cmd.ErrOrStderr(), "expires %s\n", expires.Format("2006-01-02 15:04 MST"))
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenSubject, "subject", "", "operator name")
	tokenCmd.Flags().StringSliceVar(&tokenScopes, "scope", nil, "granted scope, repeatable (e.g. settlement)")
	_ = tokenCmd.MarkFlagRequired("subject")
	rootCmd.AddCommand(tokenCmd)
}
