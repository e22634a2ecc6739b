package main

import (
	"errors"
	"fmt"
	"time"

	authjwt "pet-care-tracker/internal/adapters/auth/jwt"
	"pet-care-tracker/internal/config"

	"github.com/spf13/cobra"
)

func tokenCmd() *cobra.Command {
	var (
		userID string
		email  string
		role   string
		ttl    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Emite un JWT firmado con AUTH_JWT_SECRET (pruebas y operadores)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if userID == "" {
				return errors.New("--user is required")
			}

			v, err := authjwt.NewVerifier(authjwt.Config{Secret: cfg.AuthJWTSecret, Issuer: cfg.AuthJWTIssuer})
			if err != nil {
				return err
			}
			tok, err := v.Issue(userID, email, role, cfg.AuthJWTIssuer, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "user id (sub)")
	cmd.Flags().StringVar(&email, "email", "", "email")
	cmd.Flags().StringVar(&role, "role", "", "rol, ej. admin")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "validez del token")
	return cmd
}
