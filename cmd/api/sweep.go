package main

import (
	"context"
	"fmt"

	"pet-care-tracker/internal/config"
	"pet-care-tracker/internal/platform/logger"
	"pet-care-tracker/internal/router"

	"github.com/spf13/cobra"
)

func sweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Migra una vez todos los turnos Completed pendientes a historia clínica",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			log := logger.New(logger.Options{Level: cfg.LogLevel, Format: cfg.LogFormat, App: cfg.AppName})

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			opts := router.Options{Logger: log}
			closeStorage, err := storage(ctx, cfg, log, &opts)
			if err != nil {
				return err
			}
			defer closeStorage()

			n, err := router.NewApp(opts).Migrator.SweepAll(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "migrated %d appointment(s)\n", n)
			return nil
		},
	}
}
