package main

import (
	"context"
	"fmt"

	"pet-care-tracker/internal/adapters/storage/mongodb"
	"pet-care-tracker/internal/adapters/storage/postgres"
	"pet-care-tracker/internal/config"

	"github.com/spf13/cobra"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Aplica el schema de Postgres o los índices de Mongo",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			switch cfg.StorageBackend {
			case config.BackendPostgres:
				db, err := postgres.Open(cfg.DBDSN)
				if err != nil {
					return err
				}
				defer db.Close()
				if err := postgres.Migrate(ctx, db); err != nil {
					return err
				}
			case config.BackendMongo:
				db, disconnect, err := mongodb.Connect(ctx, cfg.MongoURI, cfg.MongoDatabase)
				if err != nil {
					return err
				}
				defer disconnect(context.Background())
				if err := mongodb.EnsureIndexes(ctx, db); err != nil {
					return err
				}
			default:
				fmt.Fprintln(cmd.OutOrStdout(), "memory backend: nothing to migrate")
				return nil
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s schema applied\n", cfg.StorageBackend)
			return nil
		},
	}
}
