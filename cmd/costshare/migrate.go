package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rgehrsitz/costshare/internal/config"
	"github.com/rgehrsitz/costshare/internal/domain"
	"github.com/rgehrsitz/costshare/internal/store"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the PostgreSQL schema, optionally seeding it from a dataset",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		settings, log, err := loadSettings(cmd)
		if err != nil {
			return err
		}
		if settings.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required")
		}

		// Validate the seed before touching the database
		var ds *domain.Dataset
		seed, _ := cmd.Flags().GetString("seed")
		if seed != "" {
			if ds, err = config.NewInputParser().LoadFromFile(seed); err != nil {
				return err
			}
		}

		pool, err := store.NewPool(ctx, settings.DatabaseURL, settings.DBMaxConns)
		if err != nil {
			return err
		}
		defer pool.Close()

		s := store.NewPGStore(pool)
		if err := s.Migrate(ctx); err != nil {
			return err
		}
		log.Info().Msg("schema applied")

		if ds != nil {
			if err := s.Import(ctx, ds); err != nil {
				return fmt.Errorf("seed %s: %w", seed, err)
			}
			log.Info().Str("dataset", seed).Msg("dataset imported")
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Migration complete")
		return nil
	},
}

func init() {
	migrateCmd.Flags().String("seed", "", "Dataset file to import after creating the schema")
}
