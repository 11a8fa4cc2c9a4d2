package main

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"artnote-server/internal/config"
	"artnote-server/internal/database"
)

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Миграции PostgreSQL",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Применить все миграции",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig()
			if err != nil {
				return err
			}
			log.Info().Str("db", cfg.MaskedDSN()).Msg("applying migrations")
			if err := database.MigrateUp(cfg.GetDSN(), serviceLogger); err != nil {
				return err
			}
			log.Info().Msg("migrations applied")
			return nil
		},
	}

	var steps int
	downCmd := &cobra.Command{
		Use:   "down",
		Short: "Откатить миграции",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig()
			if err != nil {
				return err
			}
			log.Warn().Str("db", cfg.MaskedDSN()).Int("steps", steps).Msg("rolling back migrations")
			if err := database.MigrateDown(cfg.GetDSN(), steps, serviceLogger); err != nil {
				return err
			}
			log.Info().Msg("rollback finished")
			return nil
		},
	}
	downCmd.Flags().IntVar(&steps, "steps", 1, "сколько миграций откатить")

	cmd.AddCommand(upCmd, downCmd)
	return cmd
}
