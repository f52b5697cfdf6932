package main

import (
	"fmt"

	"github.com/fjod/go_cart/checkout-core/internal/config"
	"github.com/fjod/go_cart/checkout-core/internal/logger"
	"github.com/fjod/go_cart/checkout-core/internal/repository"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func migrateCmd(configDir *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending postgres migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configDir)
			if err != nil {
				return err
			}
			log, err := logger.New(cfg.Environment, cfg.LogLevel)
			if err != nil {
				return fmt.Errorf("build logger: %w", err)
			}
			defer log.Sync()

			creds := cfg.Database.Credentials()
			repo, err := repository.NewRepository(creds, cfg.Storage.Timeout)
			if err != nil {
				return err
			}
			defer repo.Close()

			if err := repo.RunMigrations(creds); err != nil {
				return err
			}
			log.Info("database migrations completed", zap.String("path", creds.MigrationsDirPath))
			return nil
		},
	}
}
