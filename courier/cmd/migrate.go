package cmd

import (
	"context"
	"fmt"
	"time"

	"courier/courier/sources/psql"
	"courier/courier/utils/logging"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		defer logging.Sync()

		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		db, err := psql.NewDatabase(ctx, cfg, logging.AppLogger)
		if err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		db.Close()
		logging.AppLogger.Info("schema up to date", zap.String("driver", cfg.DBDriver))
		fmt.Fprintln(cmd.OutOrStdout(), "schema up to date")
		return nil
	},
}
