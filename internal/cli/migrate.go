package cli

import (
	"context"
	"fmt"

	"exam-grading-service/internal/config"
	"exam-grading-service/internal/infra/database"
	"exam-grading-service/internal/infra/database/migrations"
	"exam-grading-service/internal/logger"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// NewMigrateCmd applies database migrations.
func NewMigrateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrations(cmd.Context(), *configPath)
		},
	}
}

func runMigrations(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	return runMigrationsWithConfig(ctx, cfg, logger.Setup(cfg.Log.Level, cfg.Log.Format))
}

func runMigrationsWithConfig(ctx context.Context, cfg config.Config, log zerolog.Logger) error {
	driver, dsn, ok := databaseTarget(cfg)
	if !ok {
		return fmt.Errorf("no database configured: set postgres.url or sqlite.path")
	}

	db, err := database.Open(ctx, driver, dsn)
	if err != nil {
		return err
	}
	defer db.Close()

	applied, err := migrations.Apply(ctx, db)
	if err != nil {
		return err
	}
	log.Info().Str("driver", driver).Strs("applied", applied).Msg("migrations applied")
	return nil
}

// databaseTarget picks Postgres when configured, then SQLite.
func databaseTarget(cfg config.Config) (driver, dsn string, ok bool) {
	switch {
	case cfg.Postgres.URL != "":
		return database.DriverPostgres, cfg.Postgres.URL, true
	case cfg.SQLite.Path != "":
		return database.DriverSQLite, "file:" + cfg.SQLite.Path + "?_pragma=busy_timeout(5000)", true
	default:
		return "", "", false
	}
}
