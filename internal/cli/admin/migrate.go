package admin

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cloo-solutions/meddocs/internal/database"
	"github.com/cloo-solutions/meddocs/internal/logger"
)

const defaultMigrationsDir = "migrations"

// MigrateCmd returns the migrate command
func MigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate [up|down]",
		Short: "Apply or roll back database migrations",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			dir, _ := cmd.Flags().GetString("migrations")

			direction := "up"
			if len(args) == 1 {
				direction = args[0]
			}
			switch direction {
			case "up":
				return runMigrations(cfg.DatabaseURL, dir)
			case "down":
				steps, _ := cmd.Flags().GetInt("steps")
				state, err := database.Rollback(cfg.DatabaseURL, dir, steps)
				if err != nil {
					return err
				}
				logger.New("migrate").Info("rolled back migrations", "steps", steps, "version", state.Version, "empty", state.Empty)
				return nil
			default:
				return fmt.Errorf("unknown direction %q (want up or down)", direction)
			}
		},
	}

	cmd.Flags().String("migrations", defaultMigrationsDir, "Directory holding the SQL migrations")
	cmd.Flags().Int("steps", 1, "Number of migrations to roll back with down")

	return cmd
}

func runMigrations(databaseURL, dir string) error {
	state, err := database.Migrate(databaseURL, dir)
	if err != nil {
		return err
	}

	log := logger.New("migrate")
	switch {
	case state.Empty:
		log.Info("no migrations applied")
	case state.Changed:
		log.Info("migrations applied", "version", state.Version)
	default:
		log.Info("database is up to date", "version", state.Version)
	}
	return nil
}
