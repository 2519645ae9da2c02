package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/internal/config"
	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/internal/infra/postgres"
	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/pkg/logger"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "kat-admin",
	Short: "Administrative CLI for the KAT scheduler",
	Long: `kat-admin manages the scan scheduler out of band: it syncs plugin
manifests into the catalog, flips schedules on and off, and resolves
stuck or failed tasks.

Configuration is read from the same environment variables as the
scheduler itself (DATABASE_*, REDIS_*).`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")

	rootCmd.AddCommand(pluginCmd)
	rootCmd.AddCommand(taskCmd)
	rootCmd.AddCommand(scheduleCmd)
}

// adminEnv bundles the connections a subcommand needs. Subcommands that
// only touch the database leave the rest unopened.
type adminEnv struct {
	cfg *config.Config
	log *logger.Logger
	db  *postgres.DB
}

func openEnv() (*adminEnv, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("loading configuration: %w", err)
	}

	level := "error"
	if verbose {
		level = "debug"
	}
	log := logger.New(logger.Config{Level: level, Format: "text"})

	db, err := postgres.New(&cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to database: %w", err)
	}

	env := &adminEnv{cfg: cfg, log: log, db: db}
	cleanup := func() {
		_ = db.Close()
	}
	return env, cleanup, nil
}
