package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/solatis/policyrouter/internal/core/config"
	"github.com/solatis/policyrouter/internal/core/db"
	"github.com/solatis/policyrouter/internal/core/logging"
	"github.com/solatis/policyrouter/internal/core/policy"
)

// Version is the build version reported in logs and health responses.
const Version = "0.1.0"

var (
	configFile string
	dbURL      string
	logLevel   string
	logFormat  string
)

var rootCmd = &cobra.Command{
	Use:           "policyrouter",
	Short:         "Policy router for event attribute matching",
	Long:          `policyrouter evaluates flat JSON events against a set of routing policies and returns the winning policy's configuration.`,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path")
	rootCmd.PersistentFlags().StringVar(&dbURL, "db-url", "", "database connection URL (sqlite://path or postgres://...), defaults to $PR_DB_URL")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format (json, console)")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// loadConfig loads the config file and applies persistent flag overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if cmd.Flags().Changed("log-level") {
		cfg.Log.Level = logLevel
	}
	if cmd.Flags().Changed("log-format") {
		cfg.Log.Format = logFormat
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return logger.With(zap.String("version", Version)), nil
}

func databaseURL() string {
	if dbURL != "" {
		return dbURL
	}
	return os.Getenv("PR_DB_URL")
}

// openDatabase opens the configured database. Returns an error when no URL is set.
func openDatabase() (*sqlx.DB, error) {
	url := databaseURL()
	if url == "" {
		return nil, fmt.Errorf("--db-url or PR_DB_URL required")
	}
	database, err := db.Open(url)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return database, nil
}

// openQueries opens the database and loads named queries, refusing to run
// against a schema with pending migrations.
func openQueries() (*sqlx.DB, *db.Queries, error) {
	database, err := openDatabase()
	if err != nil {
		return nil, nil, err
	}

	statuses, err := db.MigrateStatus(database)
	if err != nil {
		database.Close()
		return nil, nil, fmt.Errorf("failed to check migrations: %w", err)
	}
	for _, s := range statuses {
		if !s.Applied {
			database.Close()
			return nil, nil, fmt.Errorf("migration %s not applied - run 'policyrouter migrate up' first", s.ID)
		}
	}

	queries, err := db.LoadQueries(database)
	if err != nil {
		database.Close()
		return nil, nil, fmt.Errorf("failed to load queries: %w", err)
	}
	return database, queries, nil
}

// policySource builds the configured policy source. queries is required
// for the database source only.
func policySource(cfg *config.Config, queries *db.Queries) (policy.Source, error) {
	switch cfg.Policies.Source {
	case config.SourceFile:
		return policy.NewFileSource(cfg.Policies.Path), nil
	case config.SourceDatabase:
		if queries == nil {
			return nil, fmt.Errorf("policies.source=database requires --db-url")
		}
		return policy.NewDatabaseSource(queries), nil
	default:
		return nil, fmt.Errorf("unknown policy source %q", cfg.Policies.Source)
	}
}

// loadRegistry builds a registry over source and performs the initial load.
func loadRegistry(ctx context.Context, source policy.Source, logger *zap.Logger) (*policy.Registry, error) {
	registry := policy.NewRegistry(source, logger, nil)
	if _, err := registry.Reload(ctx); err != nil {
		return nil, err
	}
	return registry, nil
}
