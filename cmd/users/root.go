// AngelaMos | 2026
// root.go

package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/carterperez-dev/templates/users-service/internal/config"
	"github.com/carterperez-dev/templates/users-service/internal/core"
)

type rootOptions struct {
	configPath string
	envFile    string
}

func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "users",
		Short:         "Users service: accounts, credentials and sessions",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "path to a YAML config file")
	flags.StringVar(&opts.envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.String("log-format", "json", "log format (json, text)")
	flags.String("database-url", "", "PostgreSQL connection URL")

	cmd.AddCommand(
		newServeCmd(opts),
		newMigrateCmd(opts),
		newMailWorkerCmd(opts),
		newKeygenCmd(),
	)

	return cmd
}

// loadConfig reads file, env and the command's changed flags, then installs
// the configured logger as the slog default.
func loadConfig(
	cmd *cobra.Command,
	opts *rootOptions,
	check func(*config.Config) error,
) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(config.Options{
		ConfigPath: opts.configPath,
		EnvFile:    opts.envFile,
		Flags:      cmd.Flags(),
		Validate:   check,
	})
	if err != nil {
		return nil, nil, err
	}

	logger := core.NewLogger(os.Stdout, cfg.Log)
	slog.SetDefault(logger)

	return cfg, logger, nil
}
