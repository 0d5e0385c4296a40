package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/MrEthical07/goGate/internal/config"
)

var (
	cfg    *config.Config
	logger *slog.Logger

	configPath string
)

var rootCmd = &cobra.Command{
	Use:   "gogate",
	Short: "Role-gated session API server",
	Long: `gogate serves email/password authentication backed by Redis sessions
and gates the API by role (user, moderator, admin).`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		if err := applyFlagOverrides(cmd); err != nil {
			return err
		}
		logger = newLogger(cfg)
		slog.SetDefault(logger)
		return nil
	},
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML configuration file, overlaid on the environment")
	rootCmd.PersistentFlags().String("db-url", "", "Database connection URL (env: DATABASE_URL)")
	rootCmd.PersistentFlags().String("redis-url", "", "Redis connection URL (env: REDIS_URL)")
	rootCmd.PersistentFlags().String("server-addr", "", "Server bind address (env: SERVER_ADDR)")
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging (env: DEBUG)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Emit JSON logs (env: LOG_JSON)")
}

// applyFlagOverrides copies explicitly set flags over the loaded
// configuration.
func applyFlagOverrides(cmd *cobra.Command) error {
	flags := cmd.Flags()
	if flags.Changed("db-url") {
		cfg.DatabaseURL, _ = flags.GetString("db-url")
	}
	if flags.Changed("redis-url") {
		cfg.RedisURL, _ = flags.GetString("redis-url")
	}
	if flags.Changed("server-addr") {
		cfg.ServerAddr, _ = flags.GetString("server-addr")
	}
	if flags.Changed("debug") {
		cfg.Debug, _ = flags.GetBool("debug")
	}
	if flags.Changed("log-json") {
		cfg.LogJSON, _ = flags.GetBool("log-json")
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

func newLogger(c *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if c.Debug {
		opts.Level = slog.LevelDebug
	}
	if c.LogJSON {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
