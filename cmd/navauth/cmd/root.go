package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/awnumar/memguard"
	"github.com/spf13/cobra"

	"github.com/jmcleod/navauth/internal/config"
)

// Version is set at build time.
var Version = "dev"

var (
	baseURL  string
	dataDir  string
	logLevel string

	cfg    *config.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "navauth",
	Short: "navauth signs you in to the auth backend from the terminal",
	Long: `A command line client for the authentication backend: sign up, sign in with
a one-time code, reset a forgotten password, and keep the session alive.
Configuration is read from NAVAUTH_* environment variables and overridden by flags.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load()
		if err != nil {
			return err
		}
		flags := cmd.Flags()
		if flags.Changed("base-url") {
			loaded.BaseURL = baseURL
		}
		if flags.Changed("data-dir") {
			loaded.DataDir = dataDir
		}
		if flags.Changed("log-level") {
			loaded.LogLevel = logLevel
		}
		lvl, err := loaded.Level()
		if err != nil {
			return err
		}
		opts := &slog.HandlerOptions{Level: lvl}
		if loaded.LogFormat == "json" {
			logger = slog.New(slog.NewJSONHandler(os.Stderr, opts))
		} else {
			logger = slog.New(slog.NewTextHandler(os.Stderr, opts))
		}
		cfg = loaded
		return nil
	},
}

// Execute runs the root command. Sensitive memory is wiped on exit.
func Execute() {
	err := rootCmd.Execute()
	memguard.Purge()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&baseURL, "base-url", "", "Backend base URL (env NAVAUTH_BASE_URL)")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "Directory for the session database (env NAVAUTH_DATA_DIR)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error (env NAVAUTH_LOG_LEVEL)")
	rootCmd.Version = Version
	rootCmd.SetVersionTemplate(fmt.Sprintf("navauth %s\n", Version))
}
