package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/codefionn/webmessaging/internal/config"
	"github.com/codefionn/webmessaging/internal/logger"
	"github.com/codefionn/webmessaging/internal/securemem"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	configFile string
	envFile    string
	logLevel   string
	logPath    string
	verbose    bool

	appConfig *config.Configuration
)

var rootCmd = &cobra.Command{
	Use:   "webmessaging",
	Short: "Web messaging client for the terminal",
	Long: `webmessaging connects to a web messaging deployment and lets you chat
from the terminal.

Settings are read from the YAML file given with --config and from
WEBMESSAGING_* environment variables, which may also come from a .env file.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setupLogging()
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		return logger.Global().Close()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Configuration file (YAML)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Environment file loaded before the configuration")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error, none)")
	rootCmd.PersistentFlags().StringVar(&logPath, "log-path", "", "Write logs to this file instead of stderr")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable logging")

	rootCmd.AddCommand(chatCmd, historyCmd, configCmd)
}

func main() {
	securemem.Init()
	defer securemem.Purge()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		securemem.Purge()
		os.Exit(1)
	}
}

// loadConfig reads the env file, then the configuration, then applies the
// command line overrides.
func loadConfig() (*config.Configuration, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}
	if verbose {
		cfg.Logging = true
	}
	if strings.TrimSpace(logLevel) != "" {
		cfg.Logging = true
		cfg.LogLevel = logLevel
	}
	if strings.TrimSpace(logPath) != "" {
		cfg.LogPath = logPath
	}
	return cfg, nil
}

func setupLogging() error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	appConfig = cfg
	if err := logger.Init(cfg.Level(), cfg.LogPath); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	slog.SetDefault(logger.NewSlog(logger.Global().WithPrefix("slog")))
	logger.Debug("configuration loaded from %q", configFile)
	return nil
}
