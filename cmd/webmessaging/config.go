package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/codefionn/webmessaging/internal/config"
	"github.com/spf13/cobra"
)

var watchConfig bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the resolved configuration and endpoints",
	RunE:  runConfig,
}

func init() {
	configCmd.Flags().BoolVar(&watchConfig, "watch", false, "Print again whenever the configuration file changes")
}

func runConfig(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	printConfig(out, appConfig)
	if !watchConfig {
		return nil
	}
	if configFile == "" {
		return errors.New("--watch requires --config")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	if err := config.Watch(ctx, configFile, func(cfg *config.Configuration) {
		fmt.Fprintln(out, "---")
		printConfig(out, cfg)
	}); err != nil {
		return err
	}
	<-ctx.Done()
	return nil
}

func printConfig(out io.Writer, cfg *config.Configuration) {
	fmt.Fprintf(out, "deployment_id: %s\n", cfg.DeploymentID)
	fmt.Fprintf(out, "domain: %s\n", cfg.Domain)
	fmt.Fprintf(out, "logging: %t\n", cfg.Logging)
	fmt.Fprintf(out, "log_level: %s\n", cfg.LogLevel)
	fmt.Fprintf(out, "reconnection_timeout: %s\n", cfg.ReconnectionTimeout)
	fmt.Fprintf(out, "auto_refresh_token_when_expired: %t\n", cfg.AutoRefreshTokenWhenExpired)
	fmt.Fprintf(out, "encrypted_vault: %t\n", cfg.EncryptedVault)
	fmt.Fprintf(out, "vault_path: %s\n", cfg.VaultPath)

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(out, "# invalid: %v\n", err)
		return
	}
	fmt.Fprintf(out, "# websocket: %s\n", cfg.WebSocketURL())
	fmt.Fprintf(out, "# deployment: %s\n", cfg.DeploymentConfigURL())
	fmt.Fprintf(out, "# history: %s\n", cfg.HistoryURL(1))
}
