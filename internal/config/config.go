// Package config assembles the session configuration and derives the
// gateway endpoints from it.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/codefionn/webmessaging/internal/consts"
	"github.com/codefionn/webmessaging/internal/logger"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix prefixes environment overrides, e.g. WEBMESSAGING_DOMAIN.
const EnvPrefix = "WEBMESSAGING_"

var (
	ErrMissingDeploymentID = errors.New("deployment id is required")
	ErrMissingDomain       = errors.New("domain is required")
)

var knownLevels = map[string]bool{
	"debug": true, "info": true, "warn": true, "warning": true,
	"error": true, "none": true, "off": true,
}

// Configuration is assembled once per client.
type Configuration struct {
	DeploymentID                string        `koanf:"deployment_id"`
	Domain                      string        `koanf:"domain"`
	Logging                     bool          `koanf:"logging"`
	ReconnectionTimeout         time.Duration `koanf:"reconnection_timeout"`
	AutoRefreshTokenWhenExpired bool          `koanf:"auto_refresh_token_when_expired"`
	EncryptedVault              bool          `koanf:"encrypted_vault"`
	VaultPath                   string        `koanf:"vault_path"`
	LogPath                     string        `koanf:"log_path"`
	LogLevel                    string        `koanf:"log_level"` // debug, info, warn, error, none

	// Optional base URL overrides; empty values derive from Domain.
	WebSocketBase string `koanf:"websocket_base"`
	APIBase       string `koanf:"api_base"`
	CDNBase       string `koanf:"cdn_base"`
}

func defaultStateDir() string {
	switch runtime.GOOS {
	case "windows":
		if localAppData := strings.TrimSpace(os.Getenv("LOCALAPPDATA")); localAppData != "" {
			return filepath.Join(localAppData, "webmessaging")
		}
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, "AppData", "Local", "webmessaging")
	default:
		if stateHome := strings.TrimSpace(os.Getenv("XDG_STATE_HOME")); stateHome != "" {
			return filepath.Join(stateHome, "webmessaging")
		}
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, ".local", "state", "webmessaging")
	}
}

// DefaultConfiguration returns the defaults every loaded file is merged onto.
func DefaultConfiguration() *Configuration {
	return &Configuration{
		Logging:                     false,
		ReconnectionTimeout:         consts.DefaultReconnectionTimeout,
		AutoRefreshTokenWhenExpired: true,
		EncryptedVault:              false,
		VaultPath:                   filepath.Join(defaultStateDir(), "vault.enc"),
		LogLevel:                    "info",
	}
}

// Load merges the YAML file at path (optional) and WEBMESSAGING_*
// environment variables onto the defaults.
func Load(path string) (*Configuration, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("load config from %s: %w", path, err)
			}
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	}), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := DefaultConfiguration()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

// Validate reports missing required settings.
func (c *Configuration) Validate() error {
	var errs []error
	if strings.TrimSpace(c.DeploymentID) == "" {
		errs = append(errs, ErrMissingDeploymentID)
	}
	if strings.TrimSpace(c.Domain) == "" && (c.WebSocketBase == "" || c.APIBase == "" || c.CDNBase == "") {
		errs = append(errs, ErrMissingDomain)
	}
	if c.ReconnectionTimeout < 0 {
		errs = append(errs, fmt.Errorf("reconnection timeout must not be negative, got %s", c.ReconnectionTimeout))
	}
	if c.LogLevel != "" && !knownLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Errorf("unknown log level %q", c.LogLevel))
	}
	return errors.Join(errs...)
}

// Level resolves the effective log level: without the logging flag nothing
// is logged.
func (c *Configuration) Level() logger.Level {
	if !c.Logging {
		return logger.LevelNone
	}
	if c.LogLevel == "" {
		return logger.LevelDebug
	}
	return logger.ParseLevel(c.LogLevel)
}
