package model

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
}

// StoreConfig holds the SQLite database location.
type StoreConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// VaultConfig holds the passphrase used to derive keys for mailbox
// secrets. When Passphrase is empty the process falls back to the
// MAILRESPONDER_PASSPHRASE environment variable and then to the system
// keyring.
type VaultConfig struct {
	Passphrase string `mapstructure:"passphrase" yaml:"passphrase"`
}

// MailConfig holds the IMAP/SMTP endpoints used for every mailbox.
// The service targets provider app passwords, so the hosts are shared
// while the credential is per mailbox.
type MailConfig struct {
	IMAPHost string `mapstructure:"imap_host" yaml:"imap_host"`
	IMAPPort int    `mapstructure:"imap_port" yaml:"imap_port"`
	SMTPHost string `mapstructure:"smtp_host" yaml:"smtp_host"`
	SMTPPort int    `mapstructure:"smtp_port" yaml:"smtp_port"`
}

// SyncConfig controls the background poller.
type SyncConfig struct {
	Enabled         bool `mapstructure:"enabled" yaml:"enabled"`
	PollIntervalSec int  `mapstructure:"poll_interval_sec" yaml:"poll_interval_sec"`
}

// SummaryConfig holds settings for the external summarization endpoint.
type SummaryConfig struct {
	URL       string `mapstructure:"url" yaml:"url"`
	Token     string `mapstructure:"token" yaml:"token"`
	Model     string `mapstructure:"model" yaml:"model"`
	MaxTokens int    `mapstructure:"max_tokens" yaml:"max_tokens"`
}

// BulkConfig controls the bulk-send worker pool.
type BulkConfig struct {
	Workers int `mapstructure:"workers" yaml:"workers"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	Server  ServerConfig  `mapstructure:"server" yaml:"server"`
	Store   StoreConfig   `mapstructure:"store" yaml:"store"`
	Vault   VaultConfig   `mapstructure:"vault" yaml:"vault"`
	Mail    MailConfig    `mapstructure:"mail" yaml:"mail"`
	Sync    SyncConfig    `mapstructure:"sync" yaml:"sync"`
	Summary SummaryConfig `mapstructure:"summary" yaml:"summary"`
	Bulk    BulkConfig    `mapstructure:"bulk" yaml:"bulk"`
}

// DefaultConfigPath returns the default path for the configuration
// file, located at ~/.config/mail-responder/config.yaml.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "config.yaml")
	}
	return filepath.Join(home, ".config", "mail-responder", "config.yaml")
}

func defaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "mail-responder.db")
	}
	return filepath.Join(home, ".local", "share", "mail-responder", "mail-responder.db")
}

// defaultAppConfig returns a sensible default configuration.
func defaultAppConfig() *AppConfig {
	return &AppConfig{
		Server: ServerConfig{Addr: ":8080"},
		Store:  StoreConfig{Path: defaultDBPath()},
		Mail: MailConfig{
			IMAPHost: "imap.gmail.com",
			IMAPPort: 993,
			SMTPHost: "smtp.gmail.com",
			SMTPPort: 587,
		},
		Sync: SyncConfig{
			Enabled:         true,
			PollIntervalSec: 300,
		},
		Summary: SummaryConfig{
			Model:     "HuggingFaceTB/SmolLM3-3B:hf-inference",
			MaxTokens: 120,
		},
		Bulk: BulkConfig{Workers: 2},
	}
}

// LoadConfig reads configuration from the given YAML file path using
// Viper. If the file does not exist, it returns a default
// configuration.
func LoadConfig(path string) (*AppConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("store.path", defaultDBPath())
	v.SetDefault("mail.imap_host", "imap.gmail.com")
	v.SetDefault("mail.imap_port", 993)
	v.SetDefault("mail.smtp_host", "smtp.gmail.com")
	v.SetDefault("mail.smtp_port", 587)
	v.SetDefault("sync.enabled", true)
	v.SetDefault("sync.poll_interval_sec", 300)
	v.SetDefault("summary.model", "HuggingFaceTB/SmolLM3-3B:hf-inference")
	v.SetDefault("summary.max_tokens", 120)
	v.SetDefault("bulk.workers", 2)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(*os.PathError); ok {
			return defaultAppConfig(), nil
		}
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return defaultAppConfig(), nil
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	cfg := defaultAppConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	return cfg, nil
}

// SaveConfig writes the given configuration to a YAML file at path,
// creating parent directories if needed.
func SaveConfig(path string, cfg *AppConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("server", cfg.Server)
	v.Set("store", cfg.Store)
	v.Set("mail", cfg.Mail)
	v.Set("sync", cfg.Sync)
	v.Set("summary", cfg.Summary)
	v.Set("bulk", cfg.Bulk)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}
