package config

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/wesm/chatpulse/internal/analytics"
)

// Config holds all application configuration.
type Config struct {
	Host      string `json:"host"`
	Port      int    `json:"port"`
	DataDir   string `json:"data_dir"`
	DBPath    string `json:"-"`
	DSN       string `json:"dsn,omitempty"`
	AuthToken string `json:"-"`

	// Timezone is the default reporting timezone for requests
	// that do not name one.
	Timezone          string                 `json:"timezone"`
	MergeMode         analytics.MergeMode    `json:"merge_mode"`
	HistoryScope      analytics.HistoryScope `json:"history_scope"`
	LookupConcurrency int                    `json:"lookup_concurrency"`
	AgentConcurrency  int                    `json:"agent_concurrency"`
	WriteTimeout      time.Duration          `json:"-"`
}

// Default returns a Config with default values.
func Default() (Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Config{}, fmt.Errorf(
			"determining home directory: %w", err,
		)
	}
	dataDir := filepath.Join(home, ".chatpulse")
	return Config{
		Host:              "127.0.0.1",
		Port:              8080,
		DataDir:           dataDir,
		DBPath:            filepath.Join(dataDir, "chatpulse.db"),
		Timezone:          "UTC",
		MergeMode:         analytics.MergeLegacy,
		HistoryScope:      analytics.HistoryTenant,
		LookupConcurrency: 8,
		AgentConcurrency:  4,
		WriteTimeout:      30 * time.Second,
	}, nil
}

// Load builds a Config by layering: defaults < config file < env < flags.
// The provided FlagSet must already be parsed by the caller.
// Only flags that were explicitly set override the lower layers.
func Load(fs *flag.FlagSet) (Config, error) {
	cfg, err := Default()
	if err != nil {
		return cfg, err
	}
	// The data dir locates the config file, so it is resolved
	// from env and flags before the file is read.
	if v := os.Getenv("CHATPULSE_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if fs != nil && isSet(fs, "data-dir") {
		cfg.DataDir = fs.Lookup("data-dir").Value.String()
	}
	return loadIn(cfg.DataDir, fs)
}

// loadIn layers file, env and flags over the defaults with the
// data dir fixed.
func loadIn(dataDir string, fs *flag.FlagSet) (Config, error) {
	cfg, err := Default()
	if err != nil {
		return cfg, err
	}
	cfg.DataDir = dataDir
	if err := cfg.loadFile(); err != nil {
		return cfg, fmt.Errorf("loading config file: %w", err)
	}
	cfg.loadEnv()
	applyFlags(&cfg, fs)
	cfg.DataDir = dataDir
	cfg.DBPath = filepath.Join(cfg.DataDir, "chatpulse.db")
	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadMinimal builds a Config from defaults, config file and env,
// without CLI flags.
func LoadMinimal() (Config, error) {
	return Load(nil)
}

// ConfigPath returns the location of config.json.
func (c *Config) ConfigPath() string {
	return filepath.Join(c.DataDir, "config.json")
}

// StoreDSN returns the event store location: the configured DSN
// when set, else the SQLite file in the data dir.
func (c *Config) StoreDSN() string {
	if c.DSN != "" {
		return c.DSN
	}
	return c.DBPath
}

// AnalyticsOptions maps the config onto engine options.
func (c *Config) AnalyticsOptions(log zerolog.Logger) analytics.Options {
	return analytics.Options{
		MergeMode:         c.MergeMode,
		HistoryScope:      c.HistoryScope,
		LookupConcurrency: c.LookupConcurrency,
		AgentConcurrency:  c.AgentConcurrency,
		Logger:            log,
	}
}

func (c *Config) loadFile() error {
	data, err := os.ReadFile(c.ConfigPath())
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}

	var file struct {
		Host              string `json:"host"`
		Port              int    `json:"port"`
		DSN               string `json:"dsn"`
		AuthToken         string `json:"auth_token"`
		Timezone          string `json:"timezone"`
		MergeMode         string `json:"merge_mode"`
		HistoryScope      string `json:"history_scope"`
		LookupConcurrency int    `json:"lookup_concurrency"`
		AgentConcurrency  int    `json:"agent_concurrency"`
		WriteTimeout      string `json:"write_timeout"`
	}
	if err := json.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parsing config: %w", err)
	}
	if file.Host != "" {
		c.Host = file.Host
	}
	if file.Port > 0 {
		c.Port = file.Port
	}
	if file.DSN != "" {
		c.DSN = file.DSN
	}
	if file.AuthToken != "" {
		c.AuthToken = file.AuthToken
	}
	if file.Timezone != "" {
		c.Timezone = file.Timezone
	}
	if file.MergeMode != "" {
		c.MergeMode = analytics.MergeMode(file.MergeMode)
	}
	if file.HistoryScope != "" {
		c.HistoryScope = analytics.HistoryScope(file.HistoryScope)
	}
	if file.LookupConcurrency > 0 {
		c.LookupConcurrency = file.LookupConcurrency
	}
	if file.AgentConcurrency > 0 {
		c.AgentConcurrency = file.AgentConcurrency
	}
	if file.WriteTimeout != "" {
		d, err := time.ParseDuration(file.WriteTimeout)
		if err != nil {
			return fmt.Errorf("parsing write_timeout: %w", err)
		}
		c.WriteTimeout = d
	}
	return nil
}

func (c *Config) loadEnv() {
	if v := os.Getenv("CHATPULSE_DSN"); v != "" {
		c.DSN = v
	}
	if v := os.Getenv("CHATPULSE_AUTH_TOKEN"); v != "" {
		c.AuthToken = v
	}
	if v := os.Getenv("CHATPULSE_TIMEZONE"); v != "" {
		c.Timezone = v
	}
	if v := os.Getenv("CHATPULSE_MERGE_MODE"); v != "" {
		c.MergeMode = analytics.MergeMode(v)
	}
}

func (c *Config) validate() error {
	if !c.MergeMode.Valid() {
		return fmt.Errorf(
			"invalid merge mode %q: want %q or %q",
			c.MergeMode, analytics.MergeLegacy, analytics.MergeAccurate,
		)
	}
	if !c.HistoryScope.Valid() {
		return fmt.Errorf(
			"invalid history scope %q: want %q or %q",
			c.HistoryScope, analytics.HistoryTenant, analytics.HistoryAgent,
		)
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	return nil
}

// RegisterStoreFlags registers the flags shared by every command
// that opens the event store.
func RegisterStoreFlags(fs *flag.FlagSet) {
	fs.String("data-dir", "", "Data directory (config.json, default database)")
	fs.String("dsn", "", "Event store: SQLite path or libsql:// URL")
}

// RegisterServeFlags registers serve-command flags on fs.
// The caller must call fs.Parse before passing fs to Load.
func RegisterServeFlags(fs *flag.FlagSet) {
	RegisterStoreFlags(fs)
	RegisterAnalyticsFlags(fs)
	fs.String("host", "127.0.0.1", "Host to bind to")
	fs.Int("port", 8080, "Port to listen on")
}

// RegisterAnalyticsFlags registers the engine tuning flags.
func RegisterAnalyticsFlags(fs *flag.FlagSet) {
	fs.String("timezone", "UTC", "Default reporting timezone (IANA name)")
	fs.String(
		"merge-mode", string(analytics.MergeLegacy),
		"All-agents merge: legacy or accurate",
	)
}

func isSet(fs *flag.FlagSet, name string) bool {
	set := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}

// applyFlags copies explicitly-set flags from fs into cfg.
func applyFlags(cfg *Config, fs *flag.FlagSet) {
	if fs == nil {
		return
	}
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "host":
			cfg.Host = f.Value.String()
		case "port":
			// flag already validated the int; ignore parse error
			cfg.Port, _ = strconv.Atoi(f.Value.String())
		case "data-dir":
			cfg.DataDir = f.Value.String()
		case "dsn":
			cfg.DSN = f.Value.String()
		case "timezone":
			cfg.Timezone = f.Value.String()
		case "merge-mode":
			cfg.MergeMode = analytics.MergeMode(f.Value.String())
		}
	})
}
