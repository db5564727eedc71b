// Package spock is the configuration surface consumed by the core
// (spec.md §6 "Configuration surface consumed by the core"): a thin
// key/value lookup wrapper, not a parser (parsing/precedence is out of
// scope per spec.md §1). It also owns the on-disk plugin/cache layout,
// the Go analogue of the teacher's pkg/environment global environment.
package spock

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"

	fluxerrors "github.com/fluxrag/fluxrag/internal/errors"
)

// Config exposes the named-backend-selection keys from spec.md §6 plus the
// directory layout the rest of the core depends on. It wraps a *viper.Viper
// so callers get the usual file/env/flag precedence for free; this package
// never parses a config file format itself.
type Config struct {
	v *viper.Viper

	HomeDir   string
	ConfigDir string
	PluginDir string
	CacheDir  string
}

const envPrefix = "FLUXRAG"

// keys recognized by the core. Anything else in the backing viper instance
// is ignored by this package (callers may still read it directly via V()).
const (
	KeyTaskStoreDefault       = "task_store_default"
	KeyTaskQueueDefault       = "task_queue_default"
	KeyEmbedderDefault        = "embedder_default"
	KeyRepositoryDefault      = "repository_default"
	KeyRepositoryDefaultFmt   = "repository_default_%s" // purpose-scoped variant
)

var (
	global     *Config
	globalOnce sync.Once
	globalErr  error
)

// New builds a Config rooted at the user's home directory, the way the
// teacher's InitGlobalEnv does, but without the package-level singleton
// baked into every caller (Design Notes §9: "replace global state with
// configuration passed into constructors").
func New() (*Config, error) {
	home, err := homedir.Dir()
	if err != nil {
		return nil, fluxerrors.NewBackendFailure("homedir", err)
	}

	root := filepath.Join(home, ".fluxrag")
	cfg := &Config{
		v:         viper.New(),
		HomeDir:   home,
		ConfigDir: filepath.Join(root, "config"),
		PluginDir: filepath.Join(root, "plugins"),
		CacheDir:  filepath.Join(root, "cache"),
	}

	for _, dir := range []string{cfg.ConfigDir, cfg.PluginDir, cfg.CacheDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fluxerrors.NewBackendFailure("config-dir", err)
		}
	}

	cfg.v.SetConfigName("config")
	cfg.v.SetConfigType("yaml")
	cfg.v.AddConfigPath(cfg.ConfigDir)
	cfg.v.SetEnvPrefix(envPrefix)
	cfg.v.AutomaticEnv()

	if err := cfg.v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fluxerrors.NewBackendFailure("config-read", err)
		}
	}

	return cfg, nil
}

// Global lazily initializes and returns a process-wide Config for CLI
// entry points where threading one through every command is impractical;
// library code (morpheus, fluxcapacitor, agent, xfiles) must never read
// this directly and should instead take a *Config argument.
func Global() (*Config, error) {
	globalOnce.Do(func() {
		global, globalErr = New()
	})
	return global, globalErr
}

// V returns the underlying viper instance for callers that need a key this
// package does not name explicitly.
func (c *Config) V() *viper.Viper { return c.v }

// TaskStoreDefault returns the configured default task store backend name,
// or "" if unset.
func (c *Config) TaskStoreDefault() string { return c.v.GetString(KeyTaskStoreDefault) }

// TaskQueueDefault returns the configured default task queue backend name,
// or "" if unset.
func (c *Config) TaskQueueDefault() string { return c.v.GetString(KeyTaskQueueDefault) }

// EmbedderDefault returns the configured default embedder id, or "" if
// unset.
func (c *Config) EmbedderDefault() string { return c.v.GetString(KeyEmbedderDefault) }

// RepositoryDefault returns the configured default repository id for a
// purpose, falling back to the unscoped default when purpose is "" or the
// purpose-scoped key is unset.
func (c *Config) RepositoryDefault(purpose string) string {
	if purpose != "" {
		if v := c.v.GetString(fmt.Sprintf(KeyRepositoryDefaultFmt, purpose)); v != "" {
			return v
		}
	}
	return c.v.GetString(KeyRepositoryDefault)
}
