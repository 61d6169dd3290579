// Package config provides client configuration for hako.
//
// The home directory defaults to ~/.hako and can be overridden with
// HAKO_HOME. Persistent settings live in <home>/config.toml; individual
// values can additionally be overridden through environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	// EnvHakoHome overrides the default home directory.
	EnvHakoHome = "HAKO_HOME"

	// EnvAPITimeout overrides the remote API request timeout.
	EnvAPITimeout = "HAKO_API_TIMEOUT"

	// DefaultAPITimeout is the default timeout for remote API requests.
	DefaultAPITimeout = 30 * time.Second

	// configFile is the client configuration file inside the home dir.
	configFile = "config.toml"
)

// Package-id modes accepted by general.default_package_id_mode. They
// control how much of a requirement's identity feeds the package id.
const (
	SemverMode          = "semver_mode"
	FullVersionMode     = "full_version_mode"
	FullRecipeMode      = "full_recipe_mode"
	FullPackageMode     = "full_package_mode"
	PackageRevisionMode = "package_revision_mode"
)

// RemoteConfig is one configured remote in declaration order.
type RemoteConfig struct {
	Name      string `toml:"name"`
	URL       string `toml:"url"`
	VerifySSL bool   `toml:"verify_ssl"`
}

// Config represents the client configuration.
type Config struct {
	General GeneralConfig  `toml:"general"`
	Storage StorageConfig  `toml:"storage"`
	Remotes []RemoteConfig `toml:"remotes"`
}

// GeneralConfig holds behavior toggles.
type GeneralConfig struct {
	// RevisionsEnabled turns on immutable recipe/package revisions.
	RevisionsEnabled bool `toml:"revisions_enabled"`

	// DefaultPackageIDMode selects how requirement identities are
	// reflected in package ids. Default: semver_mode.
	DefaultPackageIDMode string `toml:"default_package_id_mode"`
}

// StorageConfig holds local cache placement.
type StorageConfig struct {
	// Path is the package storage root. Relative paths are resolved
	// against the home directory. Default: <home>/data.
	Path string `toml:"path"`
}

// HomeDir returns the hako home directory, honoring HAKO_HOME.
func HomeDir() (string, error) {
	if home := os.Getenv(EnvHakoHome); home != "" {
		return home, nil
	}
	userHome, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to determine home directory: %w", err)
	}
	return filepath.Join(userHome, ".hako"), nil
}

// GetAPITimeout returns the remote API timeout, honoring HAKO_API_TIMEOUT
// (Go duration format). Invalid values fall back to the default.
func GetAPITimeout() time.Duration {
	if v := os.Getenv(EnvAPITimeout); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return DefaultAPITimeout
}

// Default returns the built-in configuration used when no config.toml
// exists yet.
func Default() *Config {
	return &Config{
		General: GeneralConfig{
			RevisionsEnabled:     false,
			DefaultPackageIDMode: SemverMode,
		},
		Storage: StorageConfig{Path: "data"},
	}
}

// Load reads <home>/config.toml, returning defaults if the file does not
// exist.
func Load(home string) (*Config, error) {
	path := filepath.Join(home, configFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := Default()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes the configuration to <home>/config.toml.
func (c *Config) Save(home string) error {
	if err := os.MkdirAll(home, 0755); err != nil {
		return fmt.Errorf("failed to create home directory: %w", err)
	}
	f, err := os.Create(filepath.Join(home, configFile))
	if err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(c)
}

// StoragePath resolves the package storage root against home.
func (c *Config) StoragePath(home string) string {
	if filepath.IsAbs(c.Storage.Path) {
		return c.Storage.Path
	}
	return filepath.Join(home, c.Storage.Path)
}

func (c *Config) validate() error {
	switch c.General.DefaultPackageIDMode {
	case "", SemverMode, FullVersionMode, FullRecipeMode, FullPackageMode, PackageRevisionMode:
	default:
		return fmt.Errorf("unknown default_package_id_mode %q", c.General.DefaultPackageIDMode)
	}
	seen := make(map[string]bool)
	for _, r := range c.Remotes {
		if r.Name == "" || r.URL == "" {
			return fmt.Errorf("remote entries need both name and url")
		}
		if seen[r.Name] {
			return fmt.Errorf("duplicate remote %q", r.Name)
		}
		seen[r.Name] = true
	}
	return nil
}
