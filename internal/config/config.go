// ABOUTME: Configuration loading and parsing for groupwarden
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultUndecryptableStatus is the receipt status code the transport
// emits for events it could not decrypt. It only needs to agree between
// the transport and the self-heal layer.
const DefaultUndecryptableStatus = 421

// Config represents the complete groupwarden configuration
type Config struct {
	Database   DatabaseConfig   `yaml:"database"`
	Matrix     MatrixConfig     `yaml:"matrix"`
	Moderation ModerationConfig `yaml:"moderation"`
	SelfHeal   SelfHealConfig   `yaml:"selfheal"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// MatrixConfig holds the homeserver connection settings
type MatrixConfig struct {
	Homeserver  string `yaml:"homeserver"`
	UserID      string `yaml:"user_id"`
	AccessToken string `yaml:"access_token"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	OwnerID     string `yaml:"owner_id"`
}

// ModerationConfig holds moderation engine tuning
type ModerationConfig struct {
	NoticeCooldown time.Duration `yaml:"-"`

	// Raw string value for YAML unmarshaling
	NoticeCooldownRaw string `yaml:"notice_cooldown"`
}

// SelfHealConfig holds key-store self-healing configuration
type SelfHealConfig struct {
	// UndecryptableStatus is the numeric receipt status that signals an
	// undecryptable message. Zero falls back to the default.
	UndecryptableStatus int `yaml:"undecryptable_status"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Parse duration fields
	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	if cfg.SelfHeal.UndecryptableStatus == 0 {
		cfg.SelfHeal.UndecryptableStatus = DefaultUndecryptableStatus
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	// Match ${VAR_NAME} pattern
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR_NAME}
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	if c.Matrix.Homeserver == "" {
		return fmt.Errorf("matrix.homeserver is required")
	}
	if c.Matrix.UserID == "" {
		return fmt.Errorf("matrix.user_id is required")
	}

	// Either a stored access token or password credentials must be present
	if c.Matrix.AccessToken == "" && (c.Matrix.Username == "" || c.Matrix.Password == "") {
		return fmt.Errorf("matrix.access_token or matrix.username/matrix.password is required")
	}

	if c.SelfHeal.UndecryptableStatus < 0 {
		return fmt.Errorf("selfheal.undecryptable_status must not be negative")
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Moderation.NoticeCooldownRaw != "" {
		cfg.Moderation.NoticeCooldown, err = time.ParseDuration(cfg.Moderation.NoticeCooldownRaw)
		if err != nil {
			return fmt.Errorf("parsing notice_cooldown %q: %w", cfg.Moderation.NoticeCooldownRaw, err)
		}
	}

	return nil
}
