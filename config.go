package hydra

import (
	"regexp"
	"time"
)

// Config consolidates engine settings
type Config struct {
	Database DatabaseConfig `json:"database"`
	Storage  StorageConfig  `json:"storage"`
	Logging  LoggingConfig  `json:"logging"`
}

// DatabaseConfig contains database connection settings
type DatabaseConfig struct {
	Host            string        `json:"host"`
	Port            int           `json:"port"`
	Database        string        `json:"database"`
	Username        string        `json:"username"`
	Password        string        `json:"password"`
	SSLMode         string        `json:"sslMode"`
	MaxConnections  int           `json:"maxConnections"`
	MaxIdleConns    int           `json:"maxIdleConns"`
	ConnMaxLifetime time.Duration `json:"connMaxLifetime"`
	ConnMaxIdleTime time.Duration `json:"connMaxIdleTime"`
	Timeout         time.Duration `json:"timeout"`
	// UseIAMAuth replaces Password with an Aurora DSQL IAM token on every
	// new connection. Region falls back to the AWS default chain.
	UseIAMAuth bool   `json:"useIamAuth"`
	Region     string `json:"region"`
}

// StorageConfig controls physical naming of the backend tables.
type StorageConfig struct {
	// TablePrefix is prepended to every backend table name, e.g. "hydra_"
	// turns text_products into hydra_text_products.
	TablePrefix string `json:"tablePrefix"`
	// AttributeTable names the catalog table read by the Postgres catalog.
	AttributeTable string `json:"attributeTable"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level              string `json:"level"`
	Format             string `json:"format"`
	EnableQueryLogging bool   `json:"enableQueryLogging"`
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Host:            "localhost",
			Port:            5432,
			SSLMode:         "disable",
			MaxConnections:  25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
			ConnMaxIdleTime: 5 * time.Minute,
			Timeout:         30 * time.Second,
		},
		Storage: StorageConfig{
			AttributeTable: "hydra_attributes",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

var tablePrefixPattern = regexp.MustCompile(`^[a-z0-9_]*$`)

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Database.MaxConnections <= 0 {
		return &ConfigError{Field: "database.maxConnections", Message: "must be greater than 0"}
	}
	if c.Database.MaxIdleConns > c.Database.MaxConnections {
		return &ConfigError{Field: "database.maxIdleConns", Message: "must be less than or equal to maxConnections"}
	}
	if c.Database.UseIAMAuth && c.Database.SSLMode == "disable" {
		return &ConfigError{Field: "database.sslMode", Message: "must enable TLS when useIamAuth is set"}
	}
	if !tablePrefixPattern.MatchString(c.Storage.TablePrefix) {
		return &ConfigError{Field: "storage.tablePrefix", Message: "may only contain lowercase letters, digits and underscores"}
	}
	if c.Storage.AttributeTable == "" {
		return &ConfigError{Field: "storage.attributeTable", Message: "cannot be empty"}
	}
	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return &ConfigError{Field: "logging.level", Message: "must be one of debug, info, warn, error"}
	}
	return nil
}

// ConfigError represents a configuration validation error
type ConfigError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *ConfigError) Error() string {
	return "config validation error for field '" + e.Field + "': " + e.Message
}
