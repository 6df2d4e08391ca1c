package hydra

import (
	"errors"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if config.Database.Host != "localhost" {
		t.Errorf("Expected host to be localhost, got %s", config.Database.Host)
	}
	if config.Database.Port != 5432 {
		t.Errorf("Expected port to be 5432, got %d", config.Database.Port)
	}
	if config.Database.MaxConnections != 25 {
		t.Errorf("Expected max connections to be 25, got %d", config.Database.MaxConnections)
	}
	if config.Database.Timeout != 30*time.Second {
		t.Errorf("Expected timeout to be 30s, got %v", config.Database.Timeout)
	}

	if config.Storage.TablePrefix != "" {
		t.Errorf("Expected empty table prefix, got %q", config.Storage.TablePrefix)
	}
	if config.Storage.AttributeTable != "hydra_attributes" {
		t.Errorf("Expected attribute table to be hydra_attributes, got %s", config.Storage.AttributeTable)
	}
	if config.Logging.EnableQueryLogging {
		t.Error("Expected query logging to be disabled by default")
	}

	if err := config.Validate(); err != nil {
		t.Errorf("Expected default config to be valid, got %v", err)
	}
}

func TestConfigValidationDetailed(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(*Config)
		expectError bool
		errorField  string
	}{
		{
			name:   "valid config",
			mutate: func(*Config) {},
		},
		{
			name:   "valid prefix",
			mutate: func(c *Config) { c.Storage.TablePrefix = "hydra_" },
		},
		{
			name:        "invalid max connections",
			mutate:      func(c *Config) { c.Database.MaxConnections = 0 },
			expectError: true,
			errorField:  "database.maxConnections",
		},
		{
			name:        "idle connections above max",
			mutate:      func(c *Config) { c.Database.MaxIdleConns = 30 },
			expectError: true,
			errorField:  "database.maxIdleConns",
		},
		{
			name:        "iam auth without tls",
			mutate:      func(c *Config) { c.Database.UseIAMAuth = true },
			expectError: true,
			errorField:  "database.sslMode",
		},
		{
			name: "iam auth with tls",
			mutate: func(c *Config) {
				c.Database.UseIAMAuth = true
				c.Database.SSLMode = "require"
			},
		},
		{
			name:        "prefix with uppercase",
			mutate:      func(c *Config) { c.Storage.TablePrefix = "Hydra_" },
			expectError: true,
			errorField:  "storage.tablePrefix",
		},
		{
			name:        "empty attribute table",
			mutate:      func(c *Config) { c.Storage.AttributeTable = "" },
			expectError: true,
			errorField:  "storage.attributeTable",
		},
		{
			name:        "unknown log level",
			mutate:      func(c *Config) { c.Logging.Level = "trace" },
			expectError: true,
			errorField:  "logging.level",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			tt.mutate(config)
			err := config.Validate()

			if !tt.expectError {
				if err != nil {
					t.Errorf("Expected no error, got %v", err)
				}
				return
			}
			var configErr *ConfigError
			if !errors.As(err, &configErr) {
				t.Fatalf("Expected ConfigError, got %v", err)
			}
			if configErr.Field != tt.errorField {
				t.Errorf("Expected error field %s, got %s", tt.errorField, configErr.Field)
			}
		})
	}
}

func TestConfigErrorMessage(t *testing.T) {
	err := &ConfigError{Field: "storage.attributeTable", Message: "cannot be empty"}
	want := "config validation error for field 'storage.attributeTable': cannot be empty"
	if err.Error() != want {
		t.Errorf("Expected %q, got %q", want, err.Error())
	}
}
