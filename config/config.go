// Package config loads the storage configuration of a session from a YAML
// file and TETHER_* environment variables.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/syssam/tether/dialect"
)

// Environment variables overriding the file values.
const (
	EnvDialect       = "TETHER_DIALECT"
	EnvDriver        = "TETHER_DRIVER"
	EnvDSN           = "TETHER_DSN"
	EnvDebug         = "TETHER_DEBUG"
	EnvSlowThreshold = "TETHER_SLOW_THRESHOLD"
)

// Config holds the storage settings.
type Config struct {
	Dialect       string            `yaml:"dialect"`
	Driver        string            `yaml:"driver,omitempty"` // database/sql driver name, defaults to the dialect.
	DSN           string            `yaml:"dsn"`
	Debug         bool              `yaml:"debug"`
	SlowThreshold time.Duration     `yaml:"slow_threshold"`
	Vars          map[string]string `yaml:"vars,omitempty"` // Session variables set on every transaction.
}

// Default returns the configuration used when nothing is set: in-memory
// storage and a 100ms slow statement threshold.
func Default() *Config {
	return &Config{
		Dialect:       dialect.Memory,
		SlowThreshold: 100 * time.Millisecond,
	}
}

// Load reads the YAML file at path, if not empty, over the defaults and
// applies the environment. Variables read from envFiles (dotenv format) are
// used when the process environment does not set them.
func Load(path string, envFiles ...string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
		if err := cfg.decode(data); err != nil {
			return nil, fmt.Errorf("config: %s: %w", path, err)
		}
	}
	env := map[string]string{}
	if len(envFiles) > 0 {
		vars, err := godotenv.Read(envFiles...)
		if err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
		maps.Copy(env, vars)
	}
	for _, k := range []string{EnvDialect, EnvDriver, EnvDSN, EnvDebug, EnvSlowThreshold} {
		if v, ok := os.LookupEnv(k); ok {
			env[k] = v
		}
	}
	if err := cfg.apply(env); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes a YAML document over the defaults and validates it.
// The environment is not consulted.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := cfg.decode(data); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) decode(data []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func (c *Config) apply(env map[string]string) error {
	if v, ok := env[EnvDialect]; ok {
		c.Dialect = v
	}
	if v, ok := env[EnvDriver]; ok {
		c.Driver = v
	}
	if v, ok := env[EnvDSN]; ok {
		c.DSN = v
	}
	if v, ok := env[EnvDebug]; ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("config: %s: %w", EnvDebug, err)
		}
		c.Debug = b
	}
	if v, ok := env[EnvSlowThreshold]; ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("config: %s: %w", EnvSlowThreshold, err)
		}
		c.SlowThreshold = d
	}
	return nil
}

// Validate normalizes the dialect name and checks the settings.
func (c *Config) Validate() error {
	name, err := dialect.Normalize(c.Dialect)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	c.Dialect = name
	if c.Driver != "" {
		if d, err := dialect.Normalize(c.Driver); err != nil || d != name {
			return fmt.Errorf("config: driver %q does not serve %s", c.Driver, name)
		}
	}
	if c.DSN == "" && name != dialect.Memory {
		return fmt.Errorf("config: dsn is required for %s", name)
	}
	if c.SlowThreshold < 0 {
		return fmt.Errorf("config: negative slow_threshold %s", c.SlowThreshold)
	}
	return nil
}
