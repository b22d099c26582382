package bridge

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variables read when a bridge is constructed
const (
	EnvResponseTimeout  = "SHOTGUN_GDN_RESPONSE_TIMEOUT"
	EnvHeartbeatTimeout = "SHOTGUN_GDN_HEARTBEAT_TIMEOUT"
)

// Default timeouts. The response timeout is long because the host may be
// doing slow, unbounded work before it answers.
const (
	DefaultHeartbeatTimeout = 500 * time.Millisecond
	DefaultResponseTimeout  = 300 * time.Second
)

// Config holds the bridge timeouts
type Config struct {
	HeartbeatTimeout Duration `yaml:"heartbeat_timeout"`
	ResponseTimeout  Duration `yaml:"response_timeout"`
}

// DefaultConfig returns the default timeouts
func DefaultConfig() Config {
	return Config{
		HeartbeatTimeout: Duration(DefaultHeartbeatTimeout),
		ResponseTimeout:  Duration(DefaultResponseTimeout),
	}
}

// Validate checks that both timeouts are positive
func (c Config) Validate() error {
	if c.HeartbeatTimeout <= 0 {
		return fmt.Errorf("heartbeat timeout must be positive, got %s", c.HeartbeatTimeout)
	}
	if c.ResponseTimeout <= 0 {
		return fmt.Errorf("response timeout must be positive, got %s", c.ResponseTimeout)
	}
	return nil
}

// ApplyEnv overrides timeouts from the environment, as seen through lookup
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if lookup == nil {
		lookup = os.LookupEnv
	}

	if raw, ok := lookup(EnvHeartbeatTimeout); ok {
		d, err := ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvHeartbeatTimeout, err)
		}
		c.HeartbeatTimeout = Duration(d)
	}

	if raw, ok := lookup(EnvResponseTimeout); ok {
		d, err := ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvResponseTimeout, err)
		}
		c.ResponseTimeout = Duration(d)
	}

	return nil
}

// ConfigFromEnv returns the defaults overridden by the process environment
func ConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

// LoadConfigFile reads timeouts from a YAML file on top of the defaults
func LoadConfigFile(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	return cfg, cfg.Validate()
}

// ParseDuration accepts a number of seconds ("0.5", "300") or a Go duration
// string ("500ms", "5m").
func ParseDuration(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, fmt.Errorf("empty duration")
	}

	if seconds, err := strconv.ParseFloat(raw, 64); err == nil {
		if math.IsNaN(seconds) || math.IsInf(seconds, 0) {
			return 0, fmt.Errorf("invalid duration %q", raw)
		}
		return time.Duration(seconds * float64(time.Second)), nil
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", raw)
	}
	return d, nil
}

// Duration is a time.Duration that unmarshals from seconds or a duration string
type Duration time.Duration

// Std returns the value as a time.Duration
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func (d Duration) String() string {
	return time.Duration(d).String()
}

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: duration must be a scalar", value.Line)
	}
	parsed, err := ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler
func (d Duration) MarshalYAML() (interface{}, error) {
	return d.String(), nil
}
