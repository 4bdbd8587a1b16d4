// Package config provides file configuration for running devpoll as a
// standalone binary, as an alternative to the programmatic API.
//
// Files are YAML, or TOML when the name ends in ".toml".
//
// Example configuration:
//
//	port: 8080
//	poll_interval: 10ms
//	timeout: 30s
//
//	store:
//	  backend: redis
//	  redis:
//	    addr: ${REDIS_ADDR:-localhost:6379}
//
//	commands:
//	  - name: status
//	    url: http://${DEVICE_HOST}/status.xml
//	    repeat: true
//
//	grids:
//	  - name: zone
//	    url_template: "http://${DEVICE_HOST}/cmd"
//	    payload_template: "ZONE={{.zone}}&CMD=STATUS"
//	    repeat: true
//	    dimensions:
//	      zone: ["1", "2", "3"]
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"text/template"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

const (
	defaultPollInterval = 10 * time.Millisecond
	defaultTimeout      = 30 * time.Second

	// minPollInterval keeps a config typo from spinning the tick loop.
	minPollInterval = time.Millisecond

	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Config is the root configuration structure.
//
// Use [Load], [Parse] or [ParseTOML] to create a Config.
type Config struct {
	// Port serves the target and command API. 0 disables it.
	Port int `yaml:"port" toml:"port"`

	// PollInterval is the pause between ticks. Defaults to 10ms.
	PollInterval Duration `yaml:"poll_interval" toml:"poll_interval"`

	// Timeout is how long a command may stay unanswered. Defaults to 30s.
	Timeout Duration `yaml:"timeout" toml:"timeout"`

	// ResendPayload sends a repeating command's payload on every repeat.
	ResendPayload bool `yaml:"resend_payload" toml:"resend_payload"`

	// FailFast reports non-200 responses at once instead of at the timeout.
	FailFast bool `yaml:"fail_fast" toml:"fail_fast"`

	Transport TransportConfig `yaml:"transport" toml:"transport"`
	Store     StoreConfig     `yaml:"store" toml:"store"`

	// Commands are issued when the queue starts.
	Commands []CommandConfig `yaml:"commands" toml:"commands"`

	// Grids expand into commands via cartesian product.
	Grids []GridConfig `yaml:"grids" toml:"grids"`
}

// TransportConfig switches send mechanisms off.
type TransportConfig struct {
	DisableNative bool `yaml:"disable_native" toml:"disable_native"`
	DisableLegacy bool `yaml:"disable_legacy" toml:"disable_legacy"`
}

// StoreConfig selects where targets and alerts are kept.
type StoreConfig struct {
	// Backend is "memory" (default) or "redis".
	Backend string      `yaml:"backend" toml:"backend"`
	Redis   RedisConfig `yaml:"redis" toml:"redis"`
}

// RedisConfig is used when Backend is "redis".
// Addr and Password support environment variable substitution.
type RedisConfig struct {
	Addr     string `yaml:"addr" toml:"addr"`
	Password string `yaml:"password" toml:"password"`
	DB       int    `yaml:"db" toml:"db"`
	Prefix   string `yaml:"prefix" toml:"prefix"`
}

// CommandConfig defines a single command.
type CommandConfig struct {
	// Name identifies the command in errors and logs.
	Name string `yaml:"name" toml:"name"`

	// URL is the command destination.
	// Supports environment variable substitution: ${VAR} or ${VAR:-default}
	URL string `yaml:"url" toml:"url"`

	// Target is the render target. Defaults to Name.
	Target string `yaml:"target" toml:"target"`

	// Repeat re-issues the command after every result.
	Repeat bool `yaml:"repeat" toml:"repeat"`

	// Payload is the request body. Supports environment variable substitution.
	Payload string `yaml:"payload" toml:"payload"`
}

// GridConfig defines a command grid that expands via cartesian product.
//
// For example, with dimensions {zone: [1, 2], out: [a, b]}, the grid
// expands to 4 commands.
type GridConfig struct {
	// Name is the base target name for generated commands.
	Name string `yaml:"name" toml:"name"`

	// URLTemplate is a Go template for command URLs.
	// Dimension keys are available as template variables: {{.zone}}
	// Supports environment variable substitution in the template.
	URLTemplate string `yaml:"url_template" toml:"url_template"`

	// TargetTemplate names each target. Defaults to "Name (values)".
	TargetTemplate string `yaml:"target_template" toml:"target_template"`

	// PayloadTemplate is a Go template for request bodies.
	PayloadTemplate string `yaml:"payload_template" toml:"payload_template"`

	// Repeat applies to every generated command.
	Repeat bool `yaml:"repeat" toml:"repeat"`

	// Dimensions maps dimension names to their possible values.
	Dimensions map[string][]string `yaml:"dimensions" toml:"dimensions"`
}

// Duration wraps time.Duration for YAML and TOML unmarshalling.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	return d.UnmarshalText([]byte(s))
}

// UnmarshalText implements encoding.TextUnmarshaler, used by the TOML
// decoder.
func (d *Duration) UnmarshalText(text []byte) error {
	s := string(text)
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns.
// Group 1: variable name
// Group 2: the ":-default" part (if present, indicates a default was specified)
// Group 3: the default value (may be empty for ${VAR:-})
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(:-([^}]*))?\}`)

// expandEnvVars replaces ${VAR} and ${VAR:-default} patterns with environment values.
func expandEnvVars(s string) (string, error) {
	var firstErr error

	result := envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		if firstErr != nil {
			return match
		}

		submatches := envVarPattern.FindStringSubmatch(match)
		if len(submatches) < 2 {
			return match
		}

		varName := submatches[1]
		hasDefault := len(submatches) > 2 && submatches[2] != ""
		defaultVal := ""
		if hasDefault && len(submatches) > 3 {
			defaultVal = submatches[3]
		}

		value, exists := os.LookupEnv(varName)
		if !exists {
			if hasDefault {
				return defaultVal
			}
			firstErr = fmt.Errorf("environment variable %q is not set", varName)
			return match
		}
		return value
	})

	if firstErr != nil {
		return "", firstErr
	}
	return result, nil
}

// Load reads and parses a configuration file. Files ending in ".toml" are
// parsed as TOML, anything else as YAML.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return ParseTOML(data)
	}
	return Parse(data)
}

// Parse parses YAML configuration data.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return finish(&cfg)
}

// ParseTOML parses TOML configuration data.
func ParseTOML(data []byte) (*Config, error) {
	var cfg Config
	md, err := toml.Decode(string(data), &cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse TOML: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("unknown TOML key %q", undecoded[0].String())
	}
	return finish(&cfg)
}

// finish applies defaults, expands environment variables and validates.
func finish(cfg *Config) (*Config, error) {
	if cfg.PollInterval == 0 {
		cfg.PollInterval = Duration(defaultPollInterval)
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = Duration(defaultTimeout)
	}
	if cfg.Store.Backend == "" {
		cfg.Store.Backend = BackendMemory
	}

	if err := cfg.expandAndValidate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// expandAndValidate expands environment variables and validates the config.
func (c *Config) expandAndValidate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("port must be between 0 and 65535, got %d", c.Port)
	}
	if c.PollInterval.Duration() < minPollInterval {
		return fmt.Errorf("poll_interval must be at least %s, got %s", minPollInterval, c.PollInterval.Duration())
	}
	if c.Timeout.Duration() <= c.PollInterval.Duration() {
		return fmt.Errorf("timeout (%s) must be greater than poll_interval (%s)",
			c.Timeout.Duration(), c.PollInterval.Duration())
	}
	if c.Transport.DisableNative && c.Transport.DisableLegacy {
		return errors.New("transport: native and legacy cannot both be disabled")
	}

	if err := c.Store.expandAndValidate(); err != nil {
		return err
	}

	// names become target names, so they must not collide
	seen := make(map[string]string)
	claim := func(name, where string) error {
		if prev, exists := seen[name]; exists {
			return fmt.Errorf("%s: duplicate name %q (already used by %s)", where, name, prev)
		}
		seen[name] = where
		return nil
	}

	for i := range c.Commands {
		cmd := &c.Commands[i]
		where := fmt.Sprintf("commands[%d]", i)

		if cmd.Name == "" {
			return fmt.Errorf("%s: name is required", where)
		}
		where = fmt.Sprintf("commands[%d] (%s)", i, cmd.Name)
		if err := claim(cmd.Name, where); err != nil {
			return err
		}

		if cmd.URL == "" {
			return fmt.Errorf("%s: url is required", where)
		}
		expanded, err := expandEnvVars(cmd.URL)
		if err != nil {
			return fmt.Errorf("%s: url: %w", where, err)
		}
		cmd.URL = expanded
		if err := validateURL(cmd.URL); err != nil {
			return fmt.Errorf("%s: %w", where, err)
		}

		if cmd.Payload, err = expandEnvVars(cmd.Payload); err != nil {
			return fmt.Errorf("%s: payload: %w", where, err)
		}

		if cmd.Target == "" {
			cmd.Target = cmd.Name
		}
	}

	for i := range c.Grids {
		g := &c.Grids[i]
		where := fmt.Sprintf("grids[%d]", i)

		if g.Name == "" {
			return fmt.Errorf("%s: name is required", where)
		}
		where = fmt.Sprintf("grids[%d] (%s)", i, g.Name)
		if err := claim(g.Name, where); err != nil {
			return err
		}

		if g.URLTemplate == "" {
			return fmt.Errorf("%s: url_template is required", where)
		}
		expanded, err := expandEnvVars(g.URLTemplate)
		if err != nil {
			return fmt.Errorf("%s: url_template: %w", where, err)
		}
		g.URLTemplate = expanded

		if g.PayloadTemplate, err = expandEnvVars(g.PayloadTemplate); err != nil {
			return fmt.Errorf("%s: payload_template: %w", where, err)
		}

		// fail fast before the grid is expanded
		templates := []struct{ field, text string }{
			{"url_template", g.URLTemplate},
			{"payload_template", g.PayloadTemplate},
			{"target_template", g.TargetTemplate},
		}
		for _, tmpl := range templates {
			if _, err := template.New("").Parse(tmpl.text); err != nil {
				return fmt.Errorf("%s: invalid %s: %w", where, tmpl.field, err)
			}
		}

		if len(g.Dimensions) == 0 {
			return fmt.Errorf("%s: at least one dimension is required", where)
		}
		for dimName, dimValues := range g.Dimensions {
			if len(dimValues) == 0 {
				return fmt.Errorf("%s: dimension %q has no values", where, dimName)
			}
			values := make(map[string]struct{}, len(dimValues))
			for _, v := range dimValues {
				if _, exists := values[v]; exists {
					return fmt.Errorf("%s: dimension %q has duplicate value %q", where, dimName, v)
				}
				values[v] = struct{}{}
			}
		}
	}

	if len(c.Commands) == 0 && len(c.Grids) == 0 && c.Port == 0 {
		return errors.New("at least one command or grid must be defined when no port is set")
	}

	return nil
}

func (s *StoreConfig) expandAndValidate() error {
	switch s.Backend {
	case BackendMemory:
		return nil
	case BackendRedis:
	default:
		return fmt.Errorf("store: backend must be %q or %q, got %q", BackendMemory, BackendRedis, s.Backend)
	}

	var err error
	if s.Redis.Addr, err = expandEnvVars(s.Redis.Addr); err != nil {
		return fmt.Errorf("store.redis.addr: %w", err)
	}
	if s.Redis.Addr == "" {
		return errors.New("store.redis.addr is required for the redis backend")
	}
	if s.Redis.Password, err = expandEnvVars(s.Redis.Password); err != nil {
		return fmt.Errorf("store.redis.password: %w", err)
	}
	if s.Redis.DB < 0 {
		return fmt.Errorf("store.redis.db cannot be negative, got %d", s.Redis.DB)
	}
	return nil
}

func validateURL(raw string) error {
	parsedURL, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	if parsedURL.Scheme == "" {
		return errors.New("url must have a scheme (http:// or https://)")
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return fmt.Errorf("url scheme must be http or https, got %q", parsedURL.Scheme)
	}
	return nil
}
