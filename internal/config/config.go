package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dshills/pluginhost/internal/plugin"
)

// Config is the complete plugin host configuration.
type Config struct {
	Logging LoggingConfig `toml:"logging" yaml:"logging"`
	Bus     BusConfig     `toml:"bus" yaml:"bus"`
	Plugins PluginsConfig `toml:"plugins" yaml:"plugins"`
	Metrics MetricsConfig `toml:"metrics" yaml:"metrics"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `toml:"level" yaml:"level"`

	// Development switches to human-readable console output.
	Development bool `toml:"development" yaml:"development"`
}

// BusConfig configures the message bus.
type BusConfig struct {
	// HandlerTimeout bounds each handler invocation. Zero disables it.
	HandlerTimeout Duration `toml:"handlerTimeout" yaml:"handlerTimeout"`

	// MaxSubscriptions caps live subscriptions. Zero is unlimited.
	MaxSubscriptions int `toml:"maxSubscriptions" yaml:"maxSubscriptions"`
}

// PluginsConfig configures the plugin manager.
type PluginsConfig struct {
	// Enabled lists the plugins to activate at startup.
	Enabled []string `toml:"enabled" yaml:"enabled"`

	// Scripts lists Lua plugin files. Relative paths are resolved against
	// the config file's directory.
	Scripts []string `toml:"scripts" yaml:"scripts"`

	// ScriptTimeout bounds each call into a Lua plugin.
	ScriptTimeout Duration `toml:"scriptTimeout" yaml:"scriptTimeout"`

	ThrowOnActivationError   bool `toml:"throwOnActivationError" yaml:"throwOnActivationError"`
	ThrowOnDeactivationError bool `toml:"throwOnDeactivationError" yaml:"throwOnDeactivationError"`

	// MaxParallel bounds concurrent activations. Zero is unlimited.
	MaxParallel int `toml:"maxParallel" yaml:"maxParallel"`

	// Dependents is "allow", "refuse" or "cascade".
	Dependents string `toml:"dependents" yaml:"dependents"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	// Addr is the listen address for /metrics. Empty disables the endpoint.
	Addr string `toml:"addr" yaml:"addr"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Logging: LoggingConfig{
			Level: "info",
		},
		Plugins: PluginsConfig{
			ScriptTimeout: Duration(5 * time.Second),
			Dependents:    plugin.DependentsAllow.String(),
		},
	}
}

// ManagerConfig converts the plugin settings for plugin.NewManager.
// Call Validate first; an invalid dependents policy falls back to allow.
func (c Config) ManagerConfig() plugin.ManagerConfig {
	policy, _ := plugin.ParseDependentsPolicy(c.Plugins.Dependents)
	return plugin.ManagerConfig{
		ThrowOnActivationError:   c.Plugins.ThrowOnActivationError,
		ThrowOnDeactivationError: c.Plugins.ThrowOnDeactivationError,
		MaxParallel:              c.Plugins.MaxParallel,
		Dependents:               policy,
	}
}

var validLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks every setting and returns all problems joined.
func (c Config) Validate() error {
	var errs []error
	invalid := func(path, msg string, value any) {
		errs = append(errs, &FieldError{Path: path, Message: msg, Value: value})
	}

	if !validLevels[strings.ToLower(c.Logging.Level)] {
		invalid("logging.level", "must be one of debug, info, warn, error", c.Logging.Level)
	}
	if c.Bus.HandlerTimeout < 0 {
		invalid("bus.handlerTimeout", "must not be negative", c.Bus.HandlerTimeout)
	}
	if c.Bus.MaxSubscriptions < 0 {
		invalid("bus.maxSubscriptions", "must not be negative", c.Bus.MaxSubscriptions)
	}
	if c.Plugins.ScriptTimeout < 0 {
		invalid("plugins.scriptTimeout", "must not be negative", c.Plugins.ScriptTimeout)
	}
	if c.Plugins.MaxParallel < 0 {
		invalid("plugins.maxParallel", "must not be negative", c.Plugins.MaxParallel)
	}
	if _, err := plugin.ParseDependentsPolicy(c.Plugins.Dependents); err != nil {
		invalid("plugins.dependents", "must be one of allow, refuse, cascade", c.Plugins.Dependents)
	}

	seen := make(map[string]bool, len(c.Plugins.Enabled))
	for i, name := range c.Plugins.Enabled {
		path := fmt.Sprintf("plugins.enabled[%d]", i)
		switch {
		case strings.TrimSpace(name) == "":
			invalid(path, "must not be empty", name)
		case seen[name]:
			invalid(path, "duplicate plugin name", name)
		}
		seen[name] = true
	}

	return errors.Join(errs...)
}
