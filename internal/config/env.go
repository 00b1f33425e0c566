package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "PLUGINHOST_"

// envSetting binds one environment variable to a config field.
type envSetting struct {
	name  string
	apply func(cfg *Config, value string) error
}

// envSettings lists the supported overrides. Names omit EnvPrefix.
var envSettings = []envSetting{
	{"LOG_LEVEL", func(c *Config, v string) error { c.Logging.Level = v; return nil }},
	{"LOG_DEVELOPMENT", boolSetting(func(c *Config) *bool { return &c.Logging.Development })},
	{"BUS_HANDLER_TIMEOUT", durationSetting(func(c *Config) *Duration { return &c.Bus.HandlerTimeout })},
	{"BUS_MAX_SUBSCRIPTIONS", intSetting(func(c *Config) *int { return &c.Bus.MaxSubscriptions })},
	{"PLUGINS_ENABLED", listSetting(func(c *Config) *[]string { return &c.Plugins.Enabled })},
	{"PLUGINS_SCRIPTS", listSetting(func(c *Config) *[]string { return &c.Plugins.Scripts })},
	{"PLUGINS_SCRIPT_TIMEOUT", durationSetting(func(c *Config) *Duration { return &c.Plugins.ScriptTimeout })},
	{"PLUGINS_THROW_ON_ACTIVATION_ERROR", boolSetting(func(c *Config) *bool { return &c.Plugins.ThrowOnActivationError })},
	{"PLUGINS_THROW_ON_DEACTIVATION_ERROR", boolSetting(func(c *Config) *bool { return &c.Plugins.ThrowOnDeactivationError })},
	{"PLUGINS_MAX_PARALLEL", intSetting(func(c *Config) *int { return &c.Plugins.MaxParallel })},
	{"PLUGINS_DEPENDENTS", func(c *Config, v string) error { c.Plugins.Dependents = v; return nil }},
	{"METRICS_ADDR", func(c *Config, v string) error { c.Metrics.Addr = v; return nil }},
}

// applyEnv applies every override found by lookup.
// Empty values are treated as set.
func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	var errs []error
	for _, s := range envSettings {
		name := EnvPrefix + s.name
		value, ok := lookup(name)
		if !ok {
			continue
		}
		if err := s.apply(cfg, value); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

func boolSetting(field func(*Config) *bool) func(*Config, string) error {
	return func(c *Config, v string) error {
		b, err := parseBool(v)
		if err != nil {
			return err
		}
		*field(c) = b
		return nil
	}
}

func intSetting(field func(*Config) *int) func(*Config, string) error {
	return func(c *Config, v string) error {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("invalid integer %q", v)
		}
		*field(c) = n
		return nil
	}
}

func durationSetting(field func(*Config) *Duration) func(*Config, string) error {
	return func(c *Config, v string) error {
		return field(c).UnmarshalText([]byte(strings.TrimSpace(v)))
	}
}

// listSetting parses a comma-separated list, dropping blank entries.
func listSetting(field func(*Config) *[]string) func(*Config, string) error {
	return func(c *Config, v string) error {
		var items []string
		for _, item := range strings.Split(v, ",") {
			if item = strings.TrimSpace(item); item != "" {
				items = append(items, item)
			}
		}
		*field(c) = items
		return nil
	}
}

// parseBool accepts true/false, yes/no, on/off and 1/0.
func parseBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "yes", "on", "1":
		return true, nil
	case "false", "no", "off", "0", "":
		return false, nil
	default:
		return false, fmt.Errorf("invalid boolean %q", s)
	}
}
