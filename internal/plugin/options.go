package plugin

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// DependentsPolicy decides what Deactivate does when active plugins
// require the plugin being deactivated.
type DependentsPolicy int

const (
	// DependentsAllow deactivates anyway and logs a warning.
	DependentsAllow DependentsPolicy = iota

	// DependentsRefuse rejects the deactivation with ErrHasActiveDependents.
	DependentsRefuse

	// DependentsCascade deactivates the dependents first.
	DependentsCascade
)

// String returns the policy name used in configuration files.
func (p DependentsPolicy) String() string {
	switch p {
	case DependentsAllow:
		return "allow"
	case DependentsRefuse:
		return "refuse"
	case DependentsCascade:
		return "cascade"
	default:
		return "unknown"
	}
}

// ParseDependentsPolicy parses "allow", "refuse" or "cascade".
// The empty string selects DependentsAllow.
func ParseDependentsPolicy(s string) (DependentsPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "allow":
		return DependentsAllow, nil
	case "refuse":
		return DependentsRefuse, nil
	case "cascade":
		return DependentsCascade, nil
	default:
		return DependentsAllow, fmt.Errorf("unknown dependents policy %q", s)
	}
}

// ManagerConfig configures the plugin manager.
type ManagerConfig struct {
	// ThrowOnActivationError makes an activation hook failure fail Activate.
	// When false the failure is logged and the plugin still becomes active.
	ThrowOnActivationError bool

	// ThrowOnDeactivationError makes a deactivation hook failure fail
	// Deactivate, leaving the plugin active.
	ThrowOnDeactivationError bool

	// MaxParallel bounds concurrent activations in ActivateMultiple and
	// availability checks in AvailablePlugins. Zero is unlimited.
	MaxParallel int

	// Dependents is the policy for deactivating a plugin others require.
	Dependents DependentsPolicy
}

// DefaultManagerConfig returns the default configuration: hook failures are
// logged, not returned, and dependents are allowed to dangle.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		Dependents: DependentsAllow,
	}
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithConfig replaces the whole manager configuration.
func WithConfig(config ManagerConfig) ManagerOption {
	return func(m *Manager) {
		m.config = config
	}
}

// WithThrowOnActivationError sets ManagerConfig.ThrowOnActivationError.
func WithThrowOnActivationError(throw bool) ManagerOption {
	return func(m *Manager) {
		m.config.ThrowOnActivationError = throw
	}
}

// WithThrowOnDeactivationError sets ManagerConfig.ThrowOnDeactivationError.
func WithThrowOnDeactivationError(throw bool) ManagerOption {
	return func(m *Manager) {
		m.config.ThrowOnDeactivationError = throw
	}
}

// WithMaxParallel sets ManagerConfig.MaxParallel.
func WithMaxParallel(n int) ManagerOption {
	return func(m *Manager) {
		if n >= 0 {
			m.config.MaxParallel = n
		}
	}
}

// WithDependentsPolicy sets ManagerConfig.Dependents.
func WithDependentsPolicy(p DependentsPolicy) ManagerOption {
	return func(m *Manager) {
		m.config.Dependents = p
	}
}

// WithLogger sets the manager's logger.
func WithLogger(l *zap.Logger) ManagerOption {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}
