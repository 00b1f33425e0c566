package plugin

import (
	"context"
	"strings"
	"sync"

	"github.com/dshills/pluginhost/internal/event"
)

// Plugin is the contract every capability provider implements.
type Plugin interface {
	// Name is the unique registration key.
	Name() string

	// DisplayName is a human-readable name.
	DisplayName() string

	// Version is the plugin version, ideally semver.
	Version() string

	// Description is a one-line summary.
	Description() string

	// IsAvailable reports whether the plugin can run in this environment,
	// for example whether an external executable is installed.
	IsAvailable(ctx context.Context) bool
}

// Activator is implemented by plugins with an activation hook.
type Activator interface {
	OnActivate(ctx context.Context) error
}

// Deactivator is implemented by plugins with a deactivation hook.
type Deactivator interface {
	OnDeactivate(ctx context.Context) error
}

// DependencyDeclarer is implemented by plugins that depend on other plugins.
type DependencyDeclarer interface {
	Dependencies() []Dependency
}

// CapabilityDeclarer is implemented by plugins that advertise capabilities.
type CapabilityDeclarer interface {
	Capabilities() []string
}

// BusAware is implemented by plugins that want the shared message bus.
type BusAware interface {
	SetBus(bus event.Bus)
}

// Dependency declares that a plugin needs another plugin.
type Dependency struct {
	// Name is the dependency's registration name.
	Name string

	// VersionRange is an optional semver constraint (e.g. ">=1.2, <2").
	VersionRange string

	// Required dependencies must be active before activation.
	// Missing optional dependencies are only logged.
	Required bool
}

// hooks is the capability set of a plugin, resolved once at registration.
type hooks struct {
	activator    Activator
	deactivator  Deactivator
	dependencies DependencyDeclarer
	capabilities CapabilityDeclarer
}

func resolveHooks(p Plugin) hooks {
	var h hooks
	h.activator, _ = p.(Activator)
	h.deactivator, _ = p.(Deactivator)
	h.dependencies, _ = p.(DependencyDeclarer)
	h.capabilities, _ = p.(CapabilityDeclarer)
	return h
}

func (h hooks) hasActivationHook() bool   { return h.activator != nil }
func (h hooks) hasDeactivationHook() bool { return h.deactivator != nil }

func (h hooks) declaredDependencies() []Dependency {
	if h.dependencies == nil {
		return nil
	}
	return h.dependencies.Dependencies()
}

func (h hooks) declaredCapabilities() []string {
	if h.capabilities == nil {
		return nil
	}
	return h.capabilities.Capabilities()
}

// Base implements the identity half of Plugin and BusAware.
// Embed it and add IsAvailable plus any optional hooks.
type Base struct {
	name        string
	displayName string
	version     string
	description string

	mu  sync.RWMutex
	bus event.Bus
}

// NewBase creates a Base with the given identity.
func NewBase(name, displayName, version, description string) Base {
	return Base{
		name:        name,
		displayName: displayName,
		version:     version,
		description: description,
	}
}

// Name returns the registration name.
func (b *Base) Name() string { return b.name }

// DisplayName returns the display name, falling back to Name.
func (b *Base) DisplayName() string {
	if b.displayName == "" {
		return b.name
	}
	return b.displayName
}

// Version returns the plugin version.
func (b *Base) Version() string { return b.version }

// Description returns the plugin description.
func (b *Base) Description() string { return b.description }

// SetBus stores the shared message bus.
func (b *Base) SetBus(bus event.Bus) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.bus = bus
}

// Bus returns the injected message bus, or nil before registration.
func (b *Base) Bus() event.Bus {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.bus
}

func joinNames(names []string) string {
	return strings.Join(names, ", ")
}
