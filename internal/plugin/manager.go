package plugin

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/pluginhost/internal/event"
	"github.com/dshills/pluginhost/internal/event/events"
)

// EventSource is the Source of every lifecycle message the manager publishes.
const EventSource = "plugin-manager"

// timeNow is a variable to allow testing with fixed timestamps.
var timeNow = time.Now

// entry is a registered plugin and its resolved capability set.
type entry struct {
	plugin Plugin
	hooks  hooks

	// lifecycle serializes Activate and Deactivate for this plugin.
	lifecycle sync.Mutex
}

// Manager manages the lifecycle of all plugins.
type Manager struct {
	mu sync.RWMutex

	// Registered plugins by name
	plugins map[string]*entry

	// Registration order (for deterministic iteration)
	order []string

	// Active plugin names in activation order
	active []string

	// Names that have been active at least once
	seen map[string]bool

	bus       event.Bus
	publisher *event.Publisher
	config    ManagerConfig
	logger    *zap.Logger
}

// NewManager creates a plugin manager that announces lifecycle transitions
// on bus. A nil bus gets a private one.
func NewManager(bus event.Bus, opts ...ManagerOption) *Manager {
	if bus == nil {
		bus = event.NewBus()
	}
	m := &Manager{
		plugins:   make(map[string]*entry),
		seen:      make(map[string]bool),
		bus:       bus,
		publisher: event.NewPublisher(bus, EventSource),
		config:    DefaultManagerConfig(),
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Register stores p under p.Name(), replacing and warning about any plugin
// already registered under that name, and injects the bus into BusAware
// plugins. No lifecycle hook runs.
//
// A replaced plugin is not deactivated; its name simply loses the active mark.
func (m *Manager) Register(p Plugin) error {
	if p == nil {
		return fmt.Errorf("%w: nil plugin", ErrInvalidPlugin)
	}
	name := p.Name()
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidPlugin)
	}

	e := &entry{plugin: p, hooks: resolveHooks(p)}

	m.mu.Lock()
	_, replaced := m.plugins[name]
	wasActive := m.isActiveLocked(name)
	m.plugins[name] = e
	if !replaced {
		m.order = append(m.order, name)
	}
	m.removeActiveLocked(name)
	delete(m.seen, name)
	m.mu.Unlock()

	if replaced {
		m.logger.Warn("plugin already registered, replacing",
			zap.String("plugin", name),
			zap.Bool("wasActive", wasActive))
	}

	if aware, ok := p.(BusAware); ok {
		aware.SetBus(m.bus)
	}

	m.logger.Debug("plugin registered",
		zap.String("plugin", name),
		zap.String("version", p.Version()))
	return nil
}

// Unregister removes a plugin, deactivating it first if it is active.
// When the deactivation fails the plugin stays registered.
func (m *Manager) Unregister(ctx context.Context, name string) error {
	if !m.Has(name) {
		return fmt.Errorf("plugin %q: %w", name, ErrPluginNotFound)
	}

	if m.IsActive(name) {
		if _, err := m.Deactivate(ctx, name); err != nil {
			return fmt.Errorf("unregister plugin %q: %w", name, err)
		}
	}

	m.mu.Lock()
	delete(m.plugins, name)
	delete(m.seen, name)
	m.order = slices.DeleteFunc(m.order, func(n string) bool { return n == name })
	m.removeActiveLocked(name)
	m.mu.Unlock()

	m.logger.Debug("plugin unregistered", zap.String("plugin", name))
	return nil
}

// Activate activates a registered plugin and reports whether it is now
// active. A false result always comes with the reason.
//
// An already active plugin is deactivated and activated again. Required
// dependencies must be active and satisfy their version ranges, and the
// plugin must report itself available. An activation hook failure is only
// fatal with ThrowOnActivationError.
//
// Lifecycle handlers must not synchronously activate or deactivate the
// plugin whose event they are handling.
func (m *Manager) Activate(ctx context.Context, name string) (bool, error) {
	m.publish(ctx, events.TypePluginBeforeActivate, events.PluginBeforeActivate{
		PluginName: name,
		Timestamp:  timeNow(),
	})

	e, ok := m.entry(name)
	if !ok {
		err := fmt.Errorf("plugin %q: %w", name, ErrPluginNotFound)
		m.activationFailed(ctx, name, err)
		return false, err
	}

	e.lifecycle.Lock()
	defer e.lifecycle.Unlock()

	if m.IsActive(name) {
		m.logger.Debug("plugin already active, restarting", zap.String("plugin", name))
		if _, err := m.deactivateLocked(ctx, name, e); err != nil {
			m.activationFailed(ctx, name, err)
			return false, err
		}
	}

	if err := m.checkDependencies(name, e.hooks.declaredDependencies()); err != nil {
		m.activationFailed(ctx, name, err)
		return false, err
	}

	if !m.available(ctx, name, e.plugin) {
		err := fmt.Errorf("plugin %q: %w", name, ErrPluginUnavailable)
		m.activationFailed(ctx, name, err)
		return false, err
	}

	if e.hooks.hasActivationHook() {
		if err := m.runHook(ctx, name, PhaseActivate, e.hooks.activator.OnActivate); err != nil {
			m.logger.Warn("plugin activation hook failed",
				zap.String("plugin", name),
				zap.Error(err))
			if m.config.ThrowOnActivationError {
				m.activationFailed(ctx, name, err)
				return false, err
			}
		}
	}

	m.mu.Lock()
	m.active = append(m.active, name)
	m.seen[name] = true
	m.mu.Unlock()

	m.publish(ctx, events.TypePluginActivated, events.PluginActivated{
		PluginName:   name,
		Timestamp:    timeNow(),
		Capabilities: e.hooks.declaredCapabilities(),
	})
	m.logger.Info("plugin activated",
		zap.String("plugin", name),
		zap.String("version", e.plugin.Version()))
	return true, nil
}

// Deactivate deactivates an active plugin and reports whether it did.
// It returns false with a nil error when the plugin is already inactive.
func (m *Manager) Deactivate(ctx context.Context, name string) (bool, error) {
	e, ok := m.entry(name)
	if !ok {
		return false, fmt.Errorf("plugin %q: %w", name, ErrPluginNotFound)
	}
	if !m.IsActive(name) {
		return false, nil
	}

	if dependents := m.activeDependents(name); len(dependents) > 0 {
		switch m.config.Dependents {
		case DependentsRefuse:
			return false, fmt.Errorf("plugin %q is required by %s: %w", name, joinNames(dependents), ErrHasActiveDependents)
		case DependentsCascade:
			for _, dep := range dependents {
				if _, err := m.Deactivate(ctx, dep); err != nil {
					return false, fmt.Errorf("cascade deactivate %q: %w", dep, err)
				}
			}
		default:
			m.logger.Warn("deactivating plugin with active dependents",
				zap.String("plugin", name),
				zap.Strings("dependents", dependents))
		}
	}

	e.lifecycle.Lock()
	defer e.lifecycle.Unlock()
	return m.deactivateLocked(ctx, name, e)
}

// deactivateLocked runs the deactivation sequence. Must be called with
// e.lifecycle held.
func (m *Manager) deactivateLocked(ctx context.Context, name string, e *entry) (bool, error) {
	if !m.IsActive(name) {
		return false, nil
	}

	m.publish(ctx, events.TypePluginBeforeDeactivate, events.PluginBeforeDeactivate{
		PluginName: name,
		Timestamp:  timeNow(),
	})

	if e.hooks.hasDeactivationHook() {
		if err := m.runHook(ctx, name, PhaseDeactivate, e.hooks.deactivator.OnDeactivate); err != nil {
			m.logger.Warn("plugin deactivation hook failed",
				zap.String("plugin", name),
				zap.Error(err))
			m.publish(ctx, events.TypePluginDeactivationFailed, events.PluginDeactivationFailed{
				PluginName: name,
				Timestamp:  timeNow(),
				Error:      err.Error(),
			})
			if m.config.ThrowOnDeactivationError {
				return false, err
			}
		}
	}

	m.mu.Lock()
	m.removeActiveLocked(name)
	m.mu.Unlock()

	m.publish(ctx, events.TypePluginDeactivated, events.PluginDeactivated{
		PluginName: name,
		Timestamp:  timeNow(),
	})
	m.logger.Info("plugin deactivated", zap.String("plugin", name))
	return true, nil
}

// ActivateMultiple activates the named plugins concurrently and returns how
// many succeeded. Failures are isolated per plugin and logged together.
func (m *Manager) ActivateMultiple(ctx context.Context, names []string) int {
	var (
		succeeded atomic.Int64
		mu        sync.Mutex
		failures  []error
	)

	g := new(errgroup.Group)
	if m.config.MaxParallel > 0 {
		g.SetLimit(m.config.MaxParallel)
	}
	for _, name := range names {
		g.Go(func() error {
			ok, err := m.Activate(ctx, name)
			if ok {
				succeeded.Add(1)
				return nil
			}
			mu.Lock()
			failures = append(failures, fmt.Errorf("%s: %w", name, err))
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	if len(failures) > 0 {
		m.logger.Warn("some plugins failed to activate",
			zap.Int("requested", len(names)),
			zap.Int("failed", len(failures)),
			zap.Error(errors.Join(failures...)))
	}
	return int(succeeded.Load())
}

// DeactivateAll deactivates every active plugin one at a time. Dependents
// go before their dependencies, otherwise the most recently activated goes
// first. The dependents policy does not apply since everything goes down.
func (m *Manager) DeactivateAll(ctx context.Context) error {
	var deactivateErrors []error
	for _, name := range m.shutdownOrder() {
		e, ok := m.entry(name)
		if !ok {
			continue
		}
		e.lifecycle.Lock()
		_, err := m.deactivateLocked(ctx, name, e)
		e.lifecycle.Unlock()
		if err != nil {
			deactivateErrors = append(deactivateErrors, fmt.Errorf("%s: %w", name, err))
		}
	}

	if len(deactivateErrors) > 0 {
		return fmt.Errorf("failed to deactivate %d plugins: %w", len(deactivateErrors), errors.Join(deactivateErrors...))
	}
	return nil
}

// Reactivate deactivates everything and then activates names.
func (m *Manager) Reactivate(ctx context.Context, names []string) (int, error) {
	err := m.DeactivateAll(ctx)
	return m.ActivateMultiple(ctx, names), err
}

// Cleanup deactivates all plugins. It lets a container-owned manager be torn
// down by the container's cleanup pass.
func (m *Manager) Cleanup(ctx context.Context) error {
	return m.DeactivateAll(ctx)
}

// Get returns a plugin by name.
func (m *Manager) Get(name string) (Plugin, bool) {
	e, ok := m.entry(name)
	if !ok {
		return nil, false
	}
	return e.plugin, true
}

// Has reports whether a plugin is registered under name.
func (m *Manager) Has(name string) bool {
	_, ok := m.entry(name)
	return ok
}

// All returns every registered plugin in registration order.
func (m *Manager) All() []Plugin {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]Plugin, 0, len(m.order))
	for _, name := range m.order {
		if e, exists := m.plugins[name]; exists {
			result = append(result, e.plugin)
		}
	}
	return result
}

// IsActive reports whether the named plugin is active.
func (m *Manager) IsActive(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.isActiveLocked(name)
}

// ActiveNames returns the active plugin names in activation order.
func (m *Manager) ActiveNames() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.active)
}

// State returns the lifecycle state of a plugin name.
func (m *Manager) State(name string) State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stateLocked(name)
}

// Bus returns the shared message bus.
func (m *Manager) Bus() event.Bus {
	return m.bus
}

// Stats summarizes the registered plugins.
type Stats struct {
	Total   int
	Active  int
	Plugins []PluginStatus
}

// PluginStatus describes one registered plugin.
type PluginStatus struct {
	Name        string
	DisplayName string
	Version     string
	State       State
	Active      bool
}

// Stats returns a snapshot of the registered plugins in registration order.
func (m *Manager) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := Stats{
		Total:   len(m.plugins),
		Active:  len(m.active),
		Plugins: make([]PluginStatus, 0, len(m.order)),
	}
	for _, name := range m.order {
		e, exists := m.plugins[name]
		if !exists {
			continue
		}
		state := m.stateLocked(name)
		stats.Plugins = append(stats.Plugins, PluginStatus{
			Name:        name,
			DisplayName: e.plugin.DisplayName(),
			Version:     e.plugin.Version(),
			State:       state,
			Active:      state == StateActive,
		})
	}
	return stats
}

// AvailablePlugins runs IsAvailable on every registered plugin concurrently
// and returns the available ones in registration order. A panicking check
// counts as unavailable.
func (m *Manager) AvailablePlugins(ctx context.Context) []Plugin {
	all := m.All()
	available := make([]bool, len(all))

	g := new(errgroup.Group)
	if m.config.MaxParallel > 0 {
		g.SetLimit(m.config.MaxParallel)
	}
	for i, p := range all {
		g.Go(func() error {
			available[i] = m.available(ctx, p.Name(), p)
			return nil
		})
	}
	_ = g.Wait()

	result := make([]Plugin, 0, len(all))
	for i, p := range all {
		if available[i] {
			result = append(result, p)
		}
	}
	return result
}

// entry returns the registration for name.
func (m *Manager) entry(name string) (*entry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.plugins[name]
	return e, ok
}

// checkDependencies verifies that every required dependency is active and
// within its version range. Optional dependencies only produce warnings.
func (m *Manager) checkDependencies(name string, deps []Dependency) error {
	if len(deps) == 0 {
		return nil
	}

	var missing, mismatched []string
	for _, dep := range deps {
		target, active := m.activePlugin(dep.Name)
		if !active {
			if dep.Required {
				missing = append(missing, dep.Name)
			} else {
				m.logger.Warn("optional dependency not active",
					zap.String("plugin", name),
					zap.String("dependency", dep.Name))
			}
			continue
		}

		if err := checkVersion(target.Version(), dep.VersionRange); err != nil {
			if dep.Required {
				mismatched = append(mismatched, fmt.Sprintf("%s (%v)", dep.Name, err))
			} else {
				m.logger.Warn("optional dependency version mismatch",
					zap.String("plugin", name),
					zap.String("dependency", dep.Name),
					zap.Error(err))
			}
		}
	}

	if len(missing) > 0 || len(mismatched) > 0 {
		return &DependencyError{Plugin: name, Missing: missing, Mismatched: mismatched}
	}
	return nil
}

// activePlugin returns the named plugin if it is registered and active.
func (m *Manager) activePlugin(name string) (Plugin, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.plugins[name]
	if !ok || !m.isActiveLocked(name) {
		return nil, false
	}
	return e.plugin, true
}

// shutdownOrder returns the active plugins ordered so that each comes after
// every active plugin that requires it. Ties and cycles fall back to
// reverse activation order.
func (m *Manager) shutdownOrder() []string {
	m.mu.RLock()
	remaining := slices.Clone(m.active)
	requires := make(map[string][]string, len(remaining))
	for _, name := range remaining {
		for _, dep := range m.plugins[name].hooks.declaredDependencies() {
			if dep.Required {
				requires[name] = append(requires[name], dep.Name)
			}
		}
	}
	m.mu.RUnlock()
	slices.Reverse(remaining)

	order := make([]string, 0, len(remaining))
	for len(remaining) > 0 {
		next := -1
		for i, name := range remaining {
			required := slices.ContainsFunc(remaining, func(other string) bool {
				return other != name && slices.Contains(requires[other], name)
			})
			if !required {
				next = i
				break
			}
		}
		if next < 0 {
			return append(order, remaining...)
		}
		order = append(order, remaining[next])
		remaining = slices.Delete(remaining, next, next+1)
	}
	return order
}

// activeDependents returns the active plugins that require name, most
// recently activated first.
func (m *Manager) activeDependents(name string) []string {
	m.mu.RLock()
	candidates := make([]*entry, 0, len(m.active))
	for _, n := range m.active {
		if n != name {
			candidates = append(candidates, m.plugins[n])
		}
	}
	m.mu.RUnlock()

	var dependents []string
	for i := len(candidates) - 1; i >= 0; i-- {
		e := candidates[i]
		for _, dep := range e.hooks.declaredDependencies() {
			if dep.Required && dep.Name == name {
				dependents = append(dependents, e.plugin.Name())
				break
			}
		}
	}
	return dependents
}

// available calls IsAvailable, treating a panic as unavailable.
func (m *Manager) available(ctx context.Context, name string, p Plugin) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Warn("plugin availability check panicked",
				zap.String("plugin", name),
				zap.Any("panic", r))
			ok = false
		}
	}()
	return p.IsAvailable(ctx)
}

// runHook invokes a lifecycle hook, converting errors and panics to *HookError.
func (m *Manager) runHook(ctx context.Context, name string, phase Phase, hook func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &HookError{Plugin: name, Phase: phase, Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	if hookErr := hook(ctx); hookErr != nil {
		return &HookError{Plugin: name, Phase: phase, Err: hookErr}
	}
	return nil
}

// activationFailed publishes plugin:activation-failed.
func (m *Manager) activationFailed(ctx context.Context, name string, err error) {
	m.logger.Debug("plugin activation failed",
		zap.String("plugin", name),
		zap.Error(err))
	m.publish(ctx, events.TypePluginActivationFailed, events.PluginActivationFailed{
		PluginName: name,
		Timestamp:  timeNow(),
		Error:      err.Error(),
	})
}

// publish sends a lifecycle message. Bus errors are logged, never returned.
func (m *Manager) publish(ctx context.Context, msgType string, payload any) {
	if _, err := m.publisher.Publish(ctx, msgType, payload); err != nil {
		m.logger.Warn("failed to publish lifecycle event",
			zap.String("type", msgType),
			zap.Error(err))
	}
}

// isActiveLocked reports whether name is active. Must be called with mu held.
func (m *Manager) isActiveLocked(name string) bool {
	return slices.Contains(m.active, name)
}

// removeActiveLocked drops name from the active list. Must be called with mu held.
func (m *Manager) removeActiveLocked(name string) {
	m.active = slices.DeleteFunc(m.active, func(n string) bool { return n == name })
}

// stateLocked derives the lifecycle state of name. Must be called with mu held.
func (m *Manager) stateLocked(name string) State {
	switch {
	case m.plugins[name] == nil:
		return StateUnregistered
	case m.isActiveLocked(name):
		return StateActive
	case m.seen[name]:
		return StateInactive
	default:
		return StateRegistered
	}
}
