// Package plugin manages the lifecycle of in-process capability providers.
//
// A plugin is any value implementing Plugin. The host constructs plugin
// instances, registers them with a Manager and then asks the Manager to
// activate a named subset of them. Activation validates declared
// dependencies and the plugin's self-reported availability before running
// the plugin's activation hook, and every transition is announced on the
// shared message bus.
//
// # Plugin Contract
//
// Every plugin exposes identity and an availability check:
//
//	type Plugin interface {
//	    Name() string
//	    DisplayName() string
//	    Version() string
//	    Description() string
//	    IsAvailable(ctx context.Context) bool
//	}
//
// Optional capabilities are separate interfaces discovered once at
// registration:
//
//   - Activator: OnActivate(ctx) error
//   - Deactivator: OnDeactivate(ctx) error
//   - DependencyDeclarer: Dependencies() []Dependency
//   - CapabilityDeclarer: Capabilities() []string
//   - BusAware: SetBus(event.Bus)
//
// Embed Base to get identity and BusAware for free:
//
//	type Formatter struct {
//	    plugin.Base
//	}
//
//	func NewFormatter() *Formatter {
//	    return &Formatter{Base: plugin.NewBase("shfmt", "Shell Formatter", "1.0.0", "formats shell scripts")}
//	}
//
//	func (f *Formatter) IsAvailable(ctx context.Context) bool { return true }
//
// # Lifecycle
//
// Per plugin name the manager tracks:
//
//	Unregistered -> Registered -> Active <-> Inactive
//
// Activate publishes plugin:before-activate, restarts an already active
// plugin, checks that every required dependency is active (and satisfies
// its version range), asks IsAvailable and finally runs OnActivate. A hook
// failure is logged and, unless ManagerConfig.ThrowOnActivationError is
// set, does not keep the plugin from becoming active. The outcome is
// published as plugin:activated or plugin:activation-failed.
//
// Deactivate publishes plugin:before-deactivate, runs OnDeactivate and
// publishes plugin:deactivated, or plugin:deactivation-failed when the hook
// fails.
//
// # Dependents
//
// Deactivating a plugin that active plugins require is governed by
// ManagerConfig.Dependents: DependentsAllow (the default) logs a warning,
// DependentsRefuse rejects the call with ErrHasActiveDependents and
// DependentsCascade deactivates the dependents first.
//
// # Thread Safety
//
// All Manager methods are safe for concurrent use. Lifecycle hooks and bus
// publishes run outside the manager's lock; concurrent Activate calls for the
// same name are serialized per plugin.
package plugin
