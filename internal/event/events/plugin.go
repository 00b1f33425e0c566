package events

import "time"

// Plugin lifecycle message types.
const (
	// TypePluginBeforeActivate is published when activation of a plugin starts.
	TypePluginBeforeActivate = "plugin:before-activate"

	// TypePluginActivated is published when a plugin became active.
	TypePluginActivated = "plugin:activated"

	// TypePluginActivationFailed is published when a plugin could not be activated.
	TypePluginActivationFailed = "plugin:activation-failed"

	// TypePluginBeforeDeactivate is published when deactivation of a plugin starts.
	TypePluginBeforeDeactivate = "plugin:before-deactivate"

	// TypePluginDeactivated is published when a plugin was deactivated.
	TypePluginDeactivated = "plugin:deactivated"

	// TypePluginDeactivationFailed is published when a deactivation hook failed.
	TypePluginDeactivationFailed = "plugin:deactivation-failed"
)

// LifecycleTypes lists every lifecycle message type.
var LifecycleTypes = []string{
	TypePluginBeforeActivate,
	TypePluginActivated,
	TypePluginActivationFailed,
	TypePluginBeforeDeactivate,
	TypePluginDeactivated,
	TypePluginDeactivationFailed,
}

// PluginBeforeActivate is published when activation of a plugin starts.
type PluginBeforeActivate struct {
	// PluginName is the unique plugin identifier.
	PluginName string

	// Timestamp is when the transition happened.
	Timestamp time.Time
}

// PluginActivated is published when a plugin became active.
type PluginActivated struct {
	// PluginName is the unique plugin identifier.
	PluginName string

	// Timestamp is when the transition happened.
	Timestamp time.Time

	// Capabilities lists the plugin's declared capabilities.
	Capabilities []string
}

// PluginActivationFailed is published when a plugin could not be activated.
type PluginActivationFailed struct {
	// PluginName is the unique plugin identifier.
	PluginName string

	// Timestamp is when the failure happened.
	Timestamp time.Time

	// Error describes why activation failed.
	Error string
}

// PluginBeforeDeactivate is published when deactivation of a plugin starts.
type PluginBeforeDeactivate struct {
	// PluginName is the unique plugin identifier.
	PluginName string

	// Timestamp is when the transition happened.
	Timestamp time.Time
}

// PluginDeactivated is published when a plugin was deactivated.
type PluginDeactivated struct {
	// PluginName is the unique plugin identifier.
	PluginName string

	// Timestamp is when the transition happened.
	Timestamp time.Time
}

// PluginDeactivationFailed is published when a deactivation hook failed.
type PluginDeactivationFailed struct {
	// PluginName is the unique plugin identifier.
	PluginName string

	// Timestamp is when the failure happened.
	Timestamp time.Time

	// Error describes the hook failure.
	Error string
}
