// Package events defines the plugin lifecycle messages published by the
// plugin manager.
//
// Each message type has a constant and a payload struct. Every payload carries
// the plugin name and the time of the transition:
//
//	plugin:before-activate     PluginBeforeActivate
//	plugin:activated           PluginActivated (Capabilities)
//	plugin:activation-failed   PluginActivationFailed (Error)
//	plugin:before-deactivate   PluginBeforeDeactivate
//	plugin:deactivated         PluginDeactivated
//	plugin:deactivation-failed PluginDeactivationFailed (Error)
//
// # Usage
//
//	sub := event.NewSubscriber(bus)
//	event.SubscribePayload(sub, events.TypePluginActivationFailed,
//	    func(ctx context.Context, p events.PluginActivationFailed, _ event.Message) error {
//	        log.Printf("%s failed to activate: %s", p.PluginName, p.Error)
//	        return nil
//	    })
package events
