// Package config loads the plugin host configuration.
//
// Configuration comes from three layers, later layers winning:
//
//  1. Built-in defaults (Default)
//  2. A TOML or YAML file, chosen by extension
//  3. PLUGINHOST_* environment variables
//
// Example TOML:
//
//	[logging]
//	level = "debug"
//
//	[bus]
//	handlerTimeout = "2s"
//	maxSubscriptions = 1000
//
//	[plugins]
//	enabled = ["shfmt", "shellcheck"]
//	scripts = ["plugins/shfmt.lua"]
//	dependents = "refuse"
//
//	[metrics]
//	addr = ":9090"
//
// A Watcher reloads the file when it changes and hands the new Config to a
// callback, so the host can re-activate a different plugin set without a
// restart.
package config
