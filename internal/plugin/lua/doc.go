// Package lua provides plugins implemented as Lua scripts.
//
// A script declares a global plugin table and, optionally, lifecycle
// functions:
//
//	plugin = {
//	    name = "shfmt",
//	    displayName = "Shell Formatter",
//	    version = "1.2.0",
//	    description = "formats shell scripts",
//	    dependencies = { "core", { name = "cache", version = ">=1.0", required = false } },
//	    capabilities = { "format" },
//	}
//
//	function is_available() return true end
//	function activate(settings) runtime.log("ready") end
//	function deactivate() end
//
// Load a script with LoadFile or LoadString and register the result with a
// plugin.Manager like any other plugin. The runtime module gives scripts
// runtime.publish(type, payload) on the shared bus and runtime.log(msg).
//
// # Sandbox
//
// Only the base, table, string and math libraries are opened. dofile,
// loadfile, load, loadstring and require are removed and print is routed
// to the plugin logger. Every call into the script runs under a context
// with the configured execution timeout, so a runaway loop is interrupted.
//
// # Thread Safety
//
// gopher-lua states are not goroutine-safe. State serializes every call
// with a mutex, so a plugin's hooks never run concurrently with each other.
package lua
