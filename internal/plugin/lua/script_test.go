package lua

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/dshills/pluginhost/internal/event"
	"github.com/dshills/pluginhost/internal/event/events"
	"github.com/dshills/pluginhost/internal/plugin"
)

const formatterScript = `
plugin = {
    name = "shfmt",
    displayName = "Shell Formatter",
    version = "1.2.0",
    description = "formats shell scripts",
    dependencies = { "core", { name = "cache", version = ">=1.0", required = false } },
    capabilities = { "format", "format.range" },
}

activated = 0

function is_available()
    return true
end

function activate(settings)
    activated = activated + 1
    indent = settings.indent
    runtime.publish("shfmt:ready", { indent = settings.indent, tags = { "a", "b" } })
end

function deactivate()
    runtime.log("bye", "warn")
end
`

func TestLoadString_Metadata(t *testing.T) {
	p, err := LoadString(context.Background(), "shfmt.lua", formatterScript)
	require.NoError(t, err)
	defer p.Close()

	assert.Equal(t, "shfmt", p.Name())
	assert.Equal(t, "Shell Formatter", p.DisplayName())
	assert.Equal(t, "1.2.0", p.Version())
	assert.Equal(t, "formats shell scripts", p.Description())
	assert.Equal(t, "shfmt.lua", p.Source())
	assert.Equal(t, []string{"format", "format.range"}, p.Capabilities())
	assert.Equal(t, []plugin.Dependency{
		{Name: "core", Required: true},
		{Name: "cache", VersionRange: ">=1.0", Required: false},
	}, p.Dependencies())
}

func TestLoadString_Defaults(t *testing.T) {
	p, err := LoadString(context.Background(), "min.lua", `plugin = { name = "min" }`)
	require.NoError(t, err)
	defer p.Close()

	assert.Equal(t, "min", p.DisplayName())
	assert.Equal(t, "0.0.0", p.Version())
	assert.True(t, p.IsAvailable(context.Background()))
	assert.NoError(t, p.OnActivate(context.Background()))
	assert.NoError(t, p.OnDeactivate(context.Background()))
}

func TestLoadString_Errors(t *testing.T) {
	tests := []struct {
		name    string
		code    string
		wantErr error
	}{
		{"no plugin table", `x = 1`, ErrMissingPluginTable},
		{"plugin not a table", `plugin = "shfmt"`, ErrMissingPluginTable},
		{"missing name", `plugin = { version = "1.0.0" }`, ErrInvalidPluginTable},
		{"bad dependency", `plugin = { name = "a", dependencies = { 42 } }`, ErrInvalidPluginTable},
		{"dependency without name", `plugin = { name = "a", dependencies = { { version = "1" } } }`, ErrInvalidPluginTable},
		{"bad capability", `plugin = { name = "a", capabilities = { {} } }`, ErrInvalidPluginTable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadString(context.Background(), "bad.lua", tt.code)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	_, err := LoadString(context.Background(), "syntax.lua", `plugin = {`)
	assert.Error(t, err)
}

func TestLoadString_Sandboxed(t *testing.T) {
	for _, global := range []string{"io", "os", "require", "dofile", "loadfile", "load", "loadstring"} {
		t.Run(global, func(t *testing.T) {
			code := `plugin = { name = "sandboxed" }
function is_available() return ` + global + ` == nil end`
			p, err := LoadString(context.Background(), "sandboxed.lua", code)
			require.NoError(t, err)
			defer p.Close()
			assert.True(t, p.IsAvailable(context.Background()))
		})
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shfmt.lua")
	require.NoError(t, os.WriteFile(path, []byte(formatterScript), 0o644))

	p, err := LoadFile(context.Background(), path)
	require.NoError(t, err)
	defer p.Close()
	assert.Equal(t, path, p.Source())

	_, err = LoadFile(context.Background(), filepath.Join(t.TempDir(), "missing.lua"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestPlugin_IsAvailable(t *testing.T) {
	tests := []struct {
		name string
		body string
		want bool
	}{
		{"true", `return true`, true},
		{"false", `return false`, false},
		{"nil", `return nil`, false},
		{"no result", ``, false},
		{"error", `error("which shellcheck failed")`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code := `plugin = { name = "x" }
function is_available() ` + tt.body + ` end`
			p, err := LoadString(context.Background(), "x.lua", code)
			require.NoError(t, err)
			defer p.Close()
			assert.Equal(t, tt.want, p.IsAvailable(context.Background()))
		})
	}
}

func TestPlugin_ActivatePublishesThroughRuntime(t *testing.T) {
	bus := event.NewBus()
	var got event.Message
	_, err := bus.SubscribeFunc("shfmt:ready", func(ctx context.Context, msg event.Message) error {
		got = msg
		return nil
	})
	require.NoError(t, err)

	p, err := LoadString(context.Background(), "shfmt.lua", formatterScript,
		WithSettings(map[string]any{"indent": 4}))
	require.NoError(t, err)
	defer p.Close()
	p.SetBus(bus)

	require.NoError(t, p.OnActivate(context.Background()))

	assert.Equal(t, "plugin:shfmt", got.Source)
	assert.Equal(t, map[string]any{
		"indent": int64(4),
		"tags":   []any{"a", "b"},
	}, got.Payload)
	assert.Equal(t, int64(4), NewBridge(p.state.L).ToGoValue(p.state.GetGlobal("indent")))
}

func TestPlugin_PublishWithoutBusFails(t *testing.T) {
	p, err := LoadString(context.Background(), "shfmt.lua", formatterScript)
	require.NoError(t, err)
	defer p.Close()

	err = p.OnActivate(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), ErrNoBus.Error())
}

func TestPlugin_LogAndPrint(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	code := `plugin = { name = "chatty" }
function activate() print("hello", 42) end`
	p, err := LoadString(context.Background(), "chatty.lua", formatterScript+"\n"+code,
		WithLogger(zap.New(core)))
	require.NoError(t, err)
	defer p.Close()
	p.SetBus(event.NewBus())

	require.NoError(t, p.OnActivate(context.Background()))
	require.NoError(t, p.OnDeactivate(context.Background()))

	printed := logs.FilterMessage("lua print").All()
	require.Len(t, printed, 1)
	assert.Equal(t, "hello\t42", printed[0].ContextMap()["output"])
	assert.Equal(t, "chatty", printed[0].ContextMap()["plugin"])

	bye := logs.FilterMessage("bye").All()
	require.Len(t, bye, 1)
	assert.Equal(t, zap.WarnLevel, bye[0].Level)
}

func TestPlugin_HookErrors(t *testing.T) {
	code := `plugin = { name = "broken" }
function activate() error("cannot start") end
function deactivate() error("cannot stop") end`
	p, err := LoadString(context.Background(), "broken.lua", code)
	require.NoError(t, err)
	defer p.Close()

	err = p.OnActivate(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot start")

	err = p.OnDeactivate(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot stop")
}

func TestPlugin_ExecutionTimeout(t *testing.T) {
	code := `plugin = { name = "spin" }
function activate() while true do end end`
	p, err := LoadString(context.Background(), "spin.lua", code, WithTimeout(50*time.Millisecond))
	require.NoError(t, err)
	defer p.Close()

	err = p.OnActivate(context.Background())
	assert.ErrorIs(t, err, ErrExecutionTimeout)

	// The state stays usable after an interrupted call.
	assert.True(t, p.IsAvailable(context.Background()))
}

func TestPlugin_Closed(t *testing.T) {
	code := `plugin = { name = "x" }
function activate() end`
	p, err := LoadString(context.Background(), "x.lua", code)
	require.NoError(t, err)
	assert.False(t, p.Closed())
	require.NoError(t, p.Close())
	require.NoError(t, p.Close())
	assert.True(t, p.Closed())

	assert.False(t, p.state.HasFunction(globalActivate))
	assert.NoError(t, p.OnActivate(context.Background()))
	_, err = p.state.Call(context.Background(), globalActivate)
	assert.ErrorIs(t, err, ErrStateClosed)
}

func TestPlugin_ManagedByManager(t *testing.T) {
	bus := event.NewBus()
	var activated []events.PluginActivated
	_, err := bus.SubscribeFunc(events.TypePluginActivated, func(ctx context.Context, msg event.Message) error {
		if payload, ok := event.PayloadAs[events.PluginActivated](msg); ok {
			activated = append(activated, payload)
		}
		return nil
	})
	require.NoError(t, err)

	m := plugin.NewManager(bus)
	core, err := LoadString(context.Background(), "core.lua", `plugin = { name = "core", version = "2.0.0" }`)
	require.NoError(t, err)
	defer core.Close()
	shfmt, err := LoadString(context.Background(), "shfmt.lua", formatterScript)
	require.NoError(t, err)
	defer shfmt.Close()

	require.NoError(t, m.Register(core))
	require.NoError(t, m.Register(shfmt))

	ok, err := m.Activate(context.Background(), "shfmt")
	assert.False(t, ok)
	assert.ErrorIs(t, err, plugin.ErrMissingRequiredDependency)

	ok, err = m.Activate(context.Background(), "core")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = m.Activate(context.Background(), "shfmt")
	require.NoError(t, err)
	assert.True(t, ok)

	require.Len(t, activated, 2)
	assert.Equal(t, []string{"format", "format.range"}, activated[1].Capabilities)
}

func TestBridge_RoundTrip(t *testing.T) {
	state := NewState()
	defer state.Close()
	b := NewBridge(state.L)

	in := map[string]any{
		"name":   "x",
		"count":  int64(3),
		"ratio":  0.5,
		"ok":     true,
		"items":  []any{"a", int64(1)},
		"nested": map[string]any{"k": "v"},
	}
	assert.Equal(t, in, b.ToGoValue(b.ToLuaValue(in)))
	assert.Equal(t, []any{"a", "b"}, b.ToGoValue(b.ToLuaValue([]string{"a", "b"})))
	assert.Nil(t, b.ToGoValue(b.ToLuaValue(nil)))

	type opaque struct{ n int }
	assert.Equal(t, opaque{n: 1}, b.ToGoValue(b.ToLuaValue(opaque{n: 1})))
}

func TestState_CallReturnsResults(t *testing.T) {
	state := NewState()
	defer state.Close()

	require.NoError(t, state.DoString(context.Background(), `function pair(a, b) return a + b, a * b end`))
	results, err := state.Call(context.Background(), "pair", 3, 4)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "7", results[0].String())
	assert.Equal(t, "12", results[1].String())

	_, err = state.Call(context.Background(), "missing")
	assert.Error(t, err)
}
