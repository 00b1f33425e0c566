package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/dshills/pluginhost/internal/config"
	"github.com/dshills/pluginhost/internal/container"
	"github.com/dshills/pluginhost/internal/event"
	"github.com/dshills/pluginhost/internal/plugin"
)

type nativePlugin struct {
	plugin.Base
	activations atomic.Int32
}

func (p *nativePlugin) IsAvailable(context.Context) bool { return true }

func (p *nativePlugin) OnActivate(context.Context) error {
	p.activations.Add(1)
	return nil
}

const greeterScript = `
plugin = { name = "greeter", version = "0.1.0", capabilities = { "greet" } }

function activate()
    runtime.publish("greeter:hello", { from = "lua" })
end
`

func writeScript(t *testing.T, dir, name, code string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(code), 0o644))
	return path
}

func testConfig(enabled ...string) *config.Config {
	cfg := config.Default()
	cfg.Plugins.Enabled = enabled
	return &cfg
}

func newTestHost(t *testing.T, opts Options) *Host {
	t.Helper()
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	h, err := New(opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Shutdown(context.Background()) })
	return h
}

func nativeFactory(p *nativePlugin) PluginFactory {
	return func(container.Resolver) (plugin.Plugin, error) { return p, nil }
}

func TestNew_RegistersServices(t *testing.T) {
	h := newTestHost(t, Options{Config: testConfig()})

	var names []string
	for _, info := range h.Container().Registrations() {
		names = append(names, info.Name)
		assert.True(t, info.Instantiated, info.Name)
	}
	assert.ElementsMatch(t, []string{
		ServiceBus, ServiceConfig, ServiceLogger, ServiceMetrics, ServicePlugins, ServiceScripts,
	}, names)

	assert.NotNil(t, h.Logger())
	assert.NotNil(t, h.Collector())
	assert.Same(t, h.Bus(), h.Manager().Bus())
	assert.False(t, h.IsRunning())

	bus, err := container.Get[event.Bus](h.Container(), ServiceBus)
	require.NoError(t, err)
	assert.Same(t, h.Bus(), bus)
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Plugins.MaxParallel = -1

	_, err := New(Options{Config: cfg, Logger: zap.NewNop()})
	var initErr *InitError
	require.ErrorAs(t, err, &initErr)
	assert.Equal(t, ServiceConfig, initErr.Component)
	assert.ErrorIs(t, err, config.ErrValidationFailed)
}

func TestNew_LoadsConfigFile(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "greeter.lua", greeterScript)
	path := filepath.Join(dir, "pluginhost.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[plugins]
enabled = ["greeter"]
scripts = ["greeter.lua"]
`), 0o644))

	h := newTestHost(t, Options{ConfigPath: path})
	assert.Equal(t, []string{"greeter"}, h.Config().Plugins.Enabled)
	require.Len(t, h.scripts.plugins, 1)
	assert.Equal(t, "greeter", h.scripts.plugins[0].Name())
}

func TestNew_ScriptFailureCleansUp(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig()
	cfg.Plugins.Scripts = []string{
		writeScript(t, dir, "greeter.lua", greeterScript),
		filepath.Join(dir, "missing.lua"),
	}

	_, err := New(Options{Config: cfg, Logger: zap.NewNop()})
	var initErr *InitError
	require.ErrorAs(t, err, &initErr)
	assert.Equal(t, ServiceScripts, initErr.Component)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestStart_ActivatesEnabledPlugins(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig("native", "greeter")
	cfg.Plugins.Scripts = []string{writeScript(t, dir, "greeter.lua", greeterScript)}

	native := &nativePlugin{Base: plugin.NewBase("native", "Native", "1.0.0", "")}
	h := newTestHost(t, Options{
		Config:  cfg,
		Plugins: map[string]PluginFactory{"native": nativeFactory(native)},
	})

	var hello atomic.Int32
	_, err := h.Bus().SubscribeFunc("greeter:hello", func(ctx context.Context, msg event.Message) error {
		assert.Equal(t, "plugin:greeter", msg.Source)
		hello.Add(1)
		return nil
	})
	require.NoError(t, err)

	n, err := h.Start(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.True(t, h.IsRunning())
	assert.True(t, h.Manager().IsActive("native"))
	assert.True(t, h.Manager().IsActive("greeter"))
	assert.Equal(t, int32(1), native.activations.Load())
	assert.Equal(t, int32(1), hello.Load())

	_, err = h.Start(context.Background())
	assert.ErrorIs(t, err, ErrAlreadyRunning)
}

func TestStart_UnknownEnabledPluginIsLogged(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	h := newTestHost(t, Options{Config: testConfig("ghost"), Logger: zap.New(core)})

	n, err := h.Start(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, 1, logs.FilterMessage("some plugins failed to activate").Len())
}

func TestStart_PluginFactoryResolvesServices(t *testing.T) {
	var gotBus event.Bus
	h := newTestHost(t, Options{
		Config: testConfig("native"),
		Plugins: map[string]PluginFactory{
			"native": func(r container.Resolver) (plugin.Plugin, error) {
				bus, err := container.Get[event.Bus](r, ServiceBus)
				if err != nil {
					return nil, err
				}
				gotBus = bus
				return &nativePlugin{Base: plugin.NewBase("native", "", "1.0.0", "")}, nil
			},
		},
	})

	n, err := h.Start(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Same(t, h.Bus(), gotBus)
}

func TestStart_PluginFactoryError(t *testing.T) {
	boom := errors.New("boom")
	h := newTestHost(t, Options{
		Config: testConfig(),
		Plugins: map[string]PluginFactory{
			"broken": func(container.Resolver) (plugin.Plugin, error) { return nil, boom },
		},
	})

	_, err := h.Start(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.False(t, h.IsRunning())
}

func TestReload_ReactivatesEnabledPlugins(t *testing.T) {
	a := &nativePlugin{Base: plugin.NewBase("a", "", "1.0.0", "")}
	b := &nativePlugin{Base: plugin.NewBase("b", "", "1.0.0", "")}
	h := newTestHost(t, Options{
		Config: testConfig("a", "b"),
		Plugins: map[string]PluginFactory{
			"a": nativeFactory(a),
			"b": nativeFactory(b),
		},
	})

	_, err := h.Reload(context.Background(), *testConfig("a"))
	assert.ErrorIs(t, err, ErrNotRunning)

	_, err = h.Start(context.Background())
	require.NoError(t, err)

	n, err := h.Reload(context.Background(), *testConfig("a"))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"a"}, h.Manager().ActiveNames())
	assert.Equal(t, []string{"a"}, h.Config().Plugins.Enabled)
	assert.Equal(t, int32(2), a.activations.Load())
	assert.Equal(t, int32(1), b.activations.Load())
}

func TestShutdown_DeactivatesAndReleases(t *testing.T) {
	native := &nativePlugin{Base: plugin.NewBase("native", "", "1.0.0", "")}
	cfg := testConfig("native", "greeter")
	cfg.Plugins.Scripts = []string{writeScript(t, t.TempDir(), "greeter.lua", greeterScript)}
	h, err := New(Options{
		Config:  cfg,
		Logger:  zap.NewNop(),
		Plugins: map[string]PluginFactory{"native": nativeFactory(native)},
	})
	require.NoError(t, err)

	_, err = h.Start(context.Background())
	require.NoError(t, err)
	require.NotZero(t, h.Bus().Stats().ActiveSubscriptions)

	require.NoError(t, h.Shutdown(context.Background()))
	require.NoError(t, h.Shutdown(context.Background()))

	assert.False(t, h.IsRunning())
	assert.Empty(t, h.Manager().ActiveNames())
	assert.Equal(t, plugin.StateInactive, h.Manager().State("native"))
	assert.Zero(t, h.Bus().Stats().ActiveSubscriptions)
	require.Len(t, h.scripts.plugins, 1)
	assert.True(t, h.scripts.plugins[0].Closed())

	_, err = h.Start(context.Background())
	assert.ErrorIs(t, err, ErrShutDown)
	assert.ErrorIs(t, h.RegisterPlugins(), ErrShutDown)
}
