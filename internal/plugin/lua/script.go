package lua

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/dshills/pluginhost/internal/event"
	"github.com/dshills/pluginhost/internal/plugin"
)

// Global names a script may define.
const (
	globalPlugin      = "plugin"
	globalIsAvailable = "is_available"
	globalActivate    = "activate"
	globalDeactivate  = "deactivate"
	moduleRuntime     = "runtime"
)

// Plugin is a plugin.Plugin backed by a Lua script.
type Plugin struct {
	state  *State
	source string

	name        string
	displayName string
	version     string
	description string
	deps        []plugin.Dependency
	caps        []string

	settings map[string]any
	logger   *zap.Logger

	mu  sync.RWMutex
	bus event.Bus
}

// Option configures a Lua plugin.
type Option func(*options)

type options struct {
	logger   *zap.Logger
	settings map[string]any
	timeout  time.Duration
}

// WithLogger sets the logger used for runtime.log and print.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithSettings passes settings to the script's activate function.
func WithSettings(settings map[string]any) Option {
	return func(o *options) {
		o.settings = settings
	}
}

// WithTimeout bounds each call into the script.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		o.timeout = d
	}
}

// LoadFile loads a plugin script from disk.
func LoadFile(ctx context.Context, path string, opts ...Option) (*Plugin, error) {
	code, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read lua plugin: %w", err)
	}
	return LoadString(ctx, path, string(code), opts...)
}

// LoadString loads a plugin from Lua source. source names the script in
// errors and log fields.
func LoadString(ctx context.Context, source, code string, opts ...Option) (*Plugin, error) {
	o := options{
		logger:  zap.NewNop(),
		timeout: DefaultExecutionTimeout,
	}
	for _, opt := range opts {
		opt(&o)
	}

	p := &Plugin{
		source:   source,
		settings: o.settings,
		logger:   o.logger.With(zap.String("script", source)),
	}
	p.state = NewState(
		WithExecutionTimeout(o.timeout),
		WithOutput(func(line string) {
			p.logger.Debug("lua print", zap.String("output", line))
		}),
	)
	p.state.RegisterModule(moduleRuntime, map[string]lua.LGFunction{
		"publish": p.luaPublish,
		"log":     p.luaLog,
	})

	if err := p.state.DoString(ctx, code); err != nil {
		p.state.Close()
		return nil, fmt.Errorf("load lua plugin %s: %w", source, err)
	}
	if err := p.state.Do(ctx, p.readMetadata); err != nil {
		p.state.Close()
		return nil, fmt.Errorf("load lua plugin %s: %w", source, err)
	}

	p.logger = p.logger.With(zap.String("plugin", p.name))
	return p, nil
}

// readMetadata fills the plugin identity from the global plugin table.
func (p *Plugin) readMetadata(L *lua.LState, b *Bridge) error {
	tbl, ok := L.GetGlobal(globalPlugin).(*lua.LTable)
	if !ok {
		return ErrMissingPluginTable
	}

	name, ok := b.GetTableString(tbl, "name")
	if !ok || name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidPluginTable)
	}
	p.name = name
	p.displayName, _ = b.GetTableString(tbl, "displayName")
	p.description, _ = b.GetTableString(tbl, "description")
	p.version, _ = b.GetTableString(tbl, "version")
	if p.version == "" {
		p.version = "0.0.0"
	}

	if caps, ok := b.GetTableTable(tbl, "capabilities"); ok {
		var err error
		caps.ForEach(func(_, v lua.LValue) {
			s, ok := v.(lua.LString)
			if !ok {
				err = fmt.Errorf("%w: capabilities must be strings", ErrInvalidPluginTable)
				return
			}
			p.caps = append(p.caps, string(s))
		})
		if err != nil {
			return err
		}
	}

	if deps, ok := b.GetTableTable(tbl, "dependencies"); ok {
		for i := 1; i <= deps.Len(); i++ {
			dep, err := parseDependency(b, deps.RawGetInt(i))
			if err != nil {
				return err
			}
			p.deps = append(p.deps, dep)
		}
	}
	return nil
}

// parseDependency accepts either a plugin name, which is a required
// dependency, or a table with name, version and required fields.
func parseDependency(b *Bridge, v lua.LValue) (plugin.Dependency, error) {
	switch dv := v.(type) {
	case lua.LString:
		return plugin.Dependency{Name: string(dv), Required: true}, nil
	case *lua.LTable:
		name, ok := b.GetTableString(dv, "name")
		if !ok || name == "" {
			return plugin.Dependency{}, fmt.Errorf("%w: dependency name is required", ErrInvalidPluginTable)
		}
		dep := plugin.Dependency{Name: name, Required: true}
		dep.VersionRange, _ = b.GetTableString(dv, "version")
		if required, ok := b.GetTableBool(dv, "required"); ok {
			dep.Required = required
		}
		return dep, nil
	default:
		return plugin.Dependency{}, fmt.Errorf("%w: dependency must be a string or table, got %s", ErrInvalidPluginTable, v.Type())
	}
}

// Name returns the registration name declared by the script.
func (p *Plugin) Name() string { return p.name }

// DisplayName returns the display name, falling back to Name.
func (p *Plugin) DisplayName() string {
	if p.displayName == "" {
		return p.name
	}
	return p.displayName
}

// Version returns the declared version.
func (p *Plugin) Version() string { return p.version }

// Description returns the declared description.
func (p *Plugin) Description() string { return p.description }

// Source returns the script path or chunk name.
func (p *Plugin) Source() string { return p.source }

// Dependencies returns the declared dependencies.
func (p *Plugin) Dependencies() []plugin.Dependency { return p.deps }

// Capabilities returns the declared capabilities.
func (p *Plugin) Capabilities() []string { return p.caps }

// IsAvailable calls is_available. A script without one is always available;
// a script error counts as unavailable.
func (p *Plugin) IsAvailable(ctx context.Context) bool {
	if !p.state.HasFunction(globalIsAvailable) {
		return true
	}
	results, err := p.state.Call(ctx, globalIsAvailable)
	if err != nil {
		p.logger.Warn("lua availability check failed", zap.Error(err))
		return false
	}
	return len(results) > 0 && lua.LVAsBool(results[0])
}

// OnActivate calls activate(settings) if the script defines it.
func (p *Plugin) OnActivate(ctx context.Context) error {
	if !p.state.HasFunction(globalActivate) {
		return nil
	}
	settings := p.settings
	if settings == nil {
		settings = map[string]any{}
	}
	_, err := p.state.Call(ctx, globalActivate, settings)
	return err
}

// OnDeactivate calls deactivate() if the script defines it.
func (p *Plugin) OnDeactivate(ctx context.Context) error {
	if !p.state.HasFunction(globalDeactivate) {
		return nil
	}
	_, err := p.state.Call(ctx, globalDeactivate)
	return err
}

// SetBus attaches the shared message bus used by runtime.publish.
func (p *Plugin) SetBus(bus event.Bus) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bus = bus
}

// Close releases the Lua state.
func (p *Plugin) Close() error {
	return p.state.Close()
}

// Closed reports whether Close has been called.
func (p *Plugin) Closed() bool {
	return p.state.IsClosed()
}

// luaPublish implements runtime.publish(type, payload) -> delivered.
func (p *Plugin) luaPublish(L *lua.LState) int {
	msgType := L.CheckString(1)
	payload := NewBridge(L).ToGoValue(L.Get(2))

	p.mu.RLock()
	bus := p.bus
	p.mu.RUnlock()
	if bus == nil {
		L.RaiseError("runtime.publish: %s", ErrNoBus)
		return 0
	}

	ctx := L.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	delivered, err := bus.Publish(ctx, msgType, payload, "plugin:"+p.name)
	if err != nil {
		L.RaiseError("runtime.publish: %s", err)
		return 0
	}
	L.Push(lua.LNumber(delivered))
	return 1
}

// luaLog implements runtime.log(message [, level]).
func (p *Plugin) luaLog(L *lua.LState) int {
	msg := L.CheckString(1)
	switch L.OptString(2, "info") {
	case "debug":
		p.logger.Debug(msg)
	case "warn":
		p.logger.Warn(msg)
	case "error":
		p.logger.Error(msg)
	default:
		p.logger.Info(msg)
	}
	return 0
}

var (
	_ plugin.Plugin             = (*Plugin)(nil)
	_ plugin.Activator          = (*Plugin)(nil)
	_ plugin.Deactivator        = (*Plugin)(nil)
	_ plugin.DependencyDeclarer = (*Plugin)(nil)
	_ plugin.CapabilityDeclarer = (*Plugin)(nil)
	_ plugin.BusAware           = (*Plugin)(nil)
)
