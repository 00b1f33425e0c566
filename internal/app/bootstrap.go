package app

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dshills/pluginhost/internal/config"
	"github.com/dshills/pluginhost/internal/container"
	"github.com/dshills/pluginhost/internal/event"
	"github.com/dshills/pluginhost/internal/logging"
	"github.com/dshills/pluginhost/internal/metrics"
	"github.com/dshills/pluginhost/internal/plugin"
	"github.com/dshills/pluginhost/internal/plugin/lua"
)

// Service names registered in the host container.
const (
	ServiceLogger  = "logger"
	ServiceConfig  = "config"
	ServiceBus     = "bus"
	ServicePlugins = "plugins"
	ServiceMetrics = "metrics"
	ServiceScripts = "scripts"

	// PluginServicePrefix prefixes the transient registration of each
	// built-in plugin factory.
	PluginServicePrefix = "plugin."
)

// bootstrapper registers the host services and resolves them in
// dependency order, tearing down what was built if a step fails.
type bootstrapper struct {
	host      *Host
	opts      Options
	initOrder []string
}

func newBootstrapper(h *Host, opts Options) *bootstrapper {
	return &bootstrapper{
		host:      h,
		opts:      opts,
		initOrder: make([]string, 0, 6),
	}
}

// bootstrap registers every service and resolves the singletons.
func (b *bootstrapper) bootstrap() error {
	if err := b.register(); err != nil {
		return err
	}

	steps := []struct {
		name string
		init func() error
	}{
		{ServiceConfig, b.initConfig},
		{ServiceLogger, b.initLogger},
		{ServiceBus, b.initBus},
		{ServicePlugins, b.initPlugins},
		{ServiceMetrics, b.initMetrics},
		{ServiceScripts, b.initScripts},
	}
	for _, step := range steps {
		if err := step.init(); err != nil {
			b.cleanup()
			return &InitError{Component: step.name, Err: err}
		}
		b.initOrder = append(b.initOrder, step.name)
	}
	return nil
}

// register installs the service factories. Nothing is built yet.
func (b *bootstrapper) register() error {
	c := b.host.container

	regs := []struct {
		name    string
		factory container.Factory
		deps    []string
	}{
		{ServiceConfig, b.newConfig, nil},
		{ServiceLogger, b.newLogger, []string{ServiceConfig}},
		{ServiceBus, newBus, []string{ServiceConfig, ServiceLogger}},
		{ServicePlugins, newManager, []string{ServiceConfig, ServiceLogger, ServiceBus}},
		{ServiceMetrics, newCollector, []string{ServiceBus, ServicePlugins}},
		{ServiceScripts, newScripts, []string{ServiceConfig, ServiceLogger}},
	}
	for _, r := range regs {
		if err := c.RegisterSingleton(r.name, r.factory, r.deps...); err != nil {
			return &InitError{Component: r.name, Err: err}
		}
	}

	for name, factory := range b.opts.Plugins {
		if err := c.RegisterTransient(PluginServicePrefix+name, pluginFactory(factory)); err != nil {
			return &InitError{Component: PluginServicePrefix + name, Err: err}
		}
	}
	return nil
}

func (b *bootstrapper) initConfig() error {
	cfg, err := container.Get[*config.Config](b.host.container, ServiceConfig)
	if err != nil {
		return err
	}
	b.host.cfg = *cfg
	return nil
}

func (b *bootstrapper) initLogger() (err error) {
	b.host.logger, err = container.Get[*zap.Logger](b.host.container, ServiceLogger)
	return err
}

func (b *bootstrapper) initBus() (err error) {
	b.host.bus, err = container.Get[event.Bus](b.host.container, ServiceBus)
	return err
}

func (b *bootstrapper) initPlugins() (err error) {
	b.host.manager, err = container.Get[*plugin.Manager](b.host.container, ServicePlugins)
	return err
}

func (b *bootstrapper) initMetrics() (err error) {
	b.host.collector, err = container.Get[*metrics.Collector](b.host.container, ServiceMetrics)
	return err
}

func (b *bootstrapper) initScripts() (err error) {
	b.host.scripts, err = container.Get[*scriptSet](b.host.container, ServiceScripts)
	return err
}

// cleanup tears down the services built so far.
func (b *bootstrapper) cleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if b.host.manager != nil {
		_ = b.host.manager.Cleanup(ctx)
	}
	b.host.container.Cleanup(ctx)
}

func (b *bootstrapper) newConfig(container.Resolver) (any, error) {
	if b.opts.Config != nil {
		cfg := *b.opts.Config
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		return &cfg, nil
	}
	cfg, err := config.Load(b.opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (b *bootstrapper) newLogger(r container.Resolver) (any, error) {
	if b.opts.Logger != nil {
		return b.opts.Logger, nil
	}
	cfg, err := container.Get[*config.Config](r, ServiceConfig)
	if err != nil {
		return nil, err
	}
	lc := logging.DefaultConfig()
	lc.Level = cfg.Logging.Level
	lc.Development = cfg.Logging.Development
	return logging.New(lc)
}

func newBus(r container.Resolver) (any, error) {
	cfg, err := container.Get[*config.Config](r, ServiceConfig)
	if err != nil {
		return nil, err
	}
	logger, err := container.Get[*zap.Logger](r, ServiceLogger)
	if err != nil {
		return nil, err
	}
	return event.NewBus(
		event.WithHandlerTimeout(cfg.Bus.HandlerTimeout.Std()),
		event.WithMaxSubscriptions(cfg.Bus.MaxSubscriptions),
		event.WithLogger(logging.Component(logger, "event")),
	), nil
}

func newManager(r container.Resolver) (any, error) {
	cfg, err := container.Get[*config.Config](r, ServiceConfig)
	if err != nil {
		return nil, err
	}
	logger, err := container.Get[*zap.Logger](r, ServiceLogger)
	if err != nil {
		return nil, err
	}
	bus, err := container.Get[event.Bus](r, ServiceBus)
	if err != nil {
		return nil, err
	}
	return plugin.NewManager(bus,
		plugin.WithConfig(cfg.ManagerConfig()),
		plugin.WithLogger(logging.Component(logger, "plugin")),
	), nil
}

func newCollector(r container.Resolver) (any, error) {
	bus, err := container.Get[event.Bus](r, ServiceBus)
	if err != nil {
		return nil, err
	}
	manager, err := container.Get[*plugin.Manager](r, ServicePlugins)
	if err != nil {
		return nil, err
	}
	c := metrics.NewCollector(bus, manager)
	if err := c.WatchLifecycle(bus); err != nil {
		return nil, err
	}
	return c, nil
}

func newScripts(r container.Resolver) (any, error) {
	cfg, err := container.Get[*config.Config](r, ServiceConfig)
	if err != nil {
		return nil, err
	}
	logger, err := container.Get[*zap.Logger](r, ServiceLogger)
	if err != nil {
		return nil, err
	}
	return loadScripts(context.Background(), cfg.Plugins.Scripts,
		lua.WithLogger(logging.Component(logger, "lua")),
		lua.WithTimeout(cfg.Plugins.ScriptTimeout.Std()),
	)
}

// pluginFactory adapts a PluginFactory to a container factory.
func pluginFactory(f PluginFactory) container.Factory {
	return func(r container.Resolver) (any, error) {
		if f == nil {
			return nil, fmt.Errorf("%w: nil plugin factory", plugin.ErrInvalidPlugin)
		}
		p, err := f(r)
		if err != nil {
			return nil, err
		}
		return p, nil
	}
}

// pluginServices returns the registered plugin factory names, sorted.
func pluginServices(c *container.Container) []string {
	var names []string
	for _, info := range c.Registrations() {
		if info.Lifetime == container.Transient && strings.HasPrefix(info.Name, PluginServicePrefix) {
			names = append(names, info.Name)
		}
	}
	sort.Strings(names)
	return names
}
