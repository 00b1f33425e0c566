// Package app wires the plugin runtime together: one service container
// owning the configuration, logger, message bus, plugin manager, metrics
// collector and Lua scripts.
package app

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/dshills/pluginhost/internal/config"
	"github.com/dshills/pluginhost/internal/container"
	"github.com/dshills/pluginhost/internal/event"
	"github.com/dshills/pluginhost/internal/metrics"
	"github.com/dshills/pluginhost/internal/plugin"
)

// PluginFactory builds a built-in plugin. It may resolve host services
// such as ServiceBus from r.
type PluginFactory func(r container.Resolver) (plugin.Plugin, error)

// Options configures the host.
type Options struct {
	// ConfigPath is the configuration file. Empty means defaults plus
	// environment.
	ConfigPath string

	// Config, when set, is used instead of loading ConfigPath.
	Config *config.Config

	// Logger overrides the logger built from the configuration.
	Logger *zap.Logger

	// Plugins are built-in plugin factories keyed by service name suffix.
	Plugins map[string]PluginFactory
}

// Host owns the runtime components and their lifecycle.
type Host struct {
	container *container.Container

	mu  sync.RWMutex
	cfg config.Config

	logger    *zap.Logger
	bus       event.Bus
	manager   *plugin.Manager
	collector *metrics.Collector
	scripts   *scriptSet

	registered atomic.Bool
	running    atomic.Bool
	shutDown   atomic.Bool
}

// New builds a host and resolves its services. Nothing is activated until
// Start.
func New(opts Options) (*Host, error) {
	h := &Host{}
	var copts []container.Option
	if opts.Logger != nil {
		copts = append(copts, container.WithLogger(opts.Logger.Named("container")))
	}
	h.container = container.New(copts...)

	if err := newBootstrapper(h, opts).bootstrap(); err != nil {
		return nil, err
	}
	return h, nil
}

// Container returns the service container.
func (h *Host) Container() *container.Container { return h.container }

// Logger returns the host logger.
func (h *Host) Logger() *zap.Logger { return h.logger }

// Bus returns the shared message bus.
func (h *Host) Bus() event.Bus { return h.bus }

// Manager returns the plugin manager.
func (h *Host) Manager() *plugin.Manager { return h.manager }

// Collector returns the metrics collector.
func (h *Host) Collector() *metrics.Collector { return h.collector }

// Config returns the current configuration.
func (h *Host) Config() config.Config {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.cfg
}

// IsRunning reports whether Start succeeded and Shutdown has not run.
func (h *Host) IsRunning() bool { return h.running.Load() }

// RegisterPlugins registers every built-in plugin and loaded script with
// the manager. It runs once; later calls are no-ops.
func (h *Host) RegisterPlugins() error {
	if h.shutDown.Load() {
		return ErrShutDown
	}
	if !h.registered.CompareAndSwap(false, true) {
		return nil
	}

	for _, service := range pluginServices(h.container) {
		p, err := container.Get[plugin.Plugin](h.container, service)
		if err != nil {
			h.registered.Store(false)
			return fmt.Errorf("build plugin %s: %w", service, err)
		}
		if err := h.manager.Register(p); err != nil {
			h.registered.Store(false)
			return err
		}
	}
	for _, p := range h.scripts.plugins {
		if err := h.manager.Register(p); err != nil {
			h.registered.Store(false)
			return err
		}
	}
	return nil
}

// Start registers the plugins and activates the enabled ones. It returns
// the number activated; plugins that fail are logged by the manager.
func (h *Host) Start(ctx context.Context) (int, error) {
	if h.shutDown.Load() {
		return 0, ErrShutDown
	}
	if !h.running.CompareAndSwap(false, true) {
		return 0, ErrAlreadyRunning
	}
	if err := h.RegisterPlugins(); err != nil {
		h.running.Store(false)
		return 0, err
	}

	enabled := h.Config().Plugins.Enabled
	n := h.manager.ActivateMultiple(ctx, enabled)
	h.logger.Info("plugin host started",
		zap.Int("activated", n),
		zap.Int("enabled", len(enabled)),
		zap.Int("registered", h.manager.Stats().Total))
	return n, nil
}

// Reload applies cfg to a running host by reactivating its enabled
// plugins. Bus, manager and script settings take effect on restart only.
func (h *Host) Reload(ctx context.Context, cfg config.Config) (int, error) {
	if !h.running.Load() {
		return 0, ErrNotRunning
	}

	h.mu.Lock()
	prev := h.cfg
	h.cfg = cfg
	h.mu.Unlock()

	if !slices.Equal(prev.Plugins.Scripts, cfg.Plugins.Scripts) {
		h.logger.Warn("plugin script list changed, restart to load it")
	}

	n, err := h.manager.Reactivate(ctx, cfg.Plugins.Enabled)
	h.logger.Info("plugin host reloaded",
		zap.Int("activated", n),
		zap.Strings("enabled", cfg.Plugins.Enabled))
	return n, err
}

// Shutdown deactivates every plugin and tears down the container
// services. It is safe to call more than once.
func (h *Host) Shutdown(ctx context.Context) error {
	if !h.shutDown.CompareAndSwap(false, true) {
		return nil
	}
	h.running.Store(false)

	err := h.manager.Cleanup(ctx)
	h.container.Cleanup(ctx)
	_ = h.logger.Sync()
	return err
}
