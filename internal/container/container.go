package container

import (
	"context"
	"fmt"
	"io"
	"slices"
	"sort"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Lifetime controls how many instances a registration produces.
type Lifetime int

const (
	// Singleton registrations are built once and cached.
	Singleton Lifetime = iota

	// Transient registrations are built on every resolution.
	Transient
)

// String returns a human-readable lifetime name.
func (l Lifetime) String() string {
	switch l {
	case Singleton:
		return "singleton"
	case Transient:
		return "transient"
	default:
		return "unknown"
	}
}

// Resolver resolves services by name.
// Factories receive a Resolver bound to their construction chain.
type Resolver interface {
	Resolve(name string) (any, error)
}

// Factory builds a service instance. Dependencies must be resolved through
// r, never through a captured *Container.
type Factory func(r Resolver) (any, error)

// Cleaner is implemented by services that need teardown at shutdown.
type Cleaner interface {
	Cleanup(ctx context.Context) error
}

// RegistrationInfo describes a registration for introspection.
type RegistrationInfo struct {
	Name         string
	Lifetime     Lifetime
	Instantiated bool
	Dependencies []string
}

type registration struct {
	name     string
	factory  Factory
	lifetime Lifetime
	deps     []string

	// mu guards the cache and the in-flight build.
	mu           sync.Mutex
	instance     any
	instantiated bool
	building     chan struct{}
}

func (r *registration) cached() (any, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.instance, r.instantiated
}

// Container is a named service registry.
// It is safe for concurrent use.
type Container struct {
	mu       sync.RWMutex
	services map[string]*registration
	logger   *zap.Logger

	// roots lists singletons being built by Container.Resolve, in start order.
	rootsMu sync.Mutex
	roots   []string
}

// Option configures a Container.
type Option func(*Container)

// WithLogger sets the container logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Container) {
		if l != nil {
			c.logger = l
		}
	}
}

// New creates an empty container.
func New(opts ...Option) *Container {
	c := &Container{
		services: make(map[string]*registration),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RegisterSingleton registers a factory whose instance is built once.
// An existing registration under the same name is replaced.
func (c *Container) RegisterSingleton(name string, f Factory, deps ...string) error {
	return c.register(name, f, Singleton, deps)
}

// RegisterTransient registers a factory that is invoked on every resolution.
// An existing registration under the same name is replaced.
func (c *Container) RegisterTransient(name string, f Factory, deps ...string) error {
	return c.register(name, f, Transient, deps)
}

func (c *Container) register(name string, f Factory, lifetime Lifetime, deps []string) error {
	if name == "" {
		return ErrEmptyName
	}
	if f == nil {
		return fmt.Errorf("service %q: %w", name, ErrNilFactory)
	}

	reg := &registration{
		name:     name,
		factory:  f,
		lifetime: lifetime,
		deps:     slices.Clone(deps),
	}

	c.mu.Lock()
	_, exists := c.services[name]
	c.services[name] = reg
	c.mu.Unlock()

	if exists {
		c.logger.Warn("overwriting service registration",
			zap.String("service", name),
			zap.Stringer("lifetime", lifetime))
	}
	return nil
}

// Resolve returns the instance registered under name, building it if needed.
func (c *Container) Resolve(name string) (any, error) {
	return c.resolve(name, nil)
}

// Has reports whether name is registered.
func (c *Container) Has(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.services[name]
	return ok
}

// Reset drops cached singleton instances but keeps every registration.
func (c *Container) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for name, reg := range c.services {
		c.services[name] = &registration{
			name:     reg.name,
			factory:  reg.factory,
			lifetime: reg.lifetime,
			deps:     reg.deps,
		}
	}
}

// Clear removes all registrations.
func (c *Container) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.services = make(map[string]*registration)
}

// Registrations returns a snapshot of all registrations sorted by name.
func (c *Container) Registrations() []RegistrationInfo {
	c.mu.RLock()
	regs := make([]*registration, 0, len(c.services))
	for _, reg := range c.services {
		regs = append(regs, reg)
	}
	c.mu.RUnlock()

	infos := make([]RegistrationInfo, 0, len(regs))
	for _, reg := range regs {
		_, instantiated := reg.cached()
		infos = append(infos, RegistrationInfo{
			Name:         reg.name,
			Lifetime:     reg.lifetime,
			Instantiated: instantiated,
			Dependencies: slices.Clone(reg.deps),
		})
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Name < infos[j].Name
	})
	return infos
}

// Cleanup tears down every instantiated singleton that implements Cleaner or
// io.Closer. Hooks run concurrently and Cleanup waits for all of them.
// Individual failures are logged and do not stop the others.
func (c *Container) Cleanup(ctx context.Context) {
	c.mu.RLock()
	regs := make([]*registration, 0, len(c.services))
	for _, reg := range c.services {
		if reg.lifetime == Singleton {
			regs = append(regs, reg)
		}
	}
	c.mu.RUnlock()

	var g errgroup.Group
	for _, reg := range regs {
		instance, ok := reg.cached()
		if !ok {
			continue
		}
		name := reg.name
		g.Go(func() error {
			if err := cleanupInstance(ctx, instance); err != nil {
				c.logger.Error("service cleanup failed",
					zap.String("service", name),
					zap.Error(err))
			}
			return nil
		})
	}
	_ = g.Wait()
}

func cleanupInstance(ctx context.Context, instance any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("cleanup panic: %v", r)
		}
	}()

	switch v := instance.(type) {
	case Cleaner:
		return v.Cleanup(ctx)
	case io.Closer:
		return v.Close()
	default:
		return nil
	}
}

// resolve builds name on behalf of the chain in path.
func (c *Container) resolve(name string, path []string) (any, error) {
	if slices.Contains(path, name) {
		cycle := append(slices.Clone(path), name)
		return nil, &CircularDependencyError{Path: cycle}
	}

	c.mu.RLock()
	reg, ok := c.services[name]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrServiceNotRegistered, name)
	}

	chain := &chainResolver{
		container: c,
		path:      append(slices.Clone(path), name),
	}

	if reg.lifetime == Transient {
		return reg.build(chain)
	}

	for {
		reg.mu.Lock()
		if reg.instantiated {
			instance := reg.instance
			reg.mu.Unlock()
			return instance, nil
		}
		done := reg.building
		if done == nil {
			reg.building = make(chan struct{})
			reg.mu.Unlock()
			return c.buildSingleton(reg, chain, len(path) == 0)
		}
		reg.mu.Unlock()

		if len(path) == 0 {
			if cycle := c.reentrantCycle(name); cycle != nil {
				return nil, &CircularDependencyError{Path: cycle}
			}
		}
		<-done
	}
}

// buildSingleton runs the factory for a registration whose build slot the
// caller has claimed. The slot is released even if the factory panics.
func (c *Container) buildSingleton(reg *registration, chain *chainResolver, root bool) (instance any, err error) {
	if root {
		c.rootsMu.Lock()
		c.roots = append(c.roots, reg.name)
		c.rootsMu.Unlock()
	}

	completed := false
	defer func() {
		if root {
			c.rootsMu.Lock()
			if i := slices.Index(c.roots, reg.name); i >= 0 {
				c.roots = slices.Delete(c.roots, i, i+1)
			}
			c.rootsMu.Unlock()
		}

		reg.mu.Lock()
		if completed && err == nil {
			reg.instance = instance
			reg.instantiated = true
		}
		done := reg.building
		reg.building = nil
		reg.mu.Unlock()
		close(done)
	}()

	instance, err = reg.build(chain)
	completed = true
	return instance, err
}

// reentrantCycle reports a cycle for a Container.Resolve of name while name
// is already being built by Container.Resolve and a later root build is
// still in flight. That only happens when a factory resolves through the
// container itself instead of its Resolver.
func (c *Container) reentrantCycle(name string) []string {
	c.rootsMu.Lock()
	defer c.rootsMu.Unlock()

	i := slices.Index(c.roots, name)
	if i < 0 || i == len(c.roots)-1 {
		return nil
	}
	cycle := slices.Clone(c.roots[i:])
	return append(cycle, name)
}

func (r *registration) build(chain *chainResolver) (any, error) {
	instance, err := r.factory(chain)
	if err != nil {
		return nil, fmt.Errorf("building service %q: %w", r.name, err)
	}
	return instance, nil
}

// chainResolver is the Resolver handed to factories.
type chainResolver struct {
	container *Container
	path      []string
}

// Resolve resolves name as a dependency of the current chain.
func (r *chainResolver) Resolve(name string) (any, error) {
	return r.container.resolve(name, r.path)
}

// Get resolves name and asserts its type.
func Get[T any](r Resolver, name string) (T, error) {
	var zero T
	v, err := r.Resolve(name)
	if err != nil {
		return zero, err
	}
	t, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("%w: %q is %T", ErrServiceTypeMismatch, name, v)
	}
	return t, nil
}

// MustGet is like Get but panics on failure.
// Intended for bootstrap code where a wiring error is fatal.
func MustGet[T any](r Resolver, name string) T {
	t, err := Get[T](r, name)
	if err != nil {
		panic(err)
	}
	return t
}
