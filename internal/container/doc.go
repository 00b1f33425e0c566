// Package container provides the service container used to wire the runtime.
//
// A Container holds named factories and builds instances on first request.
// Services are either singletons (one instance until Reset or Clear) or
// transients (a fresh instance on every resolution).
//
//	c := container.New(container.WithLogger(logger))
//	c.RegisterSingleton("bus", func(container.Resolver) (any, error) {
//	    return event.NewBus(), nil
//	})
//	c.RegisterSingleton("plugins", func(r container.Resolver) (any, error) {
//	    bus, err := container.Get[event.Bus](r, "bus")
//	    if err != nil {
//	        return nil, err
//	    }
//	    return plugin.NewManager(bus), nil
//	}, "bus")
//
// # Cycle Detection
//
// Factories are opaque, so the dependency list passed at registration is
// metadata only. Cycles are detected lazily: every factory receives a Resolver
// bound to the chain of names currently being built, and resolving a name that
// is already on that chain fails with a *CircularDependencyError naming the
// full cycle (for example "A -> B -> A"). Because the chain travels with the
// call rather than living on the container, independent goroutines resolving
// the same services never see each other's chains.
//
// Factories must resolve their dependencies through the Resolver they are
// given. A factory that calls Resolve on a captured *Container starts a new
// chain. The container still notices when such a call asks for a singleton
// whose own build is waiting further down the stack and fails with a
// *CircularDependencyError instead of blocking, but a factory that resolves
// itself through the container cannot be told apart from a concurrent caller
// and waits forever. Concurrent callers of a singleton that is being built
// wait for that build and share its instance.
//
// # Cleanup
//
// Cleanup runs the teardown hook of every instantiated singleton that
// implements Cleaner or io.Closer. Failures are logged, never returned, so one
// failing service cannot keep the others from cleaning up.
package container
