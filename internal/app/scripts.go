package app

import (
	"context"
	"errors"

	"github.com/dshills/pluginhost/internal/plugin/lua"
)

// scriptSet owns the Lua plugins loaded from the configured scripts.
type scriptSet struct {
	plugins []*lua.Plugin
}

// loadScripts loads every script. On failure the scripts loaded so far are
// closed.
func loadScripts(ctx context.Context, paths []string, opts ...lua.Option) (*scriptSet, error) {
	set := &scriptSet{}
	for _, path := range paths {
		p, err := lua.LoadFile(ctx, path, opts...)
		if err != nil {
			_ = set.Close()
			return nil, err
		}
		set.plugins = append(set.plugins, p)
	}
	return set, nil
}

// Close releases every Lua state.
func (s *scriptSet) Close() error {
	var errs []error
	for _, p := range s.plugins {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
