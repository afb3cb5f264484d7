//go:build linux || darwin

package registry

import "plugin"

// goPlugin adapts *plugin.Plugin to the Plugin interface.
type goPlugin struct {
	p *plugin.Plugin
}

func (g goPlugin) Lookup(symName string) (any, error) {
	sym, err := g.p.Lookup(symName)
	if err != nil {
		return nil, err
	}
	return sym, nil
}

// stdPluginLoader opens shared objects via the standard library's plugin
// package — the ecosystem's dlopen/dlsym equivalent. No third-party
// package in the retrieval pack provides shared-object loading, so this is
// the one component that intentionally stays on the standard library; see
// SPEC_FULL.md §1.2 and DESIGN.md.
type stdPluginLoader struct{}

// DefaultLoader returns the production Loader backed by plugin.Open.
func DefaultLoader() Loader {
	return stdPluginLoader{}
}

func (stdPluginLoader) Open(path string) (Plugin, error) {
	p, err := plugin.Open(path)
	if err != nil {
		return nil, err
	}
	return goPlugin{p: p}, nil
}
