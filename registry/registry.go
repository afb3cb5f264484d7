// Package registry implements the hot-swappable topic→decoder routing
// table: bind/rebind/unbind loaded shared-object (Go plugin) decoders
// behind a copy-on-write snapshot, so the decode workers' hot-path lookup
// (GetFn) never takes a lock.
package registry

import (
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
)

// Binding describes one topic's decoder source, for observability.
type Binding struct {
	Topic  string
	SOPath string
	Symbol string
}

// boundDecoder pairs a resolved decode function with its symbol name, so
// the hot-path lookup can hand the caller an observability tag without a
// second, mutex-guarded call into GetDecoderInfo.
type boundDecoder struct {
	fn     DecodeFunc
	symbol string
}

// router is the immutable snapshot readers load atomically. A router is
// never mutated after publication — Bind/Rebind/Unbind always build a new
// one from a shallow copy of the table.
type router struct {
	table map[string]boundDecoder
}

func (r *router) lookup(topic string) (DecodeFunc, string) {
	if r == nil {
		return nil, ""
	}
	bd, ok := r.table[topic]
	if !ok {
		return nil, ""
	}
	return bd.fn, bd.symbol
}

func (r *router) clone() *router {
	if r == nil {
		return &router{table: make(map[string]boundDecoder)}
	}
	cp := make(map[string]boundDecoder, len(r.table)+1)
	for k, v := range r.table {
		cp[k] = v
	}
	return &router{table: cp}
}

// Plugin is the subset of *plugin.Plugin the registry needs, extracted so
// tests can inject an in-memory fake instead of building a real .so
// fixture for every case.
type Plugin interface {
	Lookup(symName string) (any, error)
}

// Loader opens a shared object by path. The default implementation wraps
// Go's standard plugin package, the ecosystem's dlopen/dlsym equivalent.
type Loader interface {
	Open(path string) (Plugin, error)
}

type pluginHandle struct {
	handle Plugin
	soPath string
}

type bindingEntry struct {
	pluginIdx int
	info      Binding
}

// Registry implements the Decoder Registry component (C2). The zero value
// is not usable; construct with New.
type Registry struct {
	loader Loader

	mu             sync.Mutex
	loadedPlugins  []pluginHandle
	soToPlugin     map[string]int
	topicBindings  map[string]bindingEntry
	routerSnapshot atomic.Pointer[router]
}

// New constructs a Registry backed by the given Loader. Pass
// DefaultLoader() in production.
func New(loader Loader) *Registry {
	reg := &Registry{
		loader:        loader,
		soToPlugin:    make(map[string]int),
		topicBindings: make(map[string]bindingEntry),
	}
	reg.routerSnapshot.Store(&router{table: make(map[string]boundDecoder)})
	return reg
}

func (r *Registry) ensurePluginLoaded(soPath string) (int, error) {
	if idx, ok := r.soToPlugin[soPath]; ok {
		return idx, nil
	}

	p, err := r.loader.Open(soPath)
	if err != nil {
		return 0, errors.Wrapf(err, "registry: open %q", soPath)
	}

	abiSym, err := p.Lookup("KafkaxDecoderABIVersion")
	if err != nil {
		return 0, errors.Wrapf(err, "registry: symbol KafkaxDecoderABIVersion not found in %q", soPath)
	}
	abiFn, ok := abiSym.(func() int32)
	if !ok {
		if fnPtr, ok2 := abiSym.(*func() int32); ok2 {
			abiFn = *fnPtr
		} else {
			return 0, errors.Errorf("registry: KafkaxDecoderABIVersion in %q has the wrong type", soPath)
		}
	}
	if abiFn() != ABIVersion {
		return 0, errors.Errorf("registry: decoder ABI version mismatch in %q", soPath)
	}

	idx := len(r.loadedPlugins)
	r.loadedPlugins = append(r.loadedPlugins, pluginHandle{handle: p, soPath: soPath})
	r.soToPlugin[soPath] = idx
	return idx, nil
}

func (r *Registry) resolveSymbol(pluginIdx int, symbol string) (DecodeFunc, error) {
	if pluginIdx < 0 || pluginIdx >= len(r.loadedPlugins) {
		return nil, errors.New("registry: invalid plugin handle")
	}

	sym, err := r.loadedPlugins[pluginIdx].handle.Lookup(symbol)
	if err != nil {
		return nil, errors.Wrapf(err, "registry: decoder symbol %q not found", symbol)
	}

	fn, ok := sym.(func(*Envelope, *DecodeResult) int32)
	if !ok {
		if fnPtr, ok2 := sym.(*func(*Envelope, *DecodeResult) int32); ok2 {
			fn = *fnPtr
		} else {
			return nil, errors.Errorf("registry: decoder symbol %q has the wrong type", symbol)
		}
	}
	return fn, nil
}

// Bind registers topic to the decode function named symbol inside soPath.
// Already-loaded shared objects are reused by path. Bind fails if topic is
// already bound — use Rebind to overwrite an existing binding.
func (r *Registry) Bind(topic, soPath, symbol string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.topicBindings[topic]; ok {
		return errors.Errorf("registry: topic %q is already bound", topic)
	}
	return r.bindLocked(topic, soPath, symbol)
}

func (r *Registry) bindLocked(topic, soPath, symbol string) error {
	pluginIdx, err := r.ensurePluginLoaded(soPath)
	if err != nil {
		return err
	}

	fn, err := r.resolveSymbol(pluginIdx, symbol)
	if err != nil {
		return err
	}

	next := r.routerSnapshot.Load().clone()
	next.table[topic] = boundDecoder{fn: fn, symbol: symbol}
	r.routerSnapshot.Store(next)

	r.topicBindings[topic] = bindingEntry{
		pluginIdx: pluginIdx,
		info:      Binding{Topic: topic, SOPath: soPath, Symbol: symbol},
	}
	return nil
}

// Rebind overwrites any existing binding for topic, unlike Bind, which
// fails if topic is already bound. Rebinding to the same soPath is a
// no-op against the plugin cache — only the topic's router entry changes.
func (r *Registry) Rebind(topic, soPath, symbol string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.bindLocked(topic, soPath, symbol)
}

// Unbind removes topic's binding. The underlying shared object is never
// closed — Go's plugin package provides no unload primitive, which
// happens to be exactly the invariant the spec requires (a decode worker
// may still be executing code from it).
func (r *Registry) Unbind(topic string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	next := r.routerSnapshot.Load().clone()
	delete(next.table, topic)
	r.routerSnapshot.Store(next)

	delete(r.topicBindings, topic)
	return nil
}

// GetFn returns the currently published decoder for topic, or nil. This is
// the hot path and must be wait-free: a single atomic load, no mutex.
func (r *Registry) GetFn(topic string) DecodeFunc {
	fn, _ := r.routerSnapshot.Load().lookup(topic)
	return fn
}

// Lookup returns both the decoder function and its bound symbol name
// (for Event.Decoder observability tagging) in one wait-free call.
func (r *Registry) Lookup(topic string) (fn DecodeFunc, symbol string) {
	return r.routerSnapshot.Load().lookup(topic)
}

// GetDecoderInfo returns the (path, symbol) pair bound to topic, for
// observability.
func (r *Registry) GetDecoderInfo(topic string) (Binding, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.topicBindings[topic]
	if !ok {
		return Binding{}, false
	}
	return entry.info, true
}

// Close is a no-op kept for API symmetry with resources that do need
// teardown; Go plugins have no close/unload call, so there is nothing to
// release here beyond dropping Go-level references.
func (r *Registry) Close() error {
	return nil
}
