// Package morpheus is the Hook Registry / Dispatcher (spec.md §4.4): it
// indexes hooks by name across plugins, orders them by priority, executes
// pipelines with value piping and per-hook failure isolation.
//
// Grounded on original_source/src/rag2f/core/morpheus/morpheus.go's
// execute_hook/refresh_caches, with the two Design Notes §9 substitutions
// this host language requires: no dynamic-signature inspection (every hook
// accepts one Context argument) and no stack-walking plugin-of-caller
// resolution (the Context carries the executing plugin id explicitly).
package morpheus

import (
	"encoding/json"
	"log"
	"sort"
	"sync"

	fluxerrors "github.com/fluxrag/fluxrag/internal/errors"
)

// Context is threaded through every hook call. It replaces both the
// dynamic-signature "pass only recognized kwargs" trick and the
// stack-walking plugin-of-caller lookup (Design Notes §9): a hook reads
// ctx.PluginID to learn who it's running as, and the dispatcher reads it
// back via CallerPluginID.
type Context struct {
	// PluginID is the id of the plugin whose hook is currently executing.
	// Set by the dispatcher immediately before each handle invocation.
	PluginID string
	// Host carries caller-supplied state (e.g. a *spock.Config, task
	// engine handles); hooks type-assert what they need out of it.
	Host any
	// Extra lets hook implementations stash request-scoped values without
	// widening this struct.
	Extra map[string]any
}

// CallerPluginID resolves the plugin id of the currently executing hook
// (spec.md §4.4 "plugin-of-caller resolution"). Unlike the original's
// stack walk, this is an O(1) read off the explicit context; failure to
// provide one is the direct analogue of "no frame matches".
func CallerPluginID(ctx *Context) (string, error) {
	if ctx == nil {
		return "", fluxerrors.NewUnknownCallerContext()
	}
	if ctx.PluginID == "" {
		return "", fluxerrors.NewUnknownCallerContext()
	}
	return ctx.PluginID, nil
}

// HookFunc is the single well-defined signature every hook accepts
// (Design Notes §9: "a single well-defined argument struct that every hook
// accepts"). piped is nil for no-arg pipelines. A non-nil return value
// becomes the next piped value; nil means "unchanged, keep the previous".
type HookFunc func(ctx *Context, piped any) (any, error)

// Hook is the registered handle (spec.md §3 "Hook handle").
type Hook struct {
	Name     string
	Fn       HookFunc
	Priority int
	PluginID string
	// seq preserves registration order for stable sort on priority ties.
	seq int
}

// Cloner lets a piped value define its own copy semantics instead of
// relying on the JSON-roundtrip fallback (spec.md §5 "Hook pipelines
// deep-copy piped values per handle").
type Cloner interface {
	Clone() any
}

// RefreshCallback is invoked after every Refresh. It may run synchronously
// or be adapted from an async source; spec.md §4.4 requires both kinds of
// callback to be accepted and awaited.
type RefreshCallback func()

// Dispatcher is Morpheus: the hook index plus the pipeline executor.
type Dispatcher struct {
	mu        sync.RWMutex
	hooks     map[string][]Hook
	nextSeq   int
	callbacks []RefreshCallback
}

// New returns an empty Dispatcher.
func New() *Dispatcher {
	return &Dispatcher{hooks: map[string][]Hook{}}
}

// OnRefresh subscribes a callback invoked after every Refresh completes.
func (d *Dispatcher) OnRefresh(cb RefreshCallback) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.callbacks = append(d.callbacks, cb)
}

// Register adds one hook handle. Priority ties are broken by registration
// order (spec.md §3 "ties resolve by insertion order").
func (d *Dispatcher) Register(h Hook) {
	d.mu.Lock()
	defer d.mu.Unlock()
	h.seq = d.nextSeq
	d.nextSeq++
	d.hooks[h.Name] = append(d.hooks[h.Name], h)
}

// Unregister drops every handle belonging to pluginID, across all hook
// names (used on plugin deactivation).
func (d *Dispatcher) Unregister(pluginID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for name, handles := range d.hooks {
		kept := handles[:0:0]
		for _, h := range handles {
			if h.PluginID != pluginID {
				kept = append(kept, h)
			}
		}
		d.hooks[name] = kept
	}
}

// Refresh rebuilds the priority ordering for every hook name (stable on
// ties) and then runs every subscribed callback (spec.md §4.4).
func (d *Dispatcher) Refresh() {
	d.mu.Lock()
	for name, handles := range d.hooks {
		cp := append([]Hook(nil), handles...)
		sort.SliceStable(cp, func(i, j int) bool {
			if cp[i].Priority != cp[j].Priority {
				return cp[i].Priority > cp[j].Priority
			}
			return cp[i].seq < cp[j].seq
		})
		d.hooks[name] = cp
	}
	callbacks := append([]RefreshCallback(nil), d.callbacks...)
	d.mu.Unlock()

	for _, cb := range callbacks {
		cb()
	}
}

// Handles returns a snapshot of the priority-ordered handles registered
// under name.
func (d *Dispatcher) Handles(name string) []Hook {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]Hook(nil), d.hooks[name]...)
}

// ExecuteHook runs the pipeline registered under name (spec.md §4.4
// "Invocation contract for execute_hook").
//
// No-arg form: pass piped == nil. Per-handle failure is caught, logged,
// and execution continues with the next handle; the return value is
// always nil in this form (no piped value to report).
//
// Piped form: pass a non-nil piped value. Each handle's return value
// (when non-nil) becomes the next piped value; a handle's panic/error is
// caught, logged, and the pipe value survives unchanged for the next
// handle.
func (d *Dispatcher) ExecuteHook(ctx *Context, name string, piped any) (any, error) {
	handles := d.Handles(name)

	if len(handles) == 0 {
		return piped, nil
	}

	if piped == nil {
		for _, h := range handles {
			invokeNoArg(ctx, h)
		}
		return nil, nil
	}

	current := piped
	for _, h := range handles {
		cloned := clone(current)
		next, err := invokePiped(ctx, h, cloned)
		if err != nil {
			log.Printf("morpheus: hook %q (plugin %q) failed: %v", h.Name, h.PluginID, err)
			continue
		}
		if next != nil {
			current = next
		}
	}
	return current, nil
}

func invokeNoArg(ctx *Context, h Hook) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("morpheus: hook %q (plugin %q) panicked: %v", h.Name, h.PluginID, r)
		}
	}()
	callCtx := withPluginID(ctx, h.PluginID)
	if _, err := h.Fn(callCtx, nil); err != nil {
		log.Printf("morpheus: hook %q (plugin %q) failed: %v", h.Name, h.PluginID, err)
	}
}

func invokePiped(ctx *Context, h Hook, piped any) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fluxerrors.NewHookExecutionError(h.Name, h.PluginID, asError(r))
		}
	}()
	callCtx := withPluginID(ctx, h.PluginID)
	result, err = h.Fn(callCtx, piped)
	if err != nil {
		return nil, fluxerrors.NewHookExecutionError(h.Name, h.PluginID, err)
	}
	return result, nil
}

func withPluginID(ctx *Context, pluginID string) *Context {
	if ctx == nil {
		return &Context{PluginID: pluginID}
	}
	cp := *ctx
	cp.PluginID = pluginID
	return &cp
}

func asError(r any) error {
	if e, ok := r.(error); ok {
		return e
	}
	return &panicError{r}
}

type panicError struct{ v any }

func (p *panicError) Error() string { return "panic: " + jsonOrSprint(p.v) }

func jsonOrSprint(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "<unprintable>"
	}
	return string(b)
}

// clone deep-copies a piped value per handle (spec.md §5). Types opting
// into Cloner control their own copy; everything else falls back to a
// JSON roundtrip, which is sufficient for this system's piped values
// (always plain documents: maps/slices/structs of JSON-safe data).
func clone(v any) any {
	if v == nil {
		return nil
	}
	if c, ok := v.(Cloner); ok {
		return c.Clone()
	}
	b, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return v
	}
	return out
}
