// Package pluginloader is the Plugin Loader (spec.md §4.3): discover
// plugin directories, collect their decorated hooks and lifecycle
// overrides, and drive activation/deactivation.
//
// Grounded on original_source/src/rag2f/core/morpheus/plugin.py. Go has no
// dynamic import, so the "decorator collection" and "import-cache
// idempotence" machinery (Design Notes §9) is replaced with explicit
// registration: a plugin is a Go package whose init() calls
// pluginloader.RegisterFactory(id, factory); factory() returns the list of
// hook/lifecycle descriptors the original collected by walking module
// attributes. Filesystem discovery still exists, grounded on the
// teacher's pkg/plugins/manager.go discoverPlugins/loadManifest, to
// resolve each plugin's directory for manifest.Resolve.
package pluginloader

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"reflect"
	"sync"

	fluxerrors "github.com/fluxrag/fluxrag/internal/errors"
	"github.com/fluxrag/fluxrag/internal/installer"
	"github.com/fluxrag/fluxrag/internal/manifest"
	"github.com/fluxrag/fluxrag/internal/morpheus"
)

// Kind distinguishes a plugin-supplied hook from a lifecycle override, the
// Go analogue of the original's per-attribute "kind" tag.
type Kind string

const (
	KindHook         Kind = "hook"
	KindActivated    Kind = "activated"
	KindDeactivated  Kind = "deactivated"
)

// LifecycleFunc is the signature for "activated"/"deactivated" overrides
// (spec.md §3 "overrides: {lifecycle_name → override_fn}").
type LifecycleFunc func(ctx *PluginContext) error

// Descriptor is one record returned by a plugin's Factory (Design Notes
// §9: "the plugin exposes an init function that returns a list of
// {name, priority, function, kind} records").
type Descriptor struct {
	Name      string
	Priority  int
	Hook      morpheus.HookFunc
	Lifecycle LifecycleFunc
	Kind      Kind
}

// Factory is the explicit-registration replacement for dynamic module
// import (Design Notes §9).
type Factory func() []Descriptor

// PluginContext is passed to lifecycle overrides.
type PluginContext struct {
	PluginID string
	Host     any
}

// Plugin is the plugin record (spec.md §3 "Plugin record").
type Plugin struct {
	ID       string
	Path     string // "" for a factory-only (installed) plugin with no discovered directory
	Manifest manifest.Manifest
	Hooks    []morpheus.Hook
	Overrides map[Kind]LifecycleFunc
	Active   bool

	factory Factory
}

// --- process-wide factory registry (the Go analogue of "installed
// entry points"); filesystem-discovered plugins never appear here. ---

type registration struct {
	factory Factory
}

var (
	factoryMu sync.RWMutex
	factories = map[string]*registration{}
)

// RegisterFactory registers an installed plugin's factory under id.
// Re-registering the same factory is a no-op with a warning (spec.md §8
// scenario 6); registering a different factory under a used id fails.
// This is also the idempotence mechanism standing in for the original's
// "module executed exactly once" guarantee (spec.md §8): a plugin package
// calls this once from its own init().
func RegisterFactory(id string, factory Factory) error {
	factoryMu.Lock()
	defer factoryMu.Unlock()

	existing, ok := factories[id]
	if !ok {
		factories[id] = &registration{factory: factory}
		return nil
	}
	if sameFactory(existing.factory, factory) {
		log.Printf("pluginloader: factory %q already registered, skipping", id)
		return nil
	}
	return fluxerrors.NewPluginLoadFailed(id, "a different factory is already registered under this id", nil)
}

func sameFactory(a, b Factory) bool {
	return reflect.ValueOf(a).Pointer() == reflect.ValueOf(b).Pointer()
}

// installedIDs returns a snapshot of registered factory ids.
func installedIDs() map[string]Factory {
	factoryMu.RLock()
	defer factoryMu.RUnlock()
	out := make(map[string]Factory, len(factories))
	for id, r := range factories {
		out[id] = r.factory
	}
	return out
}

// resetFactoriesForTest clears the process-wide registry; used only by
// this package's own tests, which must not leak state across cases.
func resetFactoriesForTest() {
	factoryMu.Lock()
	defer factoryMu.Unlock()
	factories = map[string]*registration{}
}

// Loader discovers plugins from the filesystem and the factory registry
// and manages their activation lifecycle.
type Loader struct {
	PluginDir       string
	PluginCacheRoot string
	Installer       *installer.Manager
	DistLookup      manifest.DistLookup

	mu      sync.RWMutex
	plugins map[string]*Plugin
}

// New returns a Loader rooted at pluginDir.
func New(pluginDir, pluginCacheRoot string) *Loader {
	return &Loader{
		PluginDir:       pluginDir,
		PluginCacheRoot: pluginCacheRoot,
		Installer:       installer.New(),
		plugins:         map[string]*Plugin{},
	}
}

// Discover finds plugins from both sources with the precedence spec.md
// §4.3 mandates: "installed-package entry points win over filesystem
// directories. Duplicate ids from the lower-priority source are dropped
// with a log."
func (l *Loader) Discover() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.plugins = map[string]*Plugin{}

	for id, factory := range installedIDs() {
		l.plugins[id] = &Plugin{ID: id, factory: factory, Overrides: map[Kind]LifecycleFunc{}}
	}

	if l.PluginDir != "" {
		entries, err := os.ReadDir(l.PluginDir)
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return fluxerrors.NewPluginLoadFailed("", "discover plugin directory", err)
		}
		for _, entry := range entries {
			if !entry.IsDir() {
				continue
			}
			id := entry.Name()
			if _, exists := l.plugins[id]; exists {
				log.Printf("pluginloader: filesystem plugin %q shadowed by an installed factory, skipping", id)
				continue
			}
			l.plugins[id] = &Plugin{ID: id, Path: filepath.Join(l.PluginDir, id), Overrides: map[Kind]LifecycleFunc{}}
		}
	}
	return nil
}

// Get returns a discovered plugin by id.
func (l *Loader) Get(id string) (*Plugin, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	p, ok := l.plugins[id]
	return p, ok
}

// List returns every discovered plugin.
func (l *Loader) List() []*Plugin {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]*Plugin, 0, len(l.plugins))
	for _, p := range l.plugins {
		out = append(out, p)
	}
	return out
}

// Activate runs spec.md §4.3's activation sequence: resolve the manifest
// (filesystem plugins only) → call the installer → load decorated items →
// assign plugin_id to each hook → run the "activated" override if present
// → mark active. The installer is called with no build manifest and no
// requirements source, so no dependency is installed.
func (l *Loader) Activate(ctx context.Context, id string, host any) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	p, ok := l.plugins[id]
	if !ok {
		return fluxerrors.NewPluginNotFound(id)
	}
	if p.Active {
		return nil
	}

	if p.Path != "" {
		m, err := manifest.Resolve(p.Path, l.PluginCacheRoot, l.DistLookup)
		if err != nil {
			return fluxerrors.NewPluginLoadFailed(id, "manifest resolution failed", err)
		}
		p.Manifest = m

		if l.Installer != nil {
			if err := l.Installer.Install(ctx, id, nil, nil); err != nil {
				return fluxerrors.NewPluginLoadFailed(id, "dependency installation failed", err)
			}
		}
	}

	if p.factory != nil {
		for _, d := range p.factory() {
			switch d.Kind {
			case KindHook:
				p.Hooks = append(p.Hooks, morpheus.Hook{
					Name:     d.Name,
					Fn:       d.Hook,
					Priority: priorityOrDefault(d.Priority),
					PluginID: id,
				})
			case KindActivated:
				p.Overrides[KindActivated] = d.Lifecycle
			case KindDeactivated:
				p.Overrides[KindDeactivated] = d.Lifecycle
			}
		}
	}

	if override, ok := p.Overrides[KindActivated]; ok && override != nil {
		if err := override(&PluginContext{PluginID: id, Host: host}); err != nil {
			return fluxerrors.NewPluginLoadFailed(id, "activated override failed", err)
		}
	}

	p.Active = true
	return nil
}

func priorityOrDefault(p int) int {
	if p == 0 {
		return 1
	}
	return p
}

// Deactivate runs spec.md §4.3's deactivation sequence: run the
// "deactivated" override if present → clear hook and override lists →
// mark inactive. (There is no import cache to unwind in a compiled
// target, per Design Notes §9.)
func (l *Loader) Deactivate(id string, host any) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	p, ok := l.plugins[id]
	if !ok {
		return fluxerrors.NewPluginNotFound(id)
	}
	if !p.Active {
		return nil
	}

	if override, ok := p.Overrides[KindDeactivated]; ok && override != nil {
		if err := override(&PluginContext{PluginID: id, Host: host}); err != nil {
			return fluxerrors.NewPluginLoadFailed(id, "deactivated override failed", err)
		}
	}

	p.Hooks = nil
	p.Overrides = map[Kind]LifecycleFunc{}
	p.Active = false
	return nil
}
