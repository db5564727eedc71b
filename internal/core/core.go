// Package core is the top-level facade a host process constructs (spec.md
// §1 supplemented feature, grounded on
// original_source/src/rag2f/core/rag2f.py's RAG2F class): it wires the
// plugin loader, hook dispatcher, both task engines, the repository/embedder
// registries, and the two coordination façades into one object.
package core

import (
	"context"

	"github.com/fluxrag/fluxrag/internal/agent"
	"github.com/fluxrag/fluxrag/internal/facade"
	"github.com/fluxrag/fluxrag/internal/fluxcapacitor"
	fluxerrors "github.com/fluxrag/fluxrag/internal/errors"
	"github.com/fluxrag/fluxrag/internal/morpheus"
	"github.com/fluxrag/fluxrag/internal/pluginloader"
	"github.com/fluxrag/fluxrag/internal/registry"
	"github.com/fluxrag/fluxrag/internal/spock"
	"github.com/fluxrag/fluxrag/internal/xfiles"
)

// Core wires every component together, the Go analogue of rag2f.py's RAG2F
// (named by what it does rather than kept under the source's nickname, per
// the aliases rag2f.py itself exposes: config_manager, input_manager,
// retrieve_manager, plugin_manager, embedder_manager, repository_manager).
type Core struct {
	Config     *spock.Config
	Dispatcher *morpheus.Dispatcher
	Loader     *pluginloader.Loader
	Sync       *fluxcapacitor.Engine
	Embedders  *registry.EmbedderRegistry
	Repos      *xfiles.Registry
	Ingest     *facade.Ingest
	Retrieve   *facade.Retrieve
}

// Options configures New; all fields are optional and fall back to
// in-memory defaults suited for tests and single-process deployments.
type Options struct {
	Config       *spock.Config
	TaskStore    fluxcapacitor.Store
	TaskQueue    fluxcapacitor.Queue
	Capabilities xfiles.Capabilities
	Allowlists   xfiles.Allowlists
}

// New builds a Core. Plugin discovery is a separate step (DiscoverAndActivate)
// since it touches the filesystem and may install dependencies, mirroring
// rag2f.py's RAG2F.create() splitting _initialize from the async
// find_plugins() call.
func New(opts Options) (*Core, error) {
	cfg := opts.Config
	if cfg == nil {
		var err error
		cfg, err = spock.New()
		if err != nil {
			return nil, err
		}
	}

	disp := morpheus.New()

	taskStore := opts.TaskStore
	if taskStore == nil {
		taskStore = fluxcapacitor.NewMemStore()
	}
	taskQueue := opts.TaskQueue
	if taskQueue == nil {
		taskQueue = fluxcapacitor.NewMemQueue()
	}

	loader := pluginloader.New(cfg.PluginDir, cfg.CacheDir)
	syncEngine := fluxcapacitor.New(taskStore, taskQueue, disp, nil)
	embedders := registry.NewEmbedderRegistry(cfg)
	repos := xfiles.NewRegistry()

	c := &Core{
		Config:     cfg,
		Dispatcher: disp,
		Loader:     loader,
		Sync:       syncEngine,
		Embedders:  embedders,
		Repos:      repos,
		Ingest:     facade.NewIngest(disp, nil),
		Retrieve:   facade.NewRetrieve(disp, nil, opts.Capabilities, opts.Allowlists),
	}
	return c, nil
}

// DiscoverAndActivate discovers every plugin (filesystem + installed
// factories) and activates each one, registering its hooks into the
// dispatcher and refreshing the pipeline ordering once at the end (rag2f.py
// "await instance.morpheus.find_plugins()").
func (c *Core) DiscoverAndActivate(ctx context.Context) error {
	if err := c.Loader.Discover(); err != nil {
		return err
	}
	for _, p := range c.Loader.List() {
		if err := c.Loader.Activate(ctx, p.ID, c); err != nil {
			return err
		}
		for _, h := range p.Hooks {
			c.Dispatcher.Register(h)
		}
	}
	c.Dispatcher.Refresh()
	return nil
}

// DeactivatePlugin runs a plugin's deactivation sequence and drops its
// hooks from the dispatcher.
func (c *Core) DeactivatePlugin(id string) error {
	if err := c.Loader.Deactivate(id, c); err != nil {
		return err
	}
	c.Dispatcher.Unregister(id)
	c.Dispatcher.Refresh()
	return nil
}

// NewAsyncWorker builds a worker bound to this core's dispatcher for
// pluginID, backed by the given store/queue (spec.md §4.6).
func (c *Core) NewAsyncWorker(pluginID string, store agent.Store, queue agent.Queue) *agent.Worker {
	return agent.NewWorker(pluginID, store, queue, c.Dispatcher, c)
}

// RequireEmbedder resolves the default embedder or returns a system error
// if none is configured (optimus_prime.py's get_default, surfaced as a Go
// error since "no embedder available" is an operator misconfiguration, not
// an expected per-call state).
func (c *Core) RequireEmbedder() (registry.Embedder, error) {
	e, err := c.Embedders.GetDefault()
	if err != nil {
		return nil, fluxerrors.NewPluginNotFound("embedder_default")
	}
	return e, nil
}
