package core

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fluxrag/fluxrag/internal/fluxcapacitor"
	"github.com/fluxrag/fluxrag/internal/morpheus"
	"github.com/fluxrag/fluxrag/internal/pluginloader"
	"github.com/fluxrag/fluxrag/internal/registry"
	"github.com/fluxrag/fluxrag/internal/spock"
)

func testConfig(t *testing.T) *spock.Config {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	cfg, err := spock.New()
	require.NoError(t, err)
	return cfg
}

func TestNew_BuildsWithInMemoryDefaults(t *testing.T) {
	cfg := testConfig(t)
	c, err := New(Options{Config: cfg})
	require.NoError(t, err)
	require.NotNil(t, c.Dispatcher)
	require.NotNil(t, c.Sync)
	require.NotNil(t, c.Ingest)
	require.NotNil(t, c.Retrieve)
}

func TestDiscoverAndActivate_EmptyPluginDirIsNotAnError(t *testing.T) {
	cfg := testConfig(t)
	c, err := New(Options{Config: cfg})
	require.NoError(t, err)
	require.NoError(t, c.DiscoverAndActivate(context.Background()))
}

type fakeFactoryEmbedder struct{}

func (fakeFactoryEmbedder) Size() int { return 4 }
func (fakeFactoryEmbedder) GetEmbedding(text string, normalize bool) (registry.Vector, error) {
	return registry.Vector{0, 0, 0, 0}, nil
}

func TestRequireEmbedder_FailsWithoutRegistration(t *testing.T) {
	cfg := testConfig(t)
	c, err := New(Options{Config: cfg})
	require.NoError(t, err)
	_, err = c.RequireEmbedder()
	require.Error(t, err)
}

func TestRequireEmbedder_ResolvesSingleRegistration(t *testing.T) {
	cfg := testConfig(t)
	c, err := New(Options{Config: cfg})
	require.NoError(t, err)
	require.NoError(t, c.Embedders.Register("only", fakeFactoryEmbedder{}))

	e, err := c.RequireEmbedder()
	require.NoError(t, err)
	require.Equal(t, 4, e.Size())
}

func TestIntegration_PluginFactoryWiresHookIntoSyncEngine(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, os.MkdirAll(cfg.PluginDir, 0o755))

	c, err := New(Options{Config: cfg})
	require.NoError(t, err)

	factoryID := "core-test-echo-" + t.Name()
	require.NoError(t, pluginloader.RegisterFactory(factoryID, func() []pluginloader.Descriptor {
		return []pluginloader.Descriptor{{
			Name: "echo",
			Kind: pluginloader.KindHook,
			Hook: func(ctx *morpheus.Context, piped any) (any, error) { return piped, nil },
		}}
	}))

	require.NoError(t, c.DiscoverAndActivate(context.Background()))

	handles := c.Dispatcher.Handles("echo")
	require.Len(t, handles, 1)
	require.Equal(t, factoryID, handles[0].PluginID)
}

func TestSync_TaskTreeCompletesThroughCore(t *testing.T) {
	cfg := testConfig(t)
	c, err := New(Options{Config: cfg})
	require.NoError(t, err)

	c.Dispatcher.Register(morpheus.Hook{Name: "noop", PluginID: "demo", Fn: func(ctx *morpheus.Context, piped any) (any, error) {
		return nil, nil
	}})
	c.Dispatcher.Refresh()

	task, err := c.Sync.Enqueue("demo", "noop", nil)
	require.NoError(t, err)

	step, err := c.Sync.RunOnce()
	require.NoError(t, err)
	require.Equal(t, fluxcapacitor.StepProgressed, step)

	done, err := c.Sync.IsTreeDone(task.ID)
	require.NoError(t, err)
	require.True(t, done)
}
