package pluginloader

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fluxrag/fluxrag/internal/morpheus"
)

func TestRegisterFactory_DuplicateSameFactoryIsNoOp(t *testing.T) {
	resetFactoriesForTest()
	defer resetFactoriesForTest()

	factory := func() []Descriptor { return nil }
	require.NoError(t, RegisterFactory("mock", factory))
	require.NoError(t, RegisterFactory("mock", factory))
}

func TestRegisterFactory_DuplicateDifferentFactoryFails(t *testing.T) {
	resetFactoriesForTest()
	defer resetFactoriesForTest()

	require.NoError(t, RegisterFactory("mock", func() []Descriptor { return nil }))
	err := RegisterFactory("mock", func() []Descriptor { return nil })
	require.Error(t, err)
}

func TestDiscover_InstalledFactoryWinsOverFilesystem(t *testing.T) {
	resetFactoriesForTest()
	defer resetFactoriesForTest()

	dir := t.TempDir()
	require.NoError(t, mkdirPlugin(dir, "demo"))

	require.NoError(t, RegisterFactory("demo", func() []Descriptor { return nil }))

	l := New(dir, "")
	require.NoError(t, l.Discover())

	p, ok := l.Get("demo")
	require.True(t, ok)
	require.Empty(t, p.Path, "installed factory must win over the filesystem directory")
}

func TestActivate_AssignsPluginIDAndRunsActivatedOverride(t *testing.T) {
	resetFactoriesForTest()
	defer resetFactoriesForTest()

	var activatedCalled bool
	factory := func() []Descriptor {
		return []Descriptor{
			{
				Name:     "greet",
				Priority: 5,
				Kind:     KindHook,
				Hook: func(ctx *morpheus.Context, piped any) (any, error) {
					return piped, nil
				},
			},
			{
				Kind: KindActivated,
				Lifecycle: func(ctx *PluginContext) error {
					activatedCalled = true
					return nil
				},
			},
		}
	}
	require.NoError(t, RegisterFactory("demo", factory))

	l := New("", "")
	require.NoError(t, l.Discover())
	require.NoError(t, l.Activate(context.Background(), "demo", nil))

	p, ok := l.Get("demo")
	require.True(t, ok)
	require.True(t, p.Active)
	require.True(t, activatedCalled)
	require.Len(t, p.Hooks, 1)
	require.Equal(t, "demo", p.Hooks[0].PluginID)
	require.Equal(t, 5, p.Hooks[0].Priority)
}

func TestDeactivate_ClearsHooksAndRunsOverride(t *testing.T) {
	resetFactoriesForTest()
	defer resetFactoriesForTest()

	var deactivatedCalled bool
	factory := func() []Descriptor {
		return []Descriptor{
			{Name: "greet", Kind: KindHook, Hook: func(ctx *morpheus.Context, piped any) (any, error) { return piped, nil }},
			{Kind: KindDeactivated, Lifecycle: func(ctx *PluginContext) error { deactivatedCalled = true; return nil }},
		}
	}
	require.NoError(t, RegisterFactory("demo", factory))

	l := New("", "")
	require.NoError(t, l.Discover())
	require.NoError(t, l.Activate(context.Background(), "demo", nil))
	require.NoError(t, l.Deactivate("demo", nil))

	p, _ := l.Get("demo")
	require.False(t, p.Active)
	require.True(t, deactivatedCalled)
	require.Empty(t, p.Hooks)
}

func mkdirPlugin(root, id string) error {
	return os.MkdirAll(root+"/"+id, 0o755)
}
