package facade

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fluxrag/fluxrag/internal/morpheus"
	"github.com/fluxrag/fluxrag/internal/result"
	"github.com/fluxrag/fluxrag/internal/xfiles"
)

func TestIngest_EmptyTextReturnsEmptyCode(t *testing.T) {
	ing := NewIngest(morpheus.New(), nil)
	env := ing.HandleTextForeground("   ")
	require.True(t, env.IsError())
	require.Equal(t, result.CodeEmpty, env.Detail.Code)
}

func TestIngest_NotHandledWhenNoHookProcesses(t *testing.T) {
	ing := NewIngest(morpheus.New(), nil)
	env := ing.HandleTextForeground("hello world")
	require.True(t, env.IsError())
	require.Equal(t, result.CodeNotHandled, env.Detail.Code)
}

func TestIngest_SuccessPathReturnsTrackID(t *testing.T) {
	disp := morpheus.New()
	disp.Register(morpheus.Hook{Name: "handle_text_foreground", PluginID: "demo", Fn: func(ctx *morpheus.Context, piped any) (any, error) {
		m := piped.(map[string]any)
		m["done"] = true
		return m, nil
	}})
	disp.Refresh()

	ing := NewIngest(disp, nil)
	env := ing.HandleTextForeground("hello world")
	require.True(t, env.IsOk())
	trackID, ok := env.Get("track_id")
	require.True(t, ok)
	require.NotEmpty(t, trackID)
}

func TestIngest_DuplicateShortCircuits(t *testing.T) {
	disp := morpheus.New()
	disp.Register(morpheus.Hook{Name: "check_duplicated_input_text", PluginID: "demo", Fn: func(ctx *morpheus.Context, piped any) (any, error) {
		m := piped.(map[string]any)
		m["duplicated"] = true
		return m, nil
	}})
	disp.Register(morpheus.Hook{Name: "handle_text_foreground", PluginID: "demo", Fn: func(ctx *morpheus.Context, piped any) (any, error) {
		t.Fatal("handle_text_foreground must not run once input is flagged duplicate")
		return nil, nil
	}})
	disp.Refresh()

	ing := NewIngest(disp, nil)
	env := ing.HandleTextForeground("repeat me")
	require.True(t, env.IsError())
	require.Equal(t, result.CodeDuplicate, env.Detail.Code)
}

func TestRetrieve_EmptyQueryReturnsEmptyCodeWithoutPanic(t *testing.T) {
	r := NewRetrieve(morpheus.New(), nil, xfiles.Capabilities{}, xfiles.Allowlists{})
	require.NotPanics(t, func() {
		env := r.ExecuteRetrieve("", 10, nil)
		require.True(t, env.IsError())
		require.Equal(t, result.CodeEmpty, env.Detail.Code)
	})
}

func TestRetrieve_InvalidSpecSurfacesAsInvalidSpecCode(t *testing.T) {
	r := NewRetrieve(morpheus.New(), nil, xfiles.Capabilities{}, xfiles.Allowlists{})
	spec := xfiles.QuerySpec{Where: &xfiles.FilterNode{Op: "eq", Args: []any{"a", 1}}}
	env := r.ExecuteRetrieve("hi", 10, &spec)
	require.True(t, env.IsError())
	require.Equal(t, result.CodeInvalidSpec, env.Detail.Code)
}

func TestRetrieve_SuccessCollectsItems(t *testing.T) {
	disp := morpheus.New()
	disp.Register(morpheus.Hook{Name: "indiana_jones_retrieve", PluginID: "demo", Fn: func(ctx *morpheus.Context, piped any) (any, error) {
		m := piped.(map[string]any)
		m["items"] = []any{"doc-1", "doc-2"}
		return m, nil
	}})
	disp.Refresh()

	r := NewRetrieve(disp, nil, xfiles.Capabilities{}, xfiles.Allowlists{})
	env := r.ExecuteRetrieve("hi", 10, nil)
	require.True(t, env.IsOk())
	items, _ := env.Get("items")
	require.Equal(t, []any{"doc-1", "doc-2"}, items)
}

func TestRetrieve_SearchDropsItemsInMinimalMode(t *testing.T) {
	disp := morpheus.New()
	disp.Register(morpheus.Hook{Name: "indiana_jones_retrieve", PluginID: "demo", Fn: func(ctx *morpheus.Context, piped any) (any, error) {
		m := piped.(map[string]any)
		m["items"] = []any{"doc-1"}
		return m, nil
	}})
	disp.Register(morpheus.Hook{Name: "indiana_jones_synthesize", PluginID: "demo", Fn: func(ctx *morpheus.Context, piped any) (any, error) {
		m := piped.(map[string]any)
		m["response"] = "answer"
		return m, nil
	}})
	disp.Refresh()

	r := NewRetrieve(disp, nil, xfiles.Capabilities{}, xfiles.Allowlists{})
	env := r.ExecuteSearch("hi", 10, ReturnModeMinimal)
	require.True(t, env.IsOk())
	_, hasItems := env.Get("items")
	require.False(t, hasItems)
	response, _ := env.Get("response")
	require.Equal(t, "answer", response)
}
