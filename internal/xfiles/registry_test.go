package xfiles

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fluxrag/fluxrag/internal/result"
)

type fakeRepo struct {
	id      string
	purpose string
}

func (f *fakeRepo) ID() string               { return f.id }
func (f *fakeRepo) Purpose() string          { return f.purpose }
func (f *fakeRepo) Capabilities() Capabilities { return Capabilities{} }

func TestRegistry_SameInstanceTwiceIsDuplicateNoOp(t *testing.T) {
	reg := NewRegistry()
	repo := &fakeRepo{id: "mock", purpose: "retrieval"}

	first := reg.Register(repo)
	require.True(t, first.IsOk())

	second := reg.Register(repo)
	require.True(t, second.IsOk())
	require.Equal(t, result.CodeDuplicate, second.Detail.Code)

	got, err := reg.Get("mock")
	require.NoError(t, err)
	require.Same(t, repo, got)
}

func TestRegistry_DifferentInstanceSameIDFails(t *testing.T) {
	reg := NewRegistry()
	require.True(t, reg.Register(&fakeRepo{id: "mock"}).IsOk())

	second := reg.Register(&fakeRepo{id: "mock"})
	require.True(t, second.IsError())
	require.Equal(t, result.CodeAlreadyExists, second.Detail.Code)
}

func TestRegistry_ByPurpose(t *testing.T) {
	reg := NewRegistry()
	require.True(t, reg.Register(&fakeRepo{id: "a", purpose: "retrieval"}).IsOk())
	require.True(t, reg.Register(&fakeRepo{id: "b", purpose: "ingest"}).IsOk())

	require.Len(t, reg.ByPurpose("retrieval"), 1)
}

func TestRegistry_GetUnknownFails(t *testing.T) {
	reg := NewRegistry()
	_, err := reg.Get("nope")
	require.Error(t, err)
}
