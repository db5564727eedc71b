package agent

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fluxrag/fluxrag/internal/morpheus"
)

func TestGetStatusView_LeafNodeProgress(t *testing.T) {
	store := NewMemStore()
	job, err := store.CreateJob(JobSpec{PluginID: "demo", Hook: "h", RootInputID: "root"})
	require.NoError(t, err)
	require.NoError(t, store.MarkStatus(job.JobID, StatusDone, ""))

	view, err := GetStatusView(store, job.JobID)
	require.NoError(t, err)
	require.Equal(t, StatusDone, view.Status)
	require.Equal(t, 1.0, view.Progress)
}

func TestGetStatusView_DoneParentWithPendingChildBecomesRunning(t *testing.T) {
	store := NewMemStore()
	parent, err := store.CreateJob(JobSpec{PluginID: "demo", Hook: "h", RootInputID: "root"})
	require.NoError(t, err)
	child, err := store.CreateJob(JobSpec{PluginID: "demo", Hook: "h2", RootInputID: "root", ParentJobID: parent.JobID})
	require.NoError(t, err)
	require.NoError(t, store.MarkStatus(parent.JobID, StatusDone, ""))
	_ = child

	view, err := GetStatusView(store, parent.JobID)
	require.NoError(t, err)
	require.Equal(t, StatusRunning, view.Status, "DONE parent with an undone descendant must aggregate to RUNNING")
}

func TestGetStatusView_AnyFailedChildFailsAggregate(t *testing.T) {
	store := NewMemStore()
	parent, err := store.CreateJob(JobSpec{PluginID: "demo", Hook: "h", RootInputID: "root"})
	require.NoError(t, err)
	child, err := store.CreateJob(JobSpec{PluginID: "demo", Hook: "h2", RootInputID: "root", ParentJobID: parent.JobID})
	require.NoError(t, err)
	require.NoError(t, store.MarkStatus(parent.JobID, StatusDone, ""))
	require.NoError(t, store.MarkStatus(child.JobID, StatusFailed, "boom"))

	view, err := GetStatusView(store, parent.JobID)
	require.NoError(t, err)
	require.Equal(t, StatusFailed, view.Status)
}

func TestGetStatusView_ProgressIsLeafRatio(t *testing.T) {
	store := NewMemStore()
	parent, err := store.CreateJob(JobSpec{PluginID: "demo", Hook: "h", RootInputID: "root"})
	require.NoError(t, err)
	c1, err := store.CreateJob(JobSpec{PluginID: "demo", Hook: "h2", RootInputID: "root", ParentJobID: parent.JobID})
	require.NoError(t, err)
	c2, err := store.CreateJob(JobSpec{PluginID: "demo", Hook: "h2", RootInputID: "root", ParentJobID: parent.JobID})
	require.NoError(t, err)
	require.NoError(t, store.MarkStatus(c1.JobID, StatusDone, ""))
	require.NoError(t, store.MarkStatus(c2.JobID, StatusRunning, ""))
	require.NoError(t, store.MarkStatus(parent.JobID, StatusDone, ""))

	view, err := GetStatusView(store, parent.JobID)
	require.NoError(t, err)
	require.Equal(t, 0.5, view.Progress)
}

func TestWorker_HandleMessage_EmitsChildrenViaContext(t *testing.T) {
	disp := morpheus.New()
	disp.Register(morpheus.Hook{Name: "split", PluginID: "demo", Fn: func(ctx *morpheus.Context, piped any) (any, error) {
		agentCtx := ctx.Extra["agent_context"].(*Context)
		agentCtx.EmitChild(ChildRequest{Hook: "embed"})
		agentCtx.EmitChild(ChildRequest{Hook: "embed"})
		return nil, nil
	}})
	disp.Refresh()

	store := NewMemStore()
	queue := NewMemQueue()
	w := NewWorker("demo", store, queue, disp, nil)

	require.NoError(t, queue.Enqueue(Message{PluginID: "demo", Hook: "split", RootInputID: "root"}))
	msg, err := queue.Dequeue("demo", time.Millisecond)
	require.NoError(t, err)
	require.NotNil(t, msg)

	w.handleMessage(*msg)

	// two children should now be queued for "demo"
	var seen int
	for {
		m, err := queue.Dequeue("demo", time.Millisecond)
		require.NoError(t, err)
		if m == nil {
			break
		}
		seen++
	}
	require.Equal(t, 2, seen)
}

func TestWorker_HookFailureMarksJobFailed(t *testing.T) {
	disp := morpheus.New()
	store := NewMemStore()
	queue := NewMemQueue()
	w := NewWorker("demo", store, queue, disp, nil)

	require.NoError(t, queue.Enqueue(Message{JobID: "job-missing-hook", PluginID: "demo", Hook: "missing", RootInputID: "root"}))
	msg, err := queue.Dequeue("demo", time.Millisecond)
	require.NoError(t, err)
	w.handleMessage(*msg)

	job, err := store.GetJob("job-missing-hook")
	require.NoError(t, err)
	require.Equal(t, StatusFailed, job.Status)
}

func TestWorker_ReEntryReusesExistingJobID(t *testing.T) {
	store := NewMemStore()
	existing, err := store.CreateJob(JobSpec{PluginID: "demo", Hook: "h", RootInputID: "root"})
	require.NoError(t, err)

	disp := morpheus.New()
	disp.Register(morpheus.Hook{Name: "h", PluginID: "demo", Fn: func(ctx *morpheus.Context, piped any) (any, error) { return nil, nil }})
	disp.Refresh()

	queue := NewMemQueue()
	w := NewWorker("demo", store, queue, disp, nil)

	w.handleMessage(Message{JobID: existing.JobID, PluginID: "demo", Hook: "h", RootInputID: "root"})

	job, err := store.GetJob(existing.JobID)
	require.NoError(t, err)
	require.Equal(t, StatusDone, job.Status)
}
