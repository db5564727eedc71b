package agent

import (
	"sync"
	"sync/atomic"
	"time"

	fluxerrors "github.com/fluxrag/fluxrag/internal/errors"
	"github.com/fluxrag/fluxrag/internal/morpheus"
)

// Queue is a time-bounded dequeue source (spec.md §4.6 "the worker
// consumes pre-serialized messages from a queue that supports
// time-bounded dequeue. A null message means idle, continue polling.").
type Queue interface {
	Enqueue(msg Message) error
	EnqueueMany(msgs []Message) error
	Dequeue(pluginID string, timeout time.Duration) (*Message, error)
}

// Context is handed to a hook via morpheus.Context.Extra["agent_context"].
// EmitChild / EmitChildren are the context-based child-declaration
// mechanism (spec.md §4.6 bullet "via the context (same as sync)").
type Context struct {
	Job        *Job
	PayloadRef *PayloadRef
	mu         sync.Mutex
	staged     []ChildRequest
}

func (c *Context) EmitChild(req ChildRequest) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.staged = append(c.staged, req)
}

func (c *Context) EmitChildren(reqs []ChildRequest) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.staged = append(c.staged, reqs...)
}

func (c *Context) stagedChildren() []ChildRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]ChildRequest(nil), c.staged...)
}

// HookResult is the wrapper form a hook may return to declare children
// (spec.md §4.6 bullet "via a special result wrapper carrying a child
// list"). Design Notes §9 Open Question: the source also allows a bare
// ChildRequest / slice / shaped map return; this implementation keeps
// only the context-based mechanism and HookResult, dropping the
// return-value forms, per the Open Question's explicit recommendation to
// "prefer a single mechanism for a fresh implementation, even if that
// loses source compatibility in the return-value form." HookResult
// survives because it is itself a single, explicit, typed mechanism (not
// the ambiguous multi-shape return value the source also allowed).
type HookResult struct {
	Children []ChildRequest
}

// Worker is the Go analogue of AgentWorker: one cooperative,
// single-threaded loop per plugin id.
type Worker struct {
	PluginID        string
	Store           Store
	Queue           Queue
	Dispatcher      *morpheus.Dispatcher
	Host            any
	DequeueTimeout  time.Duration

	stopped int32
}

// NewWorker returns a Worker for pluginID with DequeueTimeout set to one
// second.
func NewWorker(pluginID string, store Store, queue Queue, dispatcher *morpheus.Dispatcher, host any) *Worker {
	return &Worker{
		PluginID:       pluginID,
		Store:          store,
		Queue:          queue,
		Dispatcher:     dispatcher,
		Host:           host,
		DequeueTimeout: time.Second,
	}
}

// Stop signals the loop to exit at the next dequeue boundary (spec.md
// §4.6 "Cancellation"); the in-flight hook is allowed to finish.
func (w *Worker) Stop() {
	atomic.StoreInt32(&w.stopped, 1)
}

func (w *Worker) stopRequested() bool {
	return atomic.LoadInt32(&w.stopped) == 1
}

// RunForever loops until Stop is called. Failures while handling a message
// are swallowed after marking the job failed and never abort the loop; a
// dequeue error ends the loop and is returned as a BackendFailure.
func (w *Worker) RunForever() error {
	for !w.stopRequested() {
		msg, err := w.Queue.Dequeue(w.PluginID, w.DequeueTimeout)
		if err != nil {
			return fluxerrors.NewBackendFailure("agent-queue", err)
		}
		if msg == nil {
			continue
		}
		w.handleMessage(*msg)
	}
	return nil
}

func (w *Worker) handleMessage(msg Message) {
	job, err := w.loadOrRestoreJob(msg)
	if err != nil {
		return
	}

	if err := w.Store.MarkStatus(job.JobID, StatusRunning, ""); err != nil {
		return
	}

	handle, found := w.resolveHandle(job.PluginID, job.Hook)
	if !found {
		_ = w.Store.MarkStatus(job.JobID, StatusFailed, "no hook registered for "+job.PluginID+"/"+job.Hook)
		return
	}

	agentCtx := &Context{Job: job, PayloadRef: job.PayloadRef}
	morpheusCtx := &morpheus.Context{PluginID: job.PluginID, Host: w.Host, Extra: map[string]any{"agent_context": agentCtx}}

	result, hookErr := handle.Fn(morpheusCtx, payloadAsAny(job.PayloadRef))
	if hookErr != nil {
		_ = w.Store.MarkStatus(job.JobID, StatusFailed, hookErr.Error())
		return
	}

	children := normalizeChildren(job, agentCtx.stagedChildren(), result)
	if len(children) > 0 {
		if err := w.persistAndEnqueue(job, children); err != nil {
			_ = w.Store.MarkStatus(job.JobID, StatusFailed, err.Error())
			return
		}
	}

	_ = w.Store.MarkStatus(job.JobID, StatusDone, "")
}

func payloadAsAny(p *PayloadRef) any {
	if p == nil {
		return nil
	}
	return p
}

// loadOrRestoreJob implements spec.md §4.6 "If the dequeued message
// references a known job id, load that job; otherwise create it now
// (enabling re-entry after crash)."
func (w *Worker) loadOrRestoreJob(msg Message) (*Job, error) {
	if msg.JobID != "" {
		if existing, err := w.Store.GetJob(msg.JobID); err == nil && existing != nil {
			return existing, nil
		}
	}
	return w.Store.CreateJob(JobSpec{
		PluginID:    msg.PluginID,
		Hook:        msg.Hook,
		RootInputID: msg.RootInputID,
		PayloadRef:  msg.PayloadRef,
		Metadata:    msg.Metadata,
		ParentJobID: msg.ParentJobID,
		JobID:       msg.JobID,
	})
}

func (w *Worker) resolveHandle(pluginID, hook string) (morpheus.Hook, bool) {
	if w.Dispatcher == nil {
		return morpheus.Hook{}, false
	}
	for _, h := range w.Dispatcher.Handles(hook) {
		if h.PluginID == pluginID {
			return h, true
		}
	}
	return morpheus.Hook{}, false
}

// normalizeChildren collapses the context-staged requests and a HookResult
// return value into one list, defaulting each child's plugin id to the
// parent job's (spec.md §4.6 "All paths are normalized and deduplicated
// before enqueue"). Requests sharing a pre-assigned job id (with the same
// plugin id and hook) collapse to the first; requests without a job id are
// all kept.
func normalizeChildren(job *Job, staged []ChildRequest, result any) []ChildRequest {
	all := append([]ChildRequest(nil), staged...)
	if hr, ok := result.(HookResult); ok {
		all = append(all, hr.Children...)
	}
	if hr, ok := result.(*HookResult); ok && hr != nil {
		all = append(all, hr.Children...)
	}

	seen := map[string]bool{}
	out := make([]ChildRequest, 0, len(all))
	for _, req := range all {
		if req.PluginID == "" {
			req.PluginID = job.PluginID
		}
		key := req.PluginID + "|" + req.Hook + "|" + req.JobID
		if req.JobID != "" {
			if seen[key] {
				continue
			}
		}
		seen[key] = true
		out = append(out, req)
	}
	return out
}

// persistAndEnqueue creates every child job then batch-enqueues them
// (spec.md §4.6 "Children are batch-enqueued after all have been
// persisted.").
func (w *Worker) persistAndEnqueue(parent *Job, children []ChildRequest) error {
	msgs := make([]Message, 0, len(children))
	for _, req := range children {
		child, err := w.Store.CreateJob(JobSpec{
			PluginID:    req.PluginID,
			Hook:        req.Hook,
			RootInputID: parent.RootInputID,
			PayloadRef:  req.PayloadRef,
			Metadata:    req.Metadata,
			ParentJobID: parent.JobID,
			JobID:       req.JobID,
		})
		if err != nil {
			return err
		}
		msgs = append(msgs, child.ToMessage())
	}
	return w.Queue.EnqueueMany(msgs)
}
