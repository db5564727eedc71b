// Package fluxcapacitor is the Task Engine Sync Core (spec.md §4.5): one
// hook invocation per task, children declared via a context object,
// pluggable store/queue, tree-completion introspection.
//
// Grounded on
// original_source/src/rag2f/core/flux_capacitor/flux_capacitor.py,
// translated per Design Notes §9: the dynamic-signature hook invocation
// collapses into morpheus.HookFunc's single Context argument, and the
// default-store/queue global lookup becomes constructor configuration.
package fluxcapacitor

import (
	"log"
	"time"

	"github.com/google/uuid"

	fluxerrors "github.com/fluxrag/fluxrag/internal/errors"
	"github.com/fluxrag/fluxrag/internal/morpheus"
)

// PayloadRef is a structured reference to stored payload data (spec.md §3).
type PayloadRef struct {
	Repository string         `json:"repository"`
	ID         string         `json:"id"`
	Meta       map[string]any `json:"meta,omitempty"`
}

// Task is one unit of work bound to exactly one hook invocation (spec.md
// §3 "Task").
type Task struct {
	ID         string
	PluginID   string
	Hook       string
	PayloadRef *PayloadRef
	ParentID   string
	CreatedAt  time.Time
	FinishedAt *time.Time
	Error      *string
}

// Done reports spec.md §3's "a task is done when finished_at is set and
// error is null".
func (t *Task) Done() bool {
	return t.FinishedAt != nil && t.Error == nil
}

// ChildRequest is emitted by a hook via the Context to declare a child
// task (spec.md §3 "Child request").
type ChildRequest struct {
	Hook       string
	PluginID   string // defaults to the parent task's plugin id if empty
	PayloadRef *PayloadRef
	Metadata   map[string]any
}

// Store is the pluggable task persistence backend (spec.md §4.5
// "Pluggable storage and queue backends").
type Store interface {
	CreateTask(t *Task) error
	GetTask(id string) (*Task, error)
	MarkDone(id string) error
	MarkError(id string, message string) error
	ChildrenOf(id string) ([]string, error)
}

// Queue is the pluggable task queue backend.
type Queue interface {
	Push(taskID string) error
	Pop() (string, bool, error) // ok=false means "idle"
}

// Host is whatever caller-supplied object a hook wants to reach through
// the Context (spec.md §4.5 step 4 "a handle to the enclosing host").
type Host any

// Context is built per task invocation and handed to the hook via
// morpheus.Context.Extra["task_context"] (spec.md §4.5 step 4).
type Context struct {
	Task       *Task
	Host       Host
	PayloadRef *PayloadRef
	children   []ChildRequest
}

// EmitChild stages a child task request; drained after the hook returns
// (spec.md §4.5 step 6).
func (c *Context) EmitChild(req ChildRequest) {
	c.children = append(c.children, req)
}

// StepResult is the outcome of one RunOnce call.
type StepResult string

const (
	StepIdle       StepResult = "idle"
	StepProgressed StepResult = "progressed"
)

// Engine drives the task tree (spec.md §4.5).
type Engine struct {
	Store      Store
	Queue      Queue
	Dispatcher *morpheus.Dispatcher
	Host       Host
	// IDGenerator is overridable for deterministic tests; defaults to
	// uuid.NewString.
	IDGenerator func() string
}

// New builds an Engine. dispatcher resolves the (plugin_id, hook) pair
// registered by the plugin loader.
func New(store Store, queue Queue, dispatcher *morpheus.Dispatcher, host Host) *Engine {
	if store == nil {
		panic(fluxerrors.NewTaskStoreMissing(""))
	}
	if queue == nil {
		panic(fluxerrors.NewTaskQueueMissing(""))
	}
	return &Engine{
		Store:       store,
		Queue:       queue,
		Dispatcher:  dispatcher,
		Host:        host,
		IDGenerator: uuid.NewString,
	}
}

// Enqueue creates a root task and pushes it onto the queue (the sync
// engine's entry point; the original leaves enqueue as part of the
// FluxCapacitor façade rather than a separate object).
func (e *Engine) Enqueue(pluginID, hook string, payloadRef *PayloadRef) (*Task, error) {
	t := &Task{
		ID:         e.IDGenerator(),
		PluginID:   pluginID,
		Hook:       hook,
		PayloadRef: payloadRef,
		CreatedAt:  time.Now().UTC(),
	}
	if err := e.Store.CreateTask(t); err != nil {
		return nil, fluxerrors.NewBackendFailure("task-store", err)
	}
	if err := e.Queue.Push(t.ID); err != nil {
		return nil, fluxerrors.NewBackendFailure("task-queue", err)
	}
	return t, nil
}

// RunOnce implements spec.md §4.5's run_once state machine.
func (e *Engine) RunOnce() (StepResult, error) {
	id, ok, err := e.Queue.Pop()
	if err != nil {
		return "", fluxerrors.NewBackendFailure("task-queue", err)
	}
	if !ok {
		return StepIdle, nil
	}

	task, err := e.Store.GetTask(id)
	if err != nil {
		return "", fluxerrors.NewBackendFailure("task-store", err)
	}
	if task == nil {
		// spec.md §4.5 step 2: missing record, log and drop the id.
		log.Printf("fluxcapacitor: task %q not found in store, dropping it", id)
		return StepProgressed, nil
	}

	handle, found := e.resolveHandle(task.PluginID, task.Hook)
	if !found {
		_ = e.Store.MarkError(id, "no hook registered for "+task.PluginID+"/"+task.Hook)
		return StepProgressed, nil
	}

	taskCtx := &Context{Task: task, Host: e.Host, PayloadRef: task.PayloadRef}
	morpheusCtx := &morpheus.Context{PluginID: task.PluginID, Host: e.Host, Extra: map[string]any{"task_context": taskCtx}}

	result, hookErr := handle.Fn(morpheusCtx, payloadAsAny(task.PayloadRef))
	if hookErr != nil {
		_ = e.Store.MarkError(id, hookErr.Error())
		return StepProgressed, nil
	}
	_ = result // the sync engine does not pipe a return value onward; only children and completion matter.

	if err := e.drainChildren(task, taskCtx.children); err != nil {
		_ = e.Store.MarkError(id, err.Error())
		return StepProgressed, nil
	}

	if err := e.Store.MarkDone(id); err != nil {
		return "", fluxerrors.NewBackendFailure("task-store", err)
	}
	return StepProgressed, nil
}

func payloadAsAny(p *PayloadRef) any {
	if p == nil {
		return nil
	}
	return p
}

func (e *Engine) resolveHandle(pluginID, hook string) (morpheus.Hook, bool) {
	if e.Dispatcher == nil {
		return morpheus.Hook{}, false
	}
	for _, h := range e.Dispatcher.Handles(hook) {
		if h.PluginID == pluginID {
			return h, true
		}
	}
	return morpheus.Hook{}, false
}

// drainChildren persists then enqueues every staged child request (spec.md
// §4.5 step 6, §5 "Persistence is ordered before enqueue for a child").
// Best-effort: if persistence of a later child fails, earlier children
// remain committed (spec.md §9 Open Question, resolved as best-effort, no
// rollback — matching the original's run_once, which never undoes
// already-persisted children on a later failure).
func (e *Engine) drainChildren(parent *Task, requests []ChildRequest) error {
	for _, req := range requests {
		pluginID := req.PluginID
		if pluginID == "" {
			pluginID = parent.PluginID
		}
		child := &Task{
			ID:         e.IDGenerator(),
			PluginID:   pluginID,
			Hook:       req.Hook,
			PayloadRef: req.PayloadRef,
			ParentID:   parent.ID,
			CreatedAt:  time.Now().UTC(),
		}
		if err := e.Store.CreateTask(child); err != nil {
			return fluxerrors.NewBackendFailure("task-store", err)
		}
		if err := e.Queue.Push(child.ID); err != nil {
			return fluxerrors.NewBackendFailure("task-queue", err)
		}
	}
	return nil
}

// WorkerLoop repeatedly calls RunOnce (spec.md §4.5 "Worker loop").
// maxIterations <= 0 means unbounded; sleep <= 0 means "exit once idle".
func (e *Engine) WorkerLoop(maxIterations int, sleep time.Duration) error {
	iterations := 0
	for {
		if maxIterations > 0 && iterations >= maxIterations {
			return nil
		}
		step, err := e.RunOnce()
		if err != nil {
			return err
		}
		iterations++
		if step == StepIdle {
			if sleep <= 0 {
				return nil
			}
			time.Sleep(sleep)
		}
	}
}

// IsTreeDone implements spec.md §4.5's is_tree_done: recursively check
// every descendant has finished_at set and error is null; a missing root
// returns false.
func (e *Engine) IsTreeDone(rootID string) (bool, error) {
	root, err := e.Store.GetTask(rootID)
	if err != nil {
		return false, fluxerrors.NewBackendFailure("task-store", err)
	}
	if root == nil {
		return false, nil
	}
	return e.subtreeDone(root)
}

func (e *Engine) subtreeDone(t *Task) (bool, error) {
	if !t.Done() {
		return false, nil
	}
	childIDs, err := e.Store.ChildrenOf(t.ID)
	if err != nil {
		return false, fluxerrors.NewBackendFailure("task-store", err)
	}
	for _, id := range childIDs {
		child, err := e.Store.GetTask(id)
		if err != nil {
			return false, fluxerrors.NewBackendFailure("task-store", err)
		}
		if child == nil {
			return false, nil
		}
		done, err := e.subtreeDone(child)
		if err != nil || !done {
			return false, err
		}
	}
	return true, nil
}
