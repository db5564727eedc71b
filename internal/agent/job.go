// Package agent is the Task Engine Async Worker (spec.md §4.6): same
// contract as fluxcapacitor, driven by a long-lived worker loop pulling
// messages from a time-bounded queue, with status aggregation over the
// job tree.
//
// Grounded on
// original_source/src/rag2f/core/flux_capacitor/jobs.py (data model,
// BaseJobStore, BaseQueue, get_status_view/_aggregate_status) and
// original_source/src/rag2f/core/flux_capacitor/agent.py (AgentWorker,
// AgentContext, child-request normalization).
package agent

import (
	"time"

	"github.com/google/uuid"
)

// Status is the async job lifecycle (spec.md §3 "Async job").
type Status string

const (
	StatusPending Status = "PENDING"
	StatusRunning Status = "RUNNING"
	StatusDone    Status = "DONE"
	StatusFailed  Status = "FAILED"
)

// PayloadRef mirrors fluxcapacitor.PayloadRef; kept as its own type so the
// async wire message (spec.md §6) is self-contained and doesn't couple
// the two engines' packages together (Design Notes §9 treats them as two
// implementations of one Engine interface, not one sharing internals).
type PayloadRef struct {
	Repository string         `json:"repository"`
	ID         string         `json:"id"`
	Meta       map[string]any `json:"meta,omitempty"`
}

// Job is the async job record (spec.md §3 "Async job").
type Job struct {
	JobID        string         `json:"job_id"`
	ParentJobID  string         `json:"parent_job_id,omitempty"`
	RootInputID  string         `json:"root_input_id"`
	PluginID     string         `json:"plugin_id"`
	Hook         string         `json:"hook"`
	PayloadRef   *PayloadRef    `json:"payload_ref,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	Status       Status         `json:"status"`
}

// Message is the wire format a queue transports (spec.md §6 "Task-message
// wire format"); field names and shape are part of the contract.
type Message struct {
	JobID       string         `json:"job_id"`
	ParentJobID string         `json:"parent_job_id,omitempty"`
	RootInputID string         `json:"root_input_id"`
	PluginID    string         `json:"plugin_id"`
	Hook        string         `json:"hook"`
	PayloadRef  *PayloadRef    `json:"payload_ref"`
	Metadata    map[string]any `json:"metadata"`
}

// ToMessage builds the wire message for a job.
func (j *Job) ToMessage() Message {
	return Message{
		JobID:       j.JobID,
		ParentJobID: j.ParentJobID,
		RootInputID: j.RootInputID,
		PluginID:    j.PluginID,
		Hook:        j.Hook,
		PayloadRef:  j.PayloadRef,
		Metadata:    j.Metadata,
	}
}

// ChildRequest is the normalized form every child-declaration mechanism
// collapses into before enqueue (spec.md §4.6).
type ChildRequest struct {
	Hook       string
	PluginID   string
	PayloadRef *PayloadRef
	Metadata   map[string]any
	JobID      string // optional pre-assigned id, for re-entry scenarios
}

// StatusView is the aggregated status tree (spec.md §4.6 "Status
// aggregation view").
type StatusView struct {
	JobID    string       `json:"job_id"`
	Status   Status       `json:"status"`
	Children []StatusView `json:"children"`
	Progress float64      `json:"progress"`
}

// Store is the pluggable job persistence backend.
type Store interface {
	CreateJob(spec JobSpec) (*Job, error)
	GetJob(jobID string) (*Job, error)
	MarkStatus(jobID string, status Status, errMessage string) error
	ChildrenOf(jobID string) ([]string, error)
}

// JobSpec is the input to CreateJob, mirroring BaseJobStore.create_job's
// keyword arguments.
type JobSpec struct {
	PluginID    string
	Hook        string
	RootInputID string
	PayloadRef  *PayloadRef
	Metadata    map[string]any
	ParentJobID string
	JobID       string // reuse an id on re-entry after crash
}

// NewJobID is overridable for deterministic tests.
var NewJobID = uuid.NewString

// BuildJob constructs the base_metadata-merged Job the way
// BaseJobStore.create_job does, leaving persistence to the Store
// implementation.
func BuildJob(spec JobSpec) *Job {
	metadata := map[string]any{
		"retry":      0,
		"created_at": time.Now().UTC().Format(time.RFC3339Nano),
	}
	for k, v := range spec.Metadata {
		metadata[k] = v
	}

	id := spec.JobID
	if id == "" {
		id = NewJobID()
	}

	return &Job{
		JobID:       id,
		ParentJobID: spec.ParentJobID,
		RootInputID: spec.RootInputID,
		PluginID:    spec.PluginID,
		Hook:        spec.Hook,
		PayloadRef:  spec.PayloadRef,
		Metadata:    metadata,
		Status:      StatusPending,
	}
}

// GetStatusView implements BaseJobStore.get_status_view /
// _aggregate_status verbatim (spec.md §4.6).
func GetStatusView(store Store, jobID string) (StatusView, error) {
	view, _, _, err := buildView(store, jobID)
	return view, err
}

func buildView(store Store, jobID string) (StatusView, int, int, error) {
	job, err := store.GetJob(jobID)
	if err != nil {
		return StatusView{}, 0, 0, err
	}
	if job == nil {
		return StatusView{}, 0, 0, errJobNotFound(jobID)
	}

	childIDs, err := store.ChildrenOf(jobID)
	if err != nil {
		return StatusView{}, 0, 0, err
	}

	var children []StatusView
	leavesTotal, leavesDone := 0, 0
	for _, childID := range childIDs {
		childView, total, done, err := buildView(store, childID)
		if err != nil {
			return StatusView{}, 0, 0, err
		}
		children = append(children, childView)
		leavesTotal += total
		leavesDone += done
	}

	if len(childIDs) == 0 {
		leavesTotal = 1
		if job.Status == StatusDone {
			leavesDone = 1
		}
	}

	aggregated := aggregateStatus(job.Status, children)

	var progress float64
	if leavesTotal == 0 {
		if job.Status == StatusDone {
			progress = 1.0
		}
	} else {
		progress = round4(float64(leavesDone) / float64(leavesTotal))
	}

	return StatusView{JobID: job.JobID, Status: aggregated, Children: children, Progress: progress}, leavesTotal, leavesDone, nil
}

// aggregateStatus mirrors BaseJobStore._aggregate_status exactly,
// including the "DONE but a descendant isn't" escalation to RUNNING.
func aggregateStatus(status Status, children []StatusView) Status {
	anyFailed, anyPendingOrRunning, anyNotDone := false, false, false
	for _, c := range children {
		switch c.Status {
		case StatusFailed:
			anyFailed = true
		case StatusPending, StatusRunning:
			anyPendingOrRunning = true
		}
		if c.Status != StatusDone {
			anyNotDone = true
		}
	}
	if anyFailed {
		return StatusFailed
	}
	if anyPendingOrRunning {
		return StatusRunning
	}
	if status == StatusFailed {
		return StatusFailed
	}
	if status != StatusDone {
		return status
	}
	if status == StatusDone && anyNotDone {
		return StatusRunning
	}
	return StatusDone
}

func round4(v float64) float64 {
	return float64(int(v*10000+0.5)) / 10000
}

type jobNotFoundError struct{ jobID string }

func (e *jobNotFoundError) Error() string { return "job not found: " + e.jobID }

func errJobNotFound(jobID string) error { return &jobNotFoundError{jobID: jobID} }
