// Package errors defines the typed system-error hierarchy raised by the
// core packages (manifest, pluginloader, morpheus, fluxcapacitor, agent,
// xfiles). Expected states are reported through result.Envelope instead;
// these types are reserved for the "system error" failure class.
package errors

import (
	"fmt"

	pkgerrors "github.com/pkg/errors"
)

// FluxRagError is the base type every system error embeds.
type FluxRagError struct {
	Code    string
	Message string
	Cause   error
	Context map[string]interface{}
}

func (e *FluxRagError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *FluxRagError) Unwrap() error {
	return e.Cause
}

func wrap(cause error, context string) error {
	if cause == nil {
		return nil
	}
	return pkgerrors.Wrap(cause, context)
}

// ManifestInvalid signals a manifest file that failed to parse or
// normalize (spec.md §4.1).
type ManifestInvalid struct {
	*FluxRagError
	FilePath string
}

func NewManifestInvalid(filePath, diagnostic string, cause error) *ManifestInvalid {
	return &ManifestInvalid{
		FluxRagError: &FluxRagError{
			Code:    "MANIFEST_INVALID",
			Message: fmt.Sprintf("manifest %q is invalid: %s", filePath, diagnostic),
			Cause:   wrap(cause, "parse manifest"),
			Context: map[string]interface{}{"file_path": filePath},
		},
		FilePath: filePath,
	}
}

// PluginLoadFailed wraps any failure encountered while discovering,
// importing, or activating a plugin (spec.md §4.3).
type PluginLoadFailed struct {
	*FluxRagError
	PluginID string
}

func NewPluginLoadFailed(pluginID, reason string, cause error) *PluginLoadFailed {
	return &PluginLoadFailed{
		FluxRagError: &FluxRagError{
			Code:    "PLUGIN_LOAD_FAILED",
			Message: fmt.Sprintf("plugin %q failed to load: %s", pluginID, reason),
			Cause:   wrap(cause, "load plugin"),
			Context: map[string]interface{}{"plugin_id": pluginID},
		},
		PluginID: pluginID,
	}
}

// UnknownCallerContext is raised when plugin-of-caller resolution has no
// context to resolve against (spec.md §4.4, Design Notes §9).
type UnknownCallerContext struct {
	*FluxRagError
}

func NewUnknownCallerContext() *UnknownCallerContext {
	return &UnknownCallerContext{
		FluxRagError: &FluxRagError{
			Code:    "UNKNOWN_CALLER_CONTEXT",
			Message: "no executing plugin context is available",
		},
	}
}

// PluginNotFound is raised when a resolved plugin id is absent from the
// registry.
type PluginNotFound struct {
	*FluxRagError
	PluginID string
}

func NewPluginNotFound(pluginID string) *PluginNotFound {
	return &PluginNotFound{
		FluxRagError: &FluxRagError{
			Code:    "PLUGIN_NOT_FOUND",
			Message: fmt.Sprintf("plugin %q is not registered", pluginID),
			Context: map[string]interface{}{"plugin_id": pluginID},
		},
		PluginID: pluginID,
	}
}

// HookExecutionError wraps a panic/error raised by a plugin hook.
type HookExecutionError struct {
	*FluxRagError
	HookName string
	PluginID string
}

func NewHookExecutionError(hookName, pluginID string, cause error) *HookExecutionError {
	return &HookExecutionError{
		FluxRagError: &FluxRagError{
			Code:    "HOOK_EXECUTION_ERROR",
			Message: fmt.Sprintf("hook %q (plugin %q) failed", hookName, pluginID),
			Cause:   wrap(cause, "hook execution"),
			Context: map[string]interface{}{"hook": hookName, "plugin_id": pluginID},
		},
		HookName: hookName,
		PluginID: pluginID,
	}
}

// TaskStoreMissing is raised when no task store backend is registered and
// none was requested explicitly.
type TaskStoreMissing struct {
	*FluxRagError
	Name string
}

func NewTaskStoreMissing(name string) *TaskStoreMissing {
	return &TaskStoreMissing{
		FluxRagError: &FluxRagError{
			Code:    "TASK_STORE_MISSING",
			Message: fmt.Sprintf("task store %q is not registered", name),
			Context: map[string]interface{}{"name": name},
		},
		Name: name,
	}
}

// TaskQueueMissing is the queue analogue of TaskStoreMissing.
type TaskQueueMissing struct {
	*FluxRagError
	Name string
}

func NewTaskQueueMissing(name string) *TaskQueueMissing {
	return &TaskQueueMissing{
		FluxRagError: &FluxRagError{
			Code:    "TASK_QUEUE_MISSING",
			Message: fmt.Sprintf("task queue %q is not registered", name),
			Context: map[string]interface{}{"name": name},
		},
		Name: name,
	}
}

// HookResolutionFailed is raised when a task names a hook with no
// matching registered handle.
type HookResolutionFailed struct {
	*FluxRagError
	PluginID string
	HookName string
}

func NewHookResolutionFailed(pluginID, hookName string) *HookResolutionFailed {
	return &HookResolutionFailed{
		FluxRagError: &FluxRagError{
			Code:    "HOOK_RESOLUTION_FAILED",
			Message: fmt.Sprintf("no hook %q registered for plugin %q", hookName, pluginID),
			Context: map[string]interface{}{"plugin_id": pluginID, "hook": hookName},
		},
		PluginID: pluginID,
		HookName: hookName,
	}
}

// InvalidShape signals a structurally malformed query (spec.md §4.7).
type InvalidShape struct {
	*FluxRagError
	Path string
}

func NewInvalidShape(path, reason string) *InvalidShape {
	return &InvalidShape{
		FluxRagError: &FluxRagError{
			Code:    "INVALID_SHAPE",
			Message: reason,
			Context: map[string]interface{}{"path": path},
		},
		Path: path,
	}
}

// Unsupported signals use of an operator or feature the capability record
// does not declare.
type Unsupported struct {
	*FluxRagError
	Path    string
	Feature string
}

func NewUnsupported(path, feature string) *Unsupported {
	return &Unsupported{
		FluxRagError: &FluxRagError{
			Code:    "UNSUPPORTED",
			Message: fmt.Sprintf("%q is not supported", feature),
			Context: map[string]interface{}{"path": path, "feature": feature},
		},
		Path:    path,
		Feature: feature,
	}
}

// FieldNotAllowed signals an allow-list violation for select/order_by.
type FieldNotAllowed struct {
	*FluxRagError
	Path  string
	Field string
}

func NewFieldNotAllowed(path, field string) *FieldNotAllowed {
	return &FieldNotAllowed{
		FluxRagError: &FluxRagError{
			Code:    "FIELD_NOT_ALLOWED",
			Message: fmt.Sprintf("field %q is not in the allow-list", field),
			Context: map[string]interface{}{"path": path, "field": field},
		},
		Path:  path,
		Field: field,
	}
}

// BackendFailure wraps an opaque failure surfaced by a pluggable store,
// queue, or repository backend.
type BackendFailure struct {
	*FluxRagError
	Backend string
}

func NewBackendFailure(backend string, cause error) *BackendFailure {
	return &BackendFailure{
		FluxRagError: &FluxRagError{
			Code:    "BACKEND_FAILURE",
			Message: fmt.Sprintf("backend %q failed", backend),
			Cause:   wrap(cause, "backend"),
			Context: map[string]interface{}{"backend": backend},
		},
		Backend: backend,
	}
}
