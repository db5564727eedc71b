// Package result implements the success/error envelope returned by every
// user-facing core entry point (spec.md §3 "Result envelope", §4.8, §7).
package result

// Status is the coarse success/error discriminant. Expected failures use
// StatusError with a registered Code; unexpected faults are not
// represented here at all, they propagate as Go errors instead.
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Registered codes from spec.md §6 ("Exit / failure codes surfaced to
// callers"). Implementations must preserve these exact literals.
const (
	CodeEmpty           = "empty"
	CodeInvalid         = "invalid"
	CodeNotFound        = "not_found"
	CodePartial         = "partial"
	CodeDuplicate       = "duplicate"
	CodeDuplicateMerged = "duplicate_merged"
	CodeNotHandled      = "not_handled"
	CodeNoResults       = "no_results"
	CodeDegraded        = "degraded"
	CodeCacheMiss       = "cache_miss"
	CodeAlreadyExists   = "already_exists"
	CodeInvalidSpec     = "invalid_spec"
	CodePartialResults  = "partial_results"
)

// Detail carries the machine-readable code plus optional human message and
// structured context for either a success or an error envelope.
type Detail struct {
	Code    string         `json:"code"`
	Message string         `json:"message,omitempty"`
	Context map[string]any `json:"context,omitempty"`
}

// Envelope is the common container. Extra holds operation-specific fields;
// callers that need a typed view should add accessor methods at the call
// site rather than mutate Extra directly outside the factories below.
type Envelope struct {
	Status Status         `json:"status"`
	Detail *Detail        `json:"detail,omitempty"`
	Extra  map[string]any `json:"-"`
}

// IsOk reports success. Status checks must go through IsOk/IsError; direct
// comparison against Status is reserved for (de)serialization code.
func (e Envelope) IsOk() bool { return e.Status == StatusSuccess }

// IsError reports failure.
func (e Envelope) IsError() bool { return e.Status == StatusError }

// Get reads an extension field, returning ok=false if unset.
func (e Envelope) Get(key string) (any, bool) {
	v, ok := e.Extra[key]
	return v, ok
}

// Success builds a success envelope. detail may be nil, or non-nil to
// report a "partial success" without flipping status.
func Success(detail *Detail, extra map[string]any) Envelope {
	return Envelope{Status: StatusSuccess, Detail: detail, Extra: extra}
}

// Fail builds an error envelope. Status is always StatusError regardless
// of what the caller passes.
func Fail(detail Detail, extra map[string]any) Envelope {
	return Envelope{Status: StatusError, Detail: &detail, Extra: extra}
}

// FailCode is a convenience wrapper for the common case of a bare code.
func FailCode(code, message string) Envelope {
	return Fail(Detail{Code: code, Message: message}, nil)
}
