package facade

import (
	"strings"

	"github.com/fluxrag/fluxrag/internal/morpheus"
	"github.com/fluxrag/fluxrag/internal/result"
	"github.com/fluxrag/fluxrag/internal/xfiles"
)

// ReturnMode mirrors indiana_jones_dto.ReturnMode: controls whether
// retrieved items ride along on the envelope or are dropped after use.
type ReturnMode string

const (
	ReturnModeWithItems ReturnMode = "with_items"
	ReturnModeMinimal   ReturnMode = "minimal"
)

// Retrieve is the retrieval façade (indiana_jones.py's IndianaJones /
// RetrieveManager).
type Retrieve struct {
	Dispatcher   *morpheus.Dispatcher
	Host         any
	Capabilities xfiles.Capabilities
	Allowlists   xfiles.Allowlists
}

// NewRetrieve returns a Retrieve façade dispatching through disp, validating
// any caller-supplied query spec against caps/allow.
func NewRetrieve(disp *morpheus.Dispatcher, host any, caps xfiles.Capabilities, allow xfiles.Allowlists) *Retrieve {
	return &Retrieve{Dispatcher: disp, Host: host, Capabilities: caps, Allowlists: allow}
}

// ExecuteRetrieve runs the `indiana_jones_retrieve` hook pipeline for query (spec.md §8
// scenario 5: an empty query returns code=empty and never panics). spec, if
// non-nil, is validated through xfiles.Validate before dispatch; a
// validation failure surfaces as code=invalid_spec rather than a raised
// system error, since a malformed caller-supplied spec is itself an
// expected, reportable state at this boundary.
func (r *Retrieve) ExecuteRetrieve(query string, k int, spec *xfiles.QuerySpec) result.Envelope {
	if strings.TrimSpace(query) == "" {
		return result.FailCode(result.CodeEmpty, "query is empty")
	}

	if spec != nil {
		validated, err := xfiles.Validate(*spec, r.Capabilities, r.Allowlists)
		if err != nil {
			return result.FailCode(result.CodeInvalidSpec, err.Error())
		}
		spec = &validated
	}

	ctx := &morpheus.Context{Host: r.Host}
	piped := map[string]any{"query": query, "k": k, "items": []any{}}
	resultPiped, _ := r.Dispatcher.ExecuteHook(ctx, "indiana_jones_retrieve", piped)

	items := []any{}
	if m, ok := resultPiped.(map[string]any); ok {
		if v, ok := m["items"].([]any); ok {
			items = v
		}
	}

	return result.Success(nil, map[string]any{"query": query, "items": items})
}

// ExecuteSearch runs retrieval then the `indiana_jones_synthesize` hook,
// dropping items from the envelope when mode is ReturnModeMinimal.
func (r *Retrieve) ExecuteSearch(query string, k int, mode ReturnMode) result.Envelope {
	retrieved := r.ExecuteRetrieve(query, k, nil)
	if retrieved.IsError() {
		return retrieved
	}

	items, _ := retrieved.Get("items")

	ctx := &morpheus.Context{Host: r.Host}
	piped := map[string]any{"query": query, "items": items, "response": ""}
	synthesized, _ := r.Dispatcher.ExecuteHook(ctx, "indiana_jones_synthesize", piped)

	response := ""
	if m, ok := synthesized.(map[string]any); ok {
		if v, ok := m["response"].(string); ok {
			response = v
		}
	}

	extra := map[string]any{"query": query, "response": response}
	if mode != ReturnModeMinimal {
		extra["items"] = items
	}
	return result.Success(nil, extra)
}
