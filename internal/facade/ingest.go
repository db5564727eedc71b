// Package facade holds the two thin coordination façades spec.md §1 calls
// "input intake façade" and "retrieval façade": Ingest (grounded on
// original_source/src/rag2f/core/johnny5/johnny5.py) and Retrieve (grounded
// on original_source/src/rag2f/core/indiana_jones/indiana_jones.py). Both
// translate "expected state" outcomes into a result.Envelope (spec.md
// §4.8/§7); their methods return only an Envelope, never a Go error, and
// hook failures are isolated by the dispatcher.
package facade

import (
	"strings"

	"github.com/google/uuid"

	"github.com/fluxrag/fluxrag/internal/morpheus"
	"github.com/fluxrag/fluxrag/internal/result"
)

// Ingest is the input intake façade (johnny5.py's Johnny5 / InputManager).
type Ingest struct {
	Dispatcher *morpheus.Dispatcher
	Host       any
}

// NewIngest returns an Ingest façade dispatching through disp.
func NewIngest(disp *morpheus.Dispatcher, host any) *Ingest {
	return &Ingest{Dispatcher: disp, Host: host}
}

// HandleTextForeground runs text through the three-hook pipeline
// johnny5.execute_handle_text_foreground runs: id assignment, duplicate
// check, handling. Each is an independent named hook so a plugin can
// override any one stage without replacing the others.
func (i *Ingest) HandleTextForeground(text string) result.Envelope {
	if strings.TrimSpace(text) == "" {
		return result.FailCode(result.CodeEmpty, "input text is empty")
	}

	ctx := &morpheus.Context{Host: i.Host}

	// Every piped value here is a plain map, not a custom struct: the
	// dispatcher's deep-copy falls back to a JSON roundtrip for anything
	// that doesn't implement morpheus.Cloner, which only preserves
	// map/slice/primitive shapes (Design Notes §9).
	idPiped, _ := i.Dispatcher.ExecuteHook(ctx, "get_id_input_text", map[string]any{"track_id": nil, "text": text})
	trackID := ""
	if m, ok := idPiped.(map[string]any); ok {
		if tid, ok := m["track_id"].(string); ok {
			trackID = tid
		}
	}
	if trackID == "" {
		trackID = uuid.New().String()
	}

	dupPiped, _ := i.Dispatcher.ExecuteHook(ctx, "check_duplicated_input_text", map[string]any{"duplicated": false, "id": trackID, "text": text})
	if m, ok := dupPiped.(map[string]any); ok {
		if duplicated, ok := m["duplicated"].(bool); ok && duplicated {
			preview := text
			if len(preview) > 20 {
				preview = preview[:20]
			}
			return result.Fail(result.Detail{
				Code:    result.CodeDuplicate,
				Message: "input text is duplicated",
				Context: map[string]any{"id": trackID, "text": preview},
			}, nil)
		}
	}

	donePiped, _ := i.Dispatcher.ExecuteHook(ctx, "handle_text_foreground", map[string]any{"done": false, "id": trackID, "text": text})
	done := false
	if m, ok := donePiped.(map[string]any); ok {
		done, _ = m["done"].(bool)
	}
	if !done {
		return result.FailCode(result.CodeNotHandled, "input text not handled by any hook")
	}

	return result.Success(nil, map[string]any{"track_id": trackID})
}
