// Package xfiles is the Capability-Based Query Validator (spec.md §4.7): it
// checks a query specification against a repository's declared capabilities
// and optional field allow-lists, clamping pagination limits.
//
// Grounded on
// original_source/src/rag2f/core/xfiles/{types,capabilities,validation,exceptions}.py
// for the shape of QuerySpec/WhereNode/Capabilities and the failure
// taxonomy; the validation algorithm itself is spec.md §4.7's six-step
// description, since validation.py's body was not carried into the
// retrieval pack.
package xfiles

import (
	"strconv"

	fluxerrors "github.com/fluxrag/fluxrag/internal/errors"
)

// FilterNode is the prefix-form filter AST (spec.md §3 "WhereNode: AST for
// filter expressions in prefix form"). Op is the operator name; Args holds
// its operands positionally:
//   - comparisons (eq, ne, gt, gte, lt, lte, in, contains, startswith,
//     endswith, regex, fulltext, near, within): Args = [field, value]
//   - exists: Args = [field]
//   - not: Args = [operand FilterNode]
//   - and / or: Args = [left FilterNode, right FilterNode]
type FilterNode struct {
	Op   string
	Args []any
}

// QuerySpec is the query specification (spec.md §3 "QuerySpec: Query
// specification with projection, filter, ordering, pagination").
type QuerySpec struct {
	Select  []string
	Where   *FilterNode
	OrderBy []string
	Limit   *int
	Offset  int
}

// Pagination declares pagination support and its ceiling.
type Pagination struct {
	Supported bool
	MaxLimit  *int
}

// Capabilities is the capability record a repository plugin declares
// (spec.md §3 "Capability record").
type Capabilities struct {
	Query      bool
	Select     bool
	Filter     bool
	FilterOps  map[string]bool
	OrderBy    bool
	Pagination Pagination
}

// Allowlists are the three optional allow-list sets spec.md §4.7 accepts.
type Allowlists struct {
	Fields       map[string]bool // generic field allow-list, enforced against every comparison/exists field in the filter AST
	SelectFields map[string]bool
	OrderFields  map[string]bool
}

// In builds an `in` FilterNode whose value is always a materialized
// []any, regardless of the caller's input collection type (spec.md §8
// "For every call validate(q, caps) ... round-trip serialization" and
// Design Notes: Go has no tuple/set/generator to worry about, so this
// builder is the one place that guarantee needs to be enforced).
func In(field string, xs ...any) FilterNode {
	values := make([]any, len(xs))
	copy(values, xs)
	return FilterNode{Op: "in", Args: []any{field, values}}
}

var binaryArity = map[string]int{
	"eq": 2, "ne": 2, "gt": 2, "gte": 2, "lt": 2, "lte": 2, "in": 2,
	"contains": 2, "startswith": 2, "endswith": 2, "regex": 2, "fulltext": 2,
	"near": 2, "within": 2,
	"and": 2, "or": 2,
}

// comparisonOps is every operator validated by the comparison branch of
// validateFilter's switch (spec.md §3's comparison set, arity 3 there
// counting the operator itself; arity 2 here since FilterNode.Op is split
// out of Args).
var comparisonOps = map[string]bool{
	"eq": true, "ne": true, "gt": true, "gte": true, "lt": true, "lte": true,
	"in": true, "contains": true, "startswith": true, "endswith": true,
	"regex": true, "fulltext": true, "near": true, "within": true,
}

var unaryArity = map[string]int{
	"exists": 1,
	"not":    1,
}

func expectedArity(op string) (int, bool) {
	if n, ok := binaryArity[op]; ok {
		return n, true
	}
	if n, ok := unaryArity[op]; ok {
		return n, true
	}
	return 0, false
}

// Validate implements spec.md §4.7's algorithm. It returns either the input
// spec unchanged or a single shallow copy with Limit clamped; it never
// mutates q in place.
func Validate(q QuerySpec, caps Capabilities, allow Allowlists) (QuerySpec, error) {
	if q.Where != nil && !caps.Query {
		return q, fluxerrors.NewUnsupported("where", "query")
	}

	if len(q.Select) > 0 {
		if !caps.Select {
			return q, fluxerrors.NewUnsupported("select", "select")
		}
		for _, field := range q.Select {
			if allow.SelectFields != nil && !allow.SelectFields[field] {
				return q, fluxerrors.NewFieldNotAllowed("select", field)
			}
		}
	}

	if q.Where != nil {
		if err := validateFilter(*q.Where, caps, allow, "where"); err != nil {
			return q, err
		}
	}

	if len(q.OrderBy) > 0 {
		if !caps.OrderBy {
			return q, fluxerrors.NewUnsupported("order_by", "order_by")
		}
		for _, entry := range q.OrderBy {
			field := entry
			if len(field) > 0 && field[0] == '-' {
				field = field[1:]
			}
			if allow.OrderFields != nil && !allow.OrderFields[field] {
				return q, fluxerrors.NewFieldNotAllowed("order_by", field)
			}
		}
	}

	paginationRequested := q.Limit != nil || q.Offset != 0
	if paginationRequested && !caps.Pagination.Supported {
		return q, fluxerrors.NewUnsupported("limit", "pagination")
	}
	if q.Offset < 0 {
		return q, fluxerrors.NewInvalidShape("offset", "offset must be a non-negative integer")
	}
	if q.Limit != nil {
		if *q.Limit < 0 {
			return q, fluxerrors.NewInvalidShape("limit", "limit must be a non-negative integer")
		}
		if caps.Pagination.MaxLimit != nil && *q.Limit > *caps.Pagination.MaxLimit {
			clamped := *caps.Pagination.MaxLimit
			out := q
			out.Limit = &clamped
			return out, nil
		}
	}

	return q, nil
}

// validateFilter recursively validates the filter AST, accumulating a
// path-crumb trail like "where.or.right.not.and.right" (spec.md §4.7 step
// 3). allow.Fields is enforced against every comparison/exists field
// encountered, per original_source's test_field_allowlist.py.
func validateFilter(node FilterNode, caps Capabilities, allow Allowlists, path string) error {
	if node.Op == "" {
		return fluxerrors.NewInvalidShape(path, "filter node must have a non-empty operator")
	}

	if !caps.Filter {
		return fluxerrors.NewUnsupported(path, "filtering")
	}
	if caps.FilterOps == nil || !caps.FilterOps[node.Op] {
		return fluxerrors.NewUnsupported(path, node.Op)
	}

	arity, known := expectedArity(node.Op)
	if !known {
		return fluxerrors.NewInvalidShape(path, "unknown operator \""+node.Op+"\"")
	}
	if len(node.Args) != arity {
		return fluxerrors.NewInvalidShape(path, "operator \""+node.Op+"\" expects arity "+strconv.Itoa(arity))
	}

	switch {
	case comparisonOps[node.Op]:
		field, ok := node.Args[0].(string)
		if !ok {
			return fluxerrors.NewInvalidShape(path, "comparison field must be a string")
		}
		if allow.Fields != nil && !allow.Fields[field] {
			return fluxerrors.NewFieldNotAllowed(path, field)
		}
		if node.Op == "in" {
			if _, ok := node.Args[1].([]any); !ok {
				return fluxerrors.NewInvalidShape(path+"."+field, "\"in\" value must be a list")
			}
		}
		return nil
	case node.Op == "exists":
		field, ok := node.Args[0].(string)
		if !ok {
			return fluxerrors.NewInvalidShape(path, "exists field must be a string")
		}
		if allow.Fields != nil && !allow.Fields[field] {
			return fluxerrors.NewFieldNotAllowed(path, field)
		}
		return nil
	case node.Op == "not":
		operand, ok := node.Args[0].(FilterNode)
		if !ok {
			return fluxerrors.NewInvalidShape(path+".not", "not.operand must be a filter node")
		}
		return validateFilter(operand, caps, allow, path+".not")
	case node.Op == "and" || node.Op == "or":
		left, lok := node.Args[0].(FilterNode)
		right, rok := node.Args[1].(FilterNode)
		if !lok || !rok {
			return fluxerrors.NewInvalidShape(path, node.Op+".left/right must be filter nodes")
		}
		if err := validateFilter(left, caps, allow, path+"."+node.Op+".left"); err != nil {
			return err
		}
		return validateFilter(right, caps, allow, path+"."+node.Op+".right")
	}
	return nil
}
