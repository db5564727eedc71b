package xfiles

import (
	"testing"

	"github.com/stretchr/testify/require"

	fluxerrors "github.com/fluxrag/fluxrag/internal/errors"
)

func eqAndCaps() Capabilities {
	return Capabilities{
		Query:     true,
		Filter:    true,
		FilterOps: map[string]bool{"eq": true, "and": true},
	}
}

func TestValidate_UnsupportedOperator(t *testing.T) {
	limit := 5
	_ = limit
	caps := eqAndCaps()
	q := QuerySpec{Where: &FilterNode{Op: "gt", Args: []any{"age", 18}}}

	_, err := Validate(q, caps, Allowlists{})
	require.Error(t, err)
	var unsupported *fluxerrors.Unsupported
	require.ErrorAs(t, err, &unsupported)
	require.Contains(t, err.Error(), "gt")
}

func TestValidate_MaxLimitClamping(t *testing.T) {
	maxLimit := 1000
	caps := Capabilities{Pagination: Pagination{Supported: true, MaxLimit: &maxLimit}}

	over := 5000
	q := QuerySpec{Limit: &over}
	clamped, err := Validate(q, caps, Allowlists{})
	require.NoError(t, err)
	require.Equal(t, 1000, *clamped.Limit)

	under := 500
	q2 := QuerySpec{Limit: &under}
	unchanged, err := Validate(q2, caps, Allowlists{})
	require.NoError(t, err)
	require.Same(t, &under, unchanged.Limit, "input must come back unchanged, not a copy")
}

func TestValidate_WhereWithoutQueryCapabilityFails(t *testing.T) {
	q := QuerySpec{Where: &FilterNode{Op: "eq", Args: []any{"a", 1}}}
	_, err := Validate(q, Capabilities{}, Allowlists{})
	require.Error(t, err)
}

func TestValidate_FilteringUnsupportedWithWherePresentFailsUnsupportedFeature(t *testing.T) {
	caps := Capabilities{Query: true, Filter: false}
	q := QuerySpec{Where: &FilterNode{Op: "eq", Args: []any{"a", 1}}}
	_, err := Validate(q, caps, Allowlists{})
	require.Error(t, err)
	var unsupported *fluxerrors.Unsupported
	require.ErrorAs(t, err, &unsupported)
}

func TestValidate_SelectAllowlistViolation(t *testing.T) {
	caps := Capabilities{Select: true}
	q := QuerySpec{Select: []string{"name", "secret"}}
	_, err := Validate(q, caps, Allowlists{SelectFields: map[string]bool{"name": true}})
	require.Error(t, err)
	var notAllowed *fluxerrors.FieldNotAllowed
	require.ErrorAs(t, err, &notAllowed)
}

func TestValidate_NestedFilterWithSupportedOpsPasses(t *testing.T) {
	caps := Capabilities{Query: true, Filter: true, FilterOps: map[string]bool{"and": true, "or": true, "not": true, "eq": true, "gt": true}}
	q := QuerySpec{Where: &FilterNode{
		Op: "or",
		Args: []any{
			FilterNode{Op: "eq", Args: []any{"a", 1}},
			FilterNode{Op: "not", Args: []any{
				FilterNode{Op: "and", Args: []any{
					FilterNode{Op: "eq", Args: []any{"b", 2}},
					FilterNode{Op: "gt", Args: []any{"c", 3}},
				}},
			}},
		},
	}}
	_, err := Validate(q, caps, Allowlists{})
	require.NoError(t, err)
}

func TestValidate_InRequiresListValue(t *testing.T) {
	caps := Capabilities{Query: true, Filter: true, FilterOps: map[string]bool{"in": true}}
	q := QuerySpec{Where: &FilterNode{Op: "in", Args: []any{"tag", "not-a-list"}}}
	_, err := Validate(q, caps, Allowlists{})
	require.Error(t, err)
	var shape *fluxerrors.InvalidShape
	require.ErrorAs(t, err, &shape)
}

func TestIn_AlwaysBuildsOrderedList(t *testing.T) {
	node := In("tag", "a", "b", "c")
	values, ok := node.Args[1].([]any)
	require.True(t, ok)
	require.Equal(t, []any{"a", "b", "c"}, values)
}

func TestValidate_PaginationUnsupportedButRequestedFails(t *testing.T) {
	limit := 10
	q := QuerySpec{Limit: &limit}
	_, err := Validate(q, Capabilities{}, Allowlists{})
	require.Error(t, err)
}

func TestValidate_OrderByAllowlist(t *testing.T) {
	caps := Capabilities{OrderBy: true}
	q := QuerySpec{OrderBy: []string{"-created_at"}}
	_, err := Validate(q, caps, Allowlists{OrderFields: map[string]bool{"created_at": true}})
	require.NoError(t, err)

	q2 := QuerySpec{OrderBy: []string{"secret_field"}}
	_, err = Validate(q2, caps, Allowlists{OrderFields: map[string]bool{"created_at": true}})
	require.Error(t, err)
}

func TestValidate_TextAndSpatialComparisonOperatorsAreSupported(t *testing.T) {
	caps := Capabilities{
		Query:  true,
		Filter: true,
		FilterOps: map[string]bool{
			"contains": true, "startswith": true, "endswith": true,
			"regex": true, "fulltext": true, "near": true, "within": true,
		},
	}
	for _, op := range []string{"contains", "startswith", "endswith", "regex", "fulltext", "near", "within"} {
		q := QuerySpec{Where: &FilterNode{Op: op, Args: []any{"body", "x"}}}
		_, err := Validate(q, caps, Allowlists{})
		require.NoError(t, err, "operator %q should validate as a comparison", op)
	}
}

func TestValidate_FieldAllowlistViolationOnWhereComparison(t *testing.T) {
	caps := Capabilities{Query: true, Filter: true, FilterOps: map[string]bool{"eq": true}}
	q := QuerySpec{Where: &FilterNode{Op: "eq", Args: []any{"secret", "x"}}}
	_, err := Validate(q, caps, Allowlists{Fields: map[string]bool{"name": true}})
	require.Error(t, err)
	var notAllowed *fluxerrors.FieldNotAllowed
	require.ErrorAs(t, err, &notAllowed)
}

func TestValidate_FieldAllowlistViolationOnExists(t *testing.T) {
	caps := Capabilities{Query: true, Filter: true, FilterOps: map[string]bool{"exists": true}}
	q := QuerySpec{Where: &FilterNode{Op: "exists", Args: []any{"secret"}}}
	_, err := Validate(q, caps, Allowlists{Fields: map[string]bool{"name": true}})
	require.Error(t, err)
	var notAllowed *fluxerrors.FieldNotAllowed
	require.ErrorAs(t, err, &notAllowed)
}

func TestValidate_FieldAllowlistViolationDeepInNestedFilterReportsPath(t *testing.T) {
	caps := Capabilities{Query: true, Filter: true, FilterOps: map[string]bool{"and": true, "or": true, "not": true, "eq": true}}
	q := QuerySpec{Where: &FilterNode{
		Op: "or",
		Args: []any{
			FilterNode{Op: "eq", Args: []any{"a", 1}},
			FilterNode{Op: "not", Args: []any{
				FilterNode{Op: "and", Args: []any{
					FilterNode{Op: "eq", Args: []any{"b", 2}},
					FilterNode{Op: "eq", Args: []any{"secret", 3}},
				}},
			}},
		},
	}}
	_, err := Validate(q, caps, Allowlists{Fields: map[string]bool{"a": true, "b": true}})
	require.Error(t, err)
	var notAllowed *fluxerrors.FieldNotAllowed
	require.ErrorAs(t, err, &notAllowed)
	require.Equal(t, "where.or.right.not.and.right", notAllowed.Path)
	require.Equal(t, "secret", notAllowed.Field)
}
