package ranking

import (
	"context"
	"fmt"
)

// DirectiveSource loads directives that may apply to a query.
type DirectiveSource interface {
	// ListApplicable returns the tenant's global directives, query directives whose value equals
	// normalizedQuery and, when category is non-empty, category directives for that category.
	ListApplicable(ctx context.Context, tenantID, normalizedQuery, category string) ([]Directive, error)
}

// Resolver turns the directives matching a query into one effective directive per item.
type Resolver struct {
	source DirectiveSource
}

// NewResolver creates a Resolver backed by source.
func NewResolver(source DirectiveSource) *Resolver {
	return &Resolver{source: source}
}

// Resolve loads the directives for the query and category and keeps the most specific one per item.
func (r *Resolver) Resolve(ctx context.Context, tenantID, query, category string) (map[string]Directive, error) {
	directives, err := r.source.ListApplicable(ctx, tenantID, NormalizeQuery(query), category)
	if err != nil {
		return nil, fmt.Errorf("failed to load directives: %w", err)
	}
	return Effective(directives), nil
}

// Effective picks the winning directive per target. The result does not depend on input order.
func Effective(directives []Directive) map[string]Directive {
	out := make(map[string]Directive, len(directives))
	for _, d := range directives {
		cur, ok := out[d.Target]
		if !ok || outranks(d, cur) {
			out[d.Target] = d
		}
	}
	return out
}

// outranks compares two directives for the same target.
// Same-scope duplicates cannot exist after upsert; if they do, the latest write wins, then the larger id.
func outranks(a, b Directive) bool {
	if a.Scope != b.Scope {
		return MoreSpecific(a.Scope, b.Scope)
	}
	if !a.UpdatedAt.Equal(b.UpdatedAt) {
		return a.UpdatedAt.After(b.UpdatedAt)
	}
	return a.ID > b.ID
}
